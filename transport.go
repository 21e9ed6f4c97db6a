package mqttmsgr

import (
	"context"
	"net/http"

	"github.com/RoanBrand/mqttmsgr/internal/model"
	"github.com/RoanBrand/mqttmsgr/internal/websocket"
)

// Transport is an ordered, message oriented duplex connection to the broker.
// Each Send carries one or more whole control packets. Recv blocks until the
// next message arrives and returns an error once the connection is gone. Close
// must unblock Recv.
type Transport interface {
	Send(b []byte) error
	Recv() ([]byte, error)
	Close() error
}

// Dialer opens a Transport to url, sending header with the handshake.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Transport, error)
}

type wsDialer struct {
	d websocket.Dialer
}

func (w *wsDialer) Dial(ctx context.Context, url string, header http.Header) (Transport, error) {
	conn, err := w.d.Dial(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// queueStore keeps queued messages across restarts.
type queueStore interface {
	Load(iter func(seq uint64, m *model.PubMessage)) error
	Put(seq uint64, m *model.PubMessage) error
	Delete(seq uint64) error
	Close() error
}
