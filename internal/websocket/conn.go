// Package websocket carries MQTT frames over binary WebSocket messages.
package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Subprotocol requested from the broker during the handshake.
const Subprotocol = "mqtt"

var ErrNotBinary = errors.New("not binary message")

// Dialer opens client connections to a broker.
type Dialer struct {
	HandshakeTimeout time.Duration

	// WriteTimeout bounds a single Send. Zero means no deadline.
	WriteTimeout time.Duration
}

// Dial performs the WebSocket handshake with the broker at url, sending header
// with the upgrade request.
func (d *Dialer) Dial(ctx context.Context, url string, header http.Header) (*Conn, error) {
	wd := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
		Subprotocols:     []string{Subprotocol},
	}

	c, resp, err := wd.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, &HandshakeError{Status: resp.StatusCode, Err: err}
		}
		return nil, err
	}

	return &Conn{c: c, writeTimeout: d.WriteTimeout}, nil
}

// HandshakeError is returned when the broker answered the upgrade request
// with a non-101 status.
type HandshakeError struct {
	Status int
	Err    error
}

func (e *HandshakeError) Error() string {
	return "websocket handshake: " + http.StatusText(e.Status) + ": " + e.Err.Error()
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// Conn is a client WebSocket connection. Send, Recv and Close may each be
// called from a different goroutine.
type Conn struct {
	c            *websocket.Conn
	writeTimeout time.Duration

	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// Send writes b as one binary message.
func (c *Conn) Send(b []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.c.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.c.WriteMessage(websocket.BinaryMessage, b)
}

// Recv blocks until the next message arrives. Only binary messages are
// accepted.
func (c *Conn) Recv() ([]byte, error) {
	mt, b, err := c.c.ReadMessage()
	if err != nil {
		return nil, err
	}
	if mt != websocket.BinaryMessage {
		return nil, ErrNotBinary
	}
	return b, nil
}

// Close sends a close frame best effort and closes the underlying connection.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.closeErr = c.c.Close()
	})
	return c.closeErr
}

// IsClosure reports whether err is the peer closing the connection normally.
func IsClosure(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
