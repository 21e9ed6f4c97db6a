package queue

import (
	"time"

	"github.com/RoanBrand/mqttmsgr/internal/model"
)

// Item is stored in the outbound and in-flight queues.
type Item struct {
	P *model.PubMessage

	// Seq is the durable store key. 0 if the item was never persisted.
	Seq uint64

	PId  uint16    // QoS 1 PUBLISH & SUBSCRIBE
	Sent time.Time // QoS 1 PUBLISH & SUBSCRIBE
	Sub  bool      // Waiting for SUBACK, not PUBACK

	// Done receives the acknowledgement, or the reason there will be none.
	Done func(ack *model.Packet, err error)

	next, prev *Item
}

func NewItem(p *model.PubMessage) *Item {
	return &Item{P: p}
}

// Complete resolves the item. Only the first call has an effect.
func (i *Item) Complete(ack *model.Packet, err error) {
	if d := i.Done; d != nil {
		i.Done = nil
		d(ack, err)
	}
}
