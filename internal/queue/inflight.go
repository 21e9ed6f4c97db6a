package queue

import "time"

// InFlight tracks QoS 1 PUBLISH and SUBSCRIBE packets awaiting acknowledgement,
// in the order they were sent.
type InFlight struct {
	queue
	lookup map[uint16]*Item
	lastID uint16
}

func NewInFlight() *InFlight {
	return &InFlight{lookup: make(map[uint16]*Item)}
}

// NextID advances the packet identifier counter, skipping 0 and identifiers
// still in flight. ok is false when every identifier is taken.
func (q *InFlight) NextID() (id uint16, ok bool) {
	for n := 0; n < 0xFFFF; n++ {
		q.lastID++
		if q.lastID == 0 {
			q.lastID = 1
		}
		if _, busy := q.lookup[q.lastID]; !busy {
			return q.lastID, true
		}
	}
	return 0, false
}

// Add starts tracking i under i.PId. Items must be added in send order.
func (q *InFlight) Add(i *Item) {
	q.add(i)
	q.lookup[i.PId] = i
}

// Remove stops tracking and returns the item with packet identifier id, or nil.
func (q *InFlight) Remove(id uint16) *Item {
	if i, ok := q.lookup[id]; ok {
		q.remove(i)
		delete(q.lookup, id)
		return i
	}
	return nil
}

// Expired removes the items that have waited at least timeout by now. next is
// how long until the oldest remaining item expires, 0 if nothing is left.
func (q *InFlight) Expired(now time.Time, timeout time.Duration) (expired []*Item, next time.Duration) {
	for i := q.h; i != nil; i = q.h {
		pending := now.Sub(i.Sent)
		if pending < timeout {
			return expired, timeout - pending
		}
		q.remove(i)
		delete(q.lookup, i.PId)
		expired = append(expired, i)
	}
	return expired, 0
}

// Reset stops tracking everything, returning the removed items in send order.
func (q *InFlight) Reset() []*Item {
	for id := range q.lookup {
		delete(q.lookup, id)
	}
	return q.drain()
}
