// Package queue holds the client's outbound message queues. They are owned by
// the client's dispatch loop and are not safe for concurrent use.
package queue

// Base message queue.
type queue struct {
	h, t *Item
	n    int
}

func (q *queue) add(i *Item) {
	if q.h == nil {
		q.h = i
		q.t = i
	} else {
		q.t.next = i
		i.prev = q.t
		q.t = i
	}
	q.n++
}

func (q *queue) remove(i *Item) {
	if i.prev == nil { // is h
		q.h = i.next
	} else {
		i.prev.next = i.next
	}

	if i.next == nil { // is t
		q.t = i.prev
	} else {
		i.next.prev = i.prev
	}

	i.prev, i.next = nil, nil // avoid memory leaks
	q.n--
}

func (q *queue) drain() []*Item {
	if q.n == 0 {
		return nil
	}
	items := make([]*Item, 0, q.n)
	for i := q.h; i != nil; {
		next := i.next
		i.prev, i.next = nil, nil
		items = append(items, i)
		i = next
	}
	q.h, q.t, q.n = nil, nil, 0
	return items
}

// Len returns the number of queued items.
func (q *queue) Len() int {
	return q.n
}

// Outbound PUBLISH messages waiting for a connection.
type Outbound struct {
	queue
}

// Add appends i to the back of the queue.
func (q *Outbound) Add(i *Item) {
	q.add(i)
}

// Pop removes and returns the oldest item, or nil.
func (q *Outbound) Pop() *Item {
	i := q.h
	if i != nil {
		q.remove(i)
	}
	return i
}

// Requeue puts i back at the front of the queue.
func (q *Outbound) Requeue(i *Item) {
	if q.h == nil {
		q.add(i)
		return
	}
	i.next = q.h
	q.h.prev = i
	q.h = i
	q.n++
}

// Reset empties the queue, returning the removed items in order.
func (q *Outbound) Reset() []*Item {
	return q.drain()
}
