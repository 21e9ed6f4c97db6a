package queue

import (
	"errors"
	"testing"
	"time"

	"github.com/RoanBrand/mqttmsgr/internal/model"
)

func TestOutboundFIFO(t *testing.T) {
	var q Outbound
	if q.Pop() != nil || q.Len() != 0 {
		t.Fatal("new queue not empty")
	}

	for _, topic := range []string{"a", "b", "c"} {
		q.Add(NewItem(&model.PubMessage{Topic: topic}))
	}
	if q.Len() != 3 {
		t.Fatal("len:", q.Len())
	}

	if i := q.Pop(); i.P.Topic != "a" {
		t.Fatal("got", i.P.Topic)
	}
	q.Add(NewItem(&model.PubMessage{Topic: "d"}))

	var got string
	for i := q.Pop(); i != nil; i = q.Pop() {
		got += i.P.Topic
	}
	if got != "bcd" || q.Len() != 0 {
		t.Fatal("got", got, "len", q.Len())
	}
}

func TestOutboundRequeue(t *testing.T) {
	var q Outbound
	q.Requeue(NewItem(&model.PubMessage{Topic: "b"}))
	q.Add(NewItem(&model.PubMessage{Topic: "c"}))

	i := q.Pop()
	q.Requeue(i)
	q.Requeue(NewItem(&model.PubMessage{Topic: "a"}))

	var got string
	for i := q.Pop(); i != nil; i = q.Pop() {
		got += i.P.Topic
	}
	if got != "abc" || q.Len() != 0 {
		t.Fatal("got", got, "len", q.Len())
	}
}

func TestOutboundReset(t *testing.T) {
	var q Outbound
	for _, topic := range []string{"a", "b"} {
		q.Add(NewItem(&model.PubMessage{Topic: topic}))
	}
	items := q.Reset()
	if len(items) != 2 || items[0].P.Topic != "a" || items[1].P.Topic != "b" {
		t.Fatal("reset order", items)
	}
	if q.Len() != 0 || q.Pop() != nil {
		t.Fatal("queue not empty after reset")
	}
	if q.Reset() != nil {
		t.Fatal("reset of empty queue")
	}
}

func TestNextIDSkipsZeroAndInFlight(t *testing.T) {
	q := NewInFlight()

	id, ok := q.NextID()
	if !ok || id != 1 {
		t.Fatal("first id", id)
	}
	q.Add(&Item{PId: id})

	q.lastID = 0xFFFE
	for _, want := range []uint16{0xFFFF, 2} { // 0 and 1 are skipped
		id, ok = q.NextID()
		if !ok || id != want {
			t.Fatal("got", id, "want", want)
		}
	}
}

func TestNextIDExhausted(t *testing.T) {
	q := NewInFlight()
	for n := 0; n < 0xFFFF; n++ {
		id, ok := q.NextID()
		if !ok {
			t.Fatal("ran out at", n)
		}
		q.Add(&Item{PId: id})
	}
	if _, ok := q.NextID(); ok {
		t.Fatal("expected no free identifier")
	}

	q.Remove(500)
	if id, ok := q.NextID(); !ok || id != 500 {
		t.Fatal("expected freed id 500, got", id)
	}
}

func TestInFlightRemove(t *testing.T) {
	q := NewInFlight()
	for id := uint16(1); id <= 3; id++ {
		q.Add(&Item{PId: id})
	}

	if i := q.Remove(2); i == nil || i.PId != 2 {
		t.Fatal("remove 2", i)
	}
	if q.Remove(2) != nil {
		t.Fatal("removed twice")
	}
	if q.Len() != 2 {
		t.Fatal("len", q.Len())
	}

	items := q.Reset()
	if len(items) != 2 || items[0].PId != 1 || items[1].PId != 3 {
		t.Fatal("reset", items)
	}
	if q.Remove(1) != nil || q.Len() != 0 {
		t.Fatal("lookup not cleared")
	}
}

func TestInFlightExpired(t *testing.T) {
	q := NewInFlight()
	start := time.Unix(1000, 0)
	timeout := 30 * time.Second

	q.Add(&Item{PId: 1, Sent: start})
	q.Add(&Item{PId: 2, Sent: start.Add(10 * time.Second)})
	q.Add(&Item{PId: 3, Sent: start.Add(20 * time.Second)})

	expired, next := q.Expired(start.Add(29*time.Second), timeout)
	if len(expired) != 0 || next != time.Second {
		t.Fatal("early:", len(expired), next)
	}

	expired, next = q.Expired(start.Add(40*time.Second), timeout)
	if len(expired) != 2 || expired[0].PId != 1 || expired[1].PId != 2 {
		t.Fatal("expired", expired)
	}
	if next != 10*time.Second {
		t.Fatal("next", next)
	}
	if q.Remove(1) != nil || q.Len() != 1 {
		t.Fatal("expired items still tracked")
	}

	expired, next = q.Expired(start.Add(time.Hour), timeout)
	if len(expired) != 1 || next != 0 || q.Len() != 0 {
		t.Fatal("final", len(expired), next)
	}
}

func TestItemCompleteOnce(t *testing.T) {
	calls := 0
	var got error
	i := &Item{Done: func(_ *model.Packet, err error) {
		calls++
		got = err
	}}

	errFirst := errors.New("first")
	i.Complete(nil, errFirst)
	i.Complete(nil, errors.New("second"))
	if calls != 1 || got != errFirst {
		t.Fatal("calls", calls, "err", got)
	}

	(&Item{}).Complete(nil, nil) // nil Done is allowed
}
