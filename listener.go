package mqttmsgr

import (
	"sync"
	"time"

	"github.com/RoanBrand/mqttmsgr/events"
)

// Listener observes a Client. Methods are called one at a time from the
// client's dispatch loop, in the order things happened; no further frame is
// read until they return. A Listener must not wait on Client methods other
// than State and IsConnected, start a goroutine for that.
type Listener interface {
	OnConnect()
	OnDisconnect(info DisconnectInfo)
	OnError(err error)
	OnMessage(topic string, payload []byte)
	OnEvent(ev events.Event)
}

// DisconnectInfo describes a lost or closed connection.
type DisconnectInfo struct {
	// Err is why the connection was lost, nil after Disconnect.
	Err error

	// WillRetry is true when a reconnect has been scheduled.
	WillRetry bool

	// RetryIn is the delay before the next attempt, if WillRetry.
	RetryIn time.Duration
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Connect    func()
	Disconnect func(DisconnectInfo)
	Error      func(error)
	Message    func(topic string, payload []byte)
	Event      func(events.Event)
}

func (l ListenerFuncs) OnConnect() {
	if l.Connect != nil {
		l.Connect()
	}
}

func (l ListenerFuncs) OnDisconnect(info DisconnectInfo) {
	if l.Disconnect != nil {
		l.Disconnect(info)
	}
}

func (l ListenerFuncs) OnError(err error) {
	if l.Error != nil {
		l.Error(err)
	}
}

func (l ListenerFuncs) OnMessage(topic string, payload []byte) {
	if l.Message != nil {
		l.Message(topic, payload)
	}
}

func (l ListenerFuncs) OnEvent(ev events.Event) {
	if l.Event != nil {
		l.Event(ev)
	}
}

type listenerEntry struct {
	l Listener
}

type listeners struct {
	sync.RWMutex
	list []*listenerEntry
}

// AddListener registers l and returns a func that unregisters it.
// It may be called from within a Listener.
func (c *Client) AddListener(l Listener) (remove func()) {
	e := &listenerEntry{l: l}
	c.listeners.Lock()
	c.listeners.list = append(c.listeners.list, e)
	c.listeners.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.listeners.Lock()
			defer c.listeners.Unlock()
			for i, le := range c.listeners.list {
				if le == e {
					c.listeners.list = append(c.listeners.list[:i:i], c.listeners.list[i+1:]...)
					return
				}
			}
		})
	}
}

func (c *Client) emit(fn func(Listener)) {
	c.listeners.RLock()
	list := c.listeners.list
	c.listeners.RUnlock()

	for _, e := range list {
		fn(e.l)
	}
}
