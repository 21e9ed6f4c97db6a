package mqttmsgr

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/RoanBrand/mqttmsgr/config"
	"github.com/RoanBrand/mqttmsgr/events"
	"github.com/RoanBrand/mqttmsgr/internal/model"
	"github.com/RoanBrand/mqttmsgr/internal/proto"
	log "github.com/sirupsen/logrus"
)

const waitTimeout = 2 * time.Second

// fakeClock only moves when Advance is called.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	c    *fakeClock
	at   time.Time
	f    func()
	done bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1700000000000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	active := !t.done
	t.done = true
	return active
}

// Advance moves time forward by d, firing due timers in order on the calling
// goroutine.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if !t.done && !t.at.After(target) && (next == nil || t.at.Before(next.at)) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		if next.at.After(c.now) {
			c.now = next.at
		}
		next.done = true
		c.mu.Unlock()

		next.f()
	}
}

var errFakeClosed = errors.New("fake transport closed")

// fakeConn is the broker's end of a Transport.
type fakeConn struct {
	in     chan []byte // to the client
	out    chan []byte // from the client
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) Send(b []byte) error {
	select {
	case <-f.closed:
		return errFakeClosed
	default:
	}
	f.out <- append([]byte(nil), b...)
	return nil
}

func (f *fakeConn) Recv() ([]byte, error) {
	select {
	case b := <-f.in:
		return b, nil
	case <-f.closed:
		return nil, io.EOF
	}
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

type dialReq struct {
	url    string
	header http.Header
}

type fakeDialer struct {
	mu    sync.Mutex
	fail  error
	dials chan dialReq
	conns chan *fakeConn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		dials: make(chan dialReq, 64),
		conns: make(chan *fakeConn, 64),
	}
}

func (d *fakeDialer) setFail(err error) {
	d.mu.Lock()
	d.fail = err
	d.mu.Unlock()
}

func (d *fakeDialer) Dial(_ context.Context, url string, header http.Header) (Transport, error) {
	d.dials <- dialReq{url: url, header: header}

	d.mu.Lock()
	fail := d.fail
	d.mu.Unlock()
	if fail != nil {
		return nil, fail
	}

	conn := newFakeConn()
	d.conns <- conn
	return conn, nil
}

func (d *fakeDialer) nextDial(t *testing.T) dialReq {
	t.Helper()
	select {
	case r := <-d.dials:
		return r
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for dial")
	}
	return dialReq{}
}

func (d *fakeDialer) noDial(t *testing.T) {
	t.Helper()
	select {
	case r := <-d.dials:
		t.Fatal("unexpected dial to", r.url)
	case <-time.After(50 * time.Millisecond):
	}
}

func (d *fakeDialer) nextConn(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for connection")
	}
	return nil
}

// sentPacket is a client to broker packet as seen by the fake broker.
type sentPacket struct {
	typ     uint8
	flags   uint8
	id      uint16
	topic   string
	qos     uint8
	payload []byte
	raw     []byte
}

func parseSent(t *testing.T, b []byte) sentPacket {
	t.Helper()
	p := sentPacket{typ: b[0] & 0xF0, flags: b[0] & 0x0F, raw: b}
	rl, n, err := proto.DecodeRemainingLength(b, 1)
	if err != nil {
		t.Fatal(err)
	}
	body := b[1+n : 1+n+rl]

	switch p.typ {
	case model.PUBLISH:
		tl := int(binary.BigEndian.Uint16(body))
		p.topic = string(body[2 : 2+tl])
		body = body[2+tl:]
		p.qos = (p.flags & model.FlagQoS) >> 1
		if p.qos > 0 {
			p.id = binary.BigEndian.Uint16(body)
			body = body[2:]
		}
		p.payload = body
	case model.SUBSCRIBE:
		p.id = binary.BigEndian.Uint16(body)
		tl := int(binary.BigEndian.Uint16(body[2:]))
		p.topic = string(body[4 : 4+tl])
		p.qos = body[4+tl]
	case model.PUBACK:
		p.id = binary.BigEndian.Uint16(body)
	}
	return p
}

func (f *fakeConn) next(t *testing.T) sentPacket {
	t.Helper()
	select {
	case b := <-f.out:
		return parseSent(t, b)
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for packet from client")
	}
	return sentPacket{}
}

func (f *fakeConn) expect(t *testing.T, typ uint8) sentPacket {
	t.Helper()
	p := f.next(t)
	if p.typ != typ {
		t.Fatalf("got %s, expected %s", model.Name(p.typ), model.Name(typ))
	}
	return p
}

func (f *fakeConn) nothingSent(t *testing.T) {
	t.Helper()
	select {
	case b := <-f.out:
		t.Fatalf("unexpected packet % x", b)
	case <-time.After(50 * time.Millisecond):
	}
}

func (f *fakeConn) connack(rc uint8) {
	f.in <- []byte{model.CONNACK, 2, 0, rc}
}

func (f *fakeConn) ack(typ uint8, id uint16, rc ...byte) {
	b := []byte{typ, byte(2 + len(rc)), byte(id >> 8), byte(id)}
	f.in <- append(b, rc...)
}

// acceptSession answers CONNECT with success and acknowledges the fixed
// subscriptions for userID.
func (f *fakeConn) acceptSession(t *testing.T, userID string) {
	t.Helper()
	f.expect(t, model.CONNECT)
	f.connack(model.Accepted)
	for _, topic := range events.SubscribeTopics(userID) {
		p := f.expect(t, model.SUBSCRIBE)
		if p.topic != topic {
			t.Fatal("subscribed to", p.topic, "expected", topic)
		}
		f.ack(model.SUBACK, p.id, 0)
	}
}

type message struct {
	topic   string
	payload []byte
}

// recorder is a Listener collecting everything emitted.
type recorder struct {
	connects    chan struct{}
	disconnects chan DisconnectInfo
	errs        chan error
	msgs        chan message
	evs         chan events.Event
}

func newRecorder() *recorder {
	return &recorder{
		connects:    make(chan struct{}, 64),
		disconnects: make(chan DisconnectInfo, 64),
		errs:        make(chan error, 64),
		msgs:        make(chan message, 64),
		evs:         make(chan events.Event, 64),
	}
}

func (r *recorder) OnConnect()                        { r.connects <- struct{}{} }
func (r *recorder) OnDisconnect(info DisconnectInfo)  { r.disconnects <- info }
func (r *recorder) OnError(err error)                 { r.errs <- err }
func (r *recorder) OnMessage(topic string, pl []byte) { r.msgs <- message{topic, pl} }
func (r *recorder) OnEvent(ev events.Event)           { r.evs <- ev }

func (r *recorder) connected(t *testing.T) {
	t.Helper()
	select {
	case <-r.connects:
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for connect event")
	}
}

func (r *recorder) disconnected(t *testing.T) DisconnectInfo {
	t.Helper()
	select {
	case info := <-r.disconnects:
		return info
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for disconnect event")
	}
	return DisconnectInfo{}
}

func (r *recorder) error(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.errs:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for error event")
	}
	return nil
}

func (r *recorder) event(t *testing.T) events.Event {
	t.Helper()
	select {
	case ev := <-r.evs:
		return ev
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for domain event")
	}
	return nil
}

type harness struct {
	c     *Client
	clock *fakeClock
	d     *fakeDialer
	rec   *recorder
}

var testSession = Session{
	UserID:   "100",
	DeviceID: "dev-1",
	Cookies:  []Cookie{{Name: "c_user", Value: "100"}, {Name: "xs", Value: "a%3Ab"}},
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()

	cfg := config.New()
	cfg.Broker.URL = "wss://edge-chat.example.com/chat?region=eu"
	cfg.Broker.Origin = "https://www.example.com"
	cfg.Broker.Referer = "https://www.example.com/"
	cfg.ClientID = "test-client"
	if mutate != nil {
		mutate(cfg)
	}

	logger := log.New()
	logger.Out = io.Discard

	h := &harness{clock: newFakeClock(), d: newFakeDialer(), rec: newRecorder()}
	c, err := New(cfg, WithClock(h.clock), WithDialer(h.d), WithLogger(logger))
	if err != nil {
		t.Fatal(err)
	}
	c.AddListener(h.rec)
	h.c = c
	t.Cleanup(func() { c.Disconnect() })
	return h
}

// connectAsync starts Connect and returns where its result will arrive.
func (h *harness) connectAsync() chan error {
	res := make(chan error, 1)
	go func() { res <- h.c.Connect(context.Background(), testSession) }()
	return res
}

// connect brings the client up against a fresh fake broker connection.
func (h *harness) connect(t *testing.T) *fakeConn {
	t.Helper()
	res := h.connectAsync()
	h.d.nextDial(t)
	conn := h.d.nextConn(t)
	conn.acceptSession(t, testSession.UserID)
	if err := wait(t, res); err != nil {
		t.Fatal("connect:", err)
	}
	h.rec.connected(t)
	h.sync()
	return conn
}

// sync returns once the dispatch loop has finished what it was doing.
func (h *harness) sync() {
	done := make(chan struct{})
	if h.c.post(func() { close(done) }) {
		<-done
	}
}

func wait(t *testing.T, res chan error) error {
	t.Helper()
	select {
	case err := <-res:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for result")
	}
	return nil
}

func publishAsync(c *Client, topic string, payload string, qos uint8) chan error {
	res := make(chan error, 1)
	go func() { res <- c.Publish(context.Background(), topic, []byte(payload), qos, false) }()
	return res
}

// eventually polls cond until it holds or waitTimeout passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for", what)
		}
		time.Sleep(time.Millisecond)
	}
}
