// Package mqttmsgr is a real-time messaging client speaking MQTT 3.1.1 over
// WebSocket. A Client keeps one broker connection alive, subscribes to the
// messaging topics and turns inbound publishes into typed events.
package mqttmsgr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/RoanBrand/mqttmsgr/config"
	"github.com/RoanBrand/mqttmsgr/events"
	"github.com/RoanBrand/mqttmsgr/internal/model"
	"github.com/RoanBrand/mqttmsgr/internal/proto"
	"github.com/RoanBrand/mqttmsgr/internal/queue"
	"github.com/RoanBrand/mqttmsgr/internal/store"
	"github.com/RoanBrand/mqttmsgr/internal/websocket"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Client is safe for concurrent use. All connection state is owned by a
// single dispatch goroutine; public methods hand it work over a channel.
type Client struct {
	cfg      *config.Config
	log      log.FieldLogger
	clock    Clock
	dialer   Dialer
	metrics  *metrics
	parser   *events.Parser
	clientID string
	store    queueStore

	cmds  chan func()
	done  chan struct{}
	state int32

	listeners listeners

	// Owned by the dispatch loop.
	session   Session
	conn      *connection
	attempt   uint64
	attempts  int // reconnects scheduled since last CONNACK or manual Connect
	waiters   []chan error
	reconnect *loopTimer
	out       queue.Outbound
	inflight  *queue.InFlight
	ackTimer  *loopTimer
	lastSeq   uint64
	closing   bool
}

// connection is one connect attempt and, after CONNACK, the live connection.
type connection struct {
	t          Transport
	cancelDial context.CancelFunc
	log        log.FieldLogger

	connectTimer *loopTimer
	keepAlive    *loopTimer

	// err is the first write error. The reader reports the loss.
	err error

	established     bool
	pingOutstanding bool
}

// New returns a disconnected Client. cfg is validated and defaults are filled
// in. If cfg.Queue.Dir is set, messages queued by a previous run are loaded.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.New()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Broker.URL == "" {
		return nil, errors.New("broker url not configured")
	}

	o := options{clock: realClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.StandardLogger()
	}
	if o.dialer == nil {
		o.dialer = &wsDialer{d: websocket.Dialer{
			HandshakeTimeout: cfg.ConnectTimeoutDuration(),
			WriteTimeout:     cfg.KeepAliveInterval(),
		}}
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	c := &Client{
		cfg:      cfg,
		log:      o.logger.WithField("client", clientID),
		clock:    o.clock,
		dialer:   o.dialer,
		metrics:  newMetrics(o.reg, clientID),
		parser:   events.NewParser(o.logger),
		clientID: clientID,
		cmds:     make(chan func()),
		done:     make(chan struct{}),
		inflight: queue.NewInFlight(),
	}

	if cfg.Queue.Dir != "" {
		if err := c.openStore(cfg.Queue.Dir); err != nil {
			return nil, err
		}
	}

	go c.run()
	return c, nil
}

func (c *Client) openStore(dir string) error {
	s, err := store.NewDisk(dir)
	if err != nil {
		return errors.New("error opening queue store: " + err.Error())
	}

	err = s.Load(func(seq uint64, m *model.PubMessage) {
		i := queue.NewItem(m)
		i.Seq = seq
		if m.QoS > 0 {
			i.Done = c.logAck(m)
		}
		c.out.Add(i)
		if seq > c.lastSeq {
			c.lastSeq = seq
		}
	})
	if err != nil {
		s.Close()
		return errors.New("error loading queued messages: " + err.Error())
	}

	c.store = s
	c.metrics.queueDepth.Set(float64(c.out.Len()))
	if n := c.out.Len(); n > 0 {
		c.log.WithField("count", n).Info("Loaded queued messages")
	}
	return nil
}

func (c *Client) run() {
	defer close(c.done)
	for !c.closing {
		fn := <-c.cmds
		fn()
	}
}

// post hands fn to the dispatch loop. It reports false if the Client is closed.
func (c *Client) post(fn func()) bool {
	select {
	case c.cmds <- fn:
		return true
	case <-c.done:
		return false
	}
}

func (c *Client) setState(s State) {
	if old := State(atomic.SwapInt32(&c.state, int32(s))); old != s {
		c.log.WithFields(log.Fields{
			"from": old.String(),
			"to":   s.String(),
		}).Debug("State change")
	}
}

func (c *Client) State() State {
	return State(atomic.LoadInt32(&c.state))
}

func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// ClientID returns the identifier sent in CONNECT.
func (c *Client) ClientID() string {
	return c.clientID
}

// Connect connects to the broker with s and waits for the outcome of the
// attempt. If already connected it returns nil. If an attempt is in progress
// it waits for that one. A pending automatic reconnect is replaced by an
// immediate attempt, and the reconnect attempt budget starts over.
//
// Failed attempts are retried in the background like a lost connection,
// unless the broker rejected the session. If ctx ends first the attempt
// carries on.
func (c *Client) Connect(ctx context.Context, s Session) error {
	res := make(chan error, 1)
	if !c.post(func() { c.connect(s, res) }) {
		return ErrClosed
	}

	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) connect(s Session, res chan error) {
	switch c.State() {
	case StateConnected:
		res <- nil
		return
	case StateConnecting:
		c.waiters = append(c.waiters, res)
		return
	case StateReconnecting:
		c.reconnect.stop()
		c.reconnect = nil
	}

	c.session = s
	c.attempts = 0
	c.waiters = append(c.waiters, res)
	c.startAttempt()
}

func (c *Client) startAttempt() {
	c.attempt++
	ctx, cancel := context.WithCancel(context.Background())
	conn := &connection{
		cancelDial: cancel,
		log:        c.log.WithField("attempt", c.attempt),
	}
	c.conn = conn
	c.setState(StateConnecting)

	url, err := c.brokerURL(&c.session)
	if err != nil {
		c.attemptFailed(conn, err)
		return
	}
	header := c.header(&c.session)

	conn.connectTimer = c.after(c.cfg.ConnectTimeoutDuration(), func() {
		c.attemptFailed(conn, ErrConnectTimeout)
	})

	conn.log.Debug("Dialing broker")
	go func() {
		t, err := c.dialer.Dial(ctx, url, header)
		if !c.post(func() { c.dialed(conn, t, err) }) && t != nil {
			t.Close()
		}
	}()
}

func (c *Client) dialed(conn *connection, t Transport, err error) {
	if c.conn != conn {
		if t != nil {
			t.Close()
		}
		return
	}
	if err != nil {
		c.attemptFailed(conn, err)
		return
	}

	conn.t = t
	go c.readLoop(conn)

	c.sendPacket(conn, proto.EncodeConnect(c.clientID, c.cfg.KeepAlive), model.CONNECT)
}

func (c *Client) readLoop(conn *connection) {
	for {
		b, err := conn.t.Recv()
		if err != nil {
			c.post(func() { c.connectionLost(conn, err) })
			return
		}
		if !c.post(func() { c.handleMessage(conn, b) }) {
			return
		}
	}
}

// sendPacket writes b to conn. After the first failure the connection is
// closed and every further write fails with the same error.
func (c *Client) sendPacket(conn *connection, b []byte, controlType uint8) error {
	if conn.err != nil {
		return conn.err
	}
	if err := conn.t.Send(b); err != nil {
		conn.err = err
		conn.t.Close()
		return err
	}

	c.metrics.sent(controlType)
	conn.log.WithField("type", model.Name(controlType)).Debug("Packet sent")
	return nil
}

func (c *Client) connackReceived(conn *connection, p *model.Packet) {
	if conn.established {
		conn.log.Warn("Unexpected CONNACK on established connection. Dropping")
		return
	}
	conn.connectTimer.stop()

	if p.ReturnCode != model.Accepted {
		err := &RefusedError{Code: p.ReturnCode}
		conn.log.WithFields(log.Fields{
			"code":   p.ReturnCode,
			"reason": err.Reason(),
		}).Error("Connection refused")
		c.attemptFailed(conn, err)
		return
	}

	conn.established = true
	c.attempts = 0
	c.setState(StateConnected)
	c.metrics.connected.Set(1)
	conn.keepAlive = c.after(c.cfg.KeepAliveInterval(), func() { c.keepAliveTick(conn) })
	conn.log.WithField("sessionPresent", p.SessionPresent).Info("Connected to broker")

	c.resolveWaiters(nil)

	for _, topic := range events.SubscribeTopics(c.session.UserID) {
		topic := topic
		c.subscribe(conn, topic, 0, func(err error) {
			if err != nil {
				c.log.WithFields(log.Fields{
					"topic": topic,
					"err":   err,
				}).Warn("Subscription failed")
			}
		})
	}
	c.flushQueue(conn)

	c.emit(func(l Listener) { l.OnConnect() })
}

func (c *Client) keepAliveTick(conn *connection) {
	if c.conn != conn {
		return
	}
	if conn.pingOutstanding && !c.cfg.PingTimeoutDisabled {
		c.connectionLost(conn, ErrKeepAliveTimeout)
		return
	}

	if err := c.sendPacket(conn, proto.EncodePingReq(), model.PINGREQ); err != nil {
		return
	}
	conn.pingOutstanding = true
	conn.keepAlive = c.after(c.cfg.KeepAliveInterval(), func() { c.keepAliveTick(conn) })
}

// teardown stops everything conn started and closes its transport.
func (c *Client) teardown(conn *connection) {
	if c.conn == conn {
		c.conn = nil
	}
	conn.cancelDial()
	conn.connectTimer.stop()
	conn.keepAlive.stop()
	if conn.t != nil {
		conn.t.Close()
	}
	if conn.established {
		c.metrics.connected.Set(0)
	}
}

// attemptFailed ends a connect attempt that did not reach CONNACK success.
func (c *Client) attemptFailed(conn *connection, err error) {
	if c.conn != conn {
		return
	}
	c.teardown(conn)
	c.resolveWaiters(err)

	conn.log.WithField("err", err).Warn("Connect attempt failed")

	_, willRetry := c.scheduleReconnect(err)
	if !willRetry && retryable(err) {
		err = fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
	}
	c.emit(func(l Listener) { l.OnError(err) })
}

// connectionLost handles the end of conn that was not asked for.
func (c *Client) connectionLost(conn *connection, err error) {
	if c.conn != conn {
		return
	}
	if conn.err != nil {
		err = conn.err
	}
	if !conn.established {
		c.attemptFailed(conn, err)
		return
	}

	c.teardown(conn)
	c.failInFlight(ErrConnectionClosed)

	conn.log.WithField("err", err).Warn("Connection lost")

	retryIn, willRetry := c.scheduleReconnect(err)
	info := DisconnectInfo{Err: err, WillRetry: willRetry, RetryIn: retryIn}
	c.emit(func(l Listener) { l.OnDisconnect(info) })

	if !willRetry {
		exhausted := fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
		c.emit(func(l Listener) { l.OnError(exhausted) })
	}
}

// scheduleReconnect applies the reconnect policy after a failure caused by
// cause. The delay grows linearly with every attempt up to the configured cap.
func (c *Client) scheduleReconnect(cause error) (time.Duration, bool) {
	if !retryable(cause) {
		c.setState(StateDisconnected)
		return 0, false
	}
	if c.attempts >= c.cfg.Reconnect.MaxAttempts {
		c.log.WithField("attempts", c.attempts).Error("Giving up reconnecting")
		c.setState(StateDisconnected)
		return 0, false
	}

	c.attempts++
	d := c.cfg.ReconnectDelay(c.attempts)
	c.setState(StateReconnecting)
	c.metrics.reconnects.Inc()
	c.log.WithFields(log.Fields{
		"attempt": c.attempts,
		"delay":   d,
	}).Info("Reconnect scheduled")

	c.reconnect = c.after(d, func() {
		c.reconnect = nil
		c.startAttempt()
	})
	return d, true
}

func (c *Client) resolveWaiters(err error) {
	for _, w := range c.waiters {
		w <- err
	}
	c.waiters = nil
}

// Disconnect sends DISCONNECT, closes the connection and stops every timer.
// Pending acknowledgements fail with ErrConnectionClosed. The Client can not
// be used afterwards. Messages still queued stay in the durable store if one
// is configured, otherwise they are dropped.
func (c *Client) Disconnect() error {
	res := make(chan error, 1)
	if !c.post(func() { c.disconnect(res) }) {
		return nil
	}
	return <-res
}

func (c *Client) disconnect(res chan error) {
	c.reconnect.stop()
	c.reconnect = nil

	conn := c.conn
	wasConnected := conn != nil && conn.established
	if conn != nil {
		if wasConnected {
			c.sendPacket(conn, proto.EncodeDisconnect(), model.DISCONNECT)
		}
		c.teardown(conn)
	}

	c.failInFlight(ErrConnectionClosed)
	c.resolveWaiters(ErrClosed)

	dropped := c.out.Reset()
	for _, i := range dropped {
		i.Complete(nil, ErrClosed)
	}
	c.metrics.queueDepth.Set(0)

	var err error
	if c.store != nil {
		err = c.store.Close()
	} else if len(dropped) > 0 {
		c.log.WithField("count", len(dropped)).Warn("Dropping queued messages")
	}

	c.setState(StateClosed)
	c.closing = true
	c.log.Info("Disconnected")

	if wasConnected {
		c.emit(func(l Listener) { l.OnDisconnect(DisconnectInfo{}) })
	}
	res <- err
}

// Publish sends a message to topic. While connected, QoS 0 returns once the
// packet is written and QoS 1 waits for PUBACK, failing with ErrAckTimeout or
// ErrConnectionClosed. While not connected, or while older messages are still
// queued, the message is queued and Publish returns nil. The queue is sent in
// order after the next CONNACK.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, qos uint8, retain bool) error {
	if qos > 1 {
		return ErrInvalidQoS
	}
	if !validTopicName(topic) {
		return ErrInvalidTopic
	}

	m := &model.PubMessage{
		Topic:   topic,
		Payload: append([]byte(nil), payload...),
		QoS:     qos,
		Retain:  retain,
	}

	res := make(chan error, 1)
	if !c.post(func() { c.publish(m, res) }) {
		return ErrClosed
	}

	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) publish(m *model.PubMessage, res chan error) {
	i := queue.NewItem(m)

	if conn := c.conn; conn != nil && conn.established && c.out.Len() == 0 {
		if m.QoS > 0 {
			i.Done = func(ack *model.Packet, err error) {
				if err == nil {
					err = checkAck(ack, model.PUBACK)
				}
				res <- err
			}
		}

		err := c.sendPublish(conn, i)
		if err == nil {
			if m.QoS == 0 {
				res <- nil
			}
			return
		}
		if errors.Is(err, ErrNoPacketID) {
			res <- err
			return
		}
		// The connection is going down. Replay the message after reconnecting.
	}

	if m.QoS > 0 {
		i.Done = c.logAck(m)
	}
	res <- c.enqueue(i)
}

// sendPublish writes i to conn, tracking it for PUBACK if QoS 1.
func (c *Client) sendPublish(conn *connection, i *queue.Item) error {
	var pID uint16
	if i.P.QoS > 0 {
		id, ok := c.inflight.NextID()
		if !ok {
			return ErrNoPacketID
		}
		pID = id
	}

	if err := c.sendPacket(conn, proto.EncodePublish(i.P, pID), model.PUBLISH); err != nil {
		return err
	}

	if seq := i.Seq; seq != 0 {
		i.Seq = 0
		if pID == 0 {
			c.unstore(seq)
		} else {
			// Kept on disk until PUBACK, so it is sent again after a restart.
			done := i.Done
			i.Done = func(ack *model.Packet, err error) {
				if err == nil && ack.Type == model.PUBACK {
					c.unstore(seq)
				}
				if done != nil {
					done(ack, err)
				}
			}
		}
	}

	if pID != 0 {
		i.PId, i.Sent = pID, c.clock.Now()
		c.track(i)
	}
	return nil
}

func (c *Client) unstore(seq uint64) {
	if err := c.store.Delete(seq); err != nil {
		c.log.WithFields(log.Fields{
			"seq": seq,
			"err": err,
		}).Error("Unable to remove sent message from queue store")
	}
}

func (c *Client) enqueue(i *queue.Item) error {
	if l := c.cfg.Queue.Limit; l > 0 && c.out.Len() >= l {
		return ErrQueueFull
	}

	if c.store != nil {
		seq := c.lastSeq + 1
		if err := c.store.Put(seq, i.P); err != nil {
			c.log.WithField("err", err).Error("Unable to persist queued message")
		} else {
			c.lastSeq, i.Seq = seq, seq
		}
	}

	c.out.Add(i)
	c.metrics.queueDepth.Set(float64(c.out.Len()))
	return nil
}

// flushQueue sends queued messages in order until the queue is empty or a
// write fails.
func (c *Client) flushQueue(conn *connection) {
	if c.out.Len() > 0 {
		conn.log.WithField("count", c.out.Len()).Debug("Sending queued messages")
	}

	for c.conn == conn && conn.err == nil {
		i := c.out.Pop()
		if i == nil {
			break
		}
		if err := c.sendPublish(conn, i); err != nil {
			c.out.Requeue(i)
			break
		}
	}
	c.metrics.queueDepth.Set(float64(c.out.Len()))
}

// logAck is the completion for QoS 1 messages whose caller is no longer waiting.
func (c *Client) logAck(m *model.PubMessage) func(*model.Packet, error) {
	return func(ack *model.Packet, err error) {
		if err == nil {
			err = checkAck(ack, model.PUBACK)
		}
		if err != nil {
			c.log.WithFields(log.Fields{
				"topic": m.Topic,
				"err":   err,
			}).Warn("Queued message not acknowledged")
		}
	}
}

// Subscribe subscribes to topic and waits for SUBACK. It fails with
// ErrNotConnected unless connected. The fixed messaging topics are subscribed
// automatically after every CONNACK.
func (c *Client) Subscribe(ctx context.Context, topic string, qos uint8) error {
	if qos > 1 {
		return ErrInvalidQoS
	}
	if topic == "" || !utf8.ValidString(topic) || len(topic) > 0xFFFF {
		return ErrInvalidTopic
	}

	res := make(chan error, 1)
	ok := c.post(func() {
		conn := c.conn
		if conn == nil || !conn.established {
			res <- ErrNotConnected
			return
		}
		c.subscribe(conn, topic, qos, func(err error) { res <- err })
	})
	if !ok {
		return ErrClosed
	}

	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) subscribe(conn *connection, topic string, qos uint8, done func(error)) {
	id, ok := c.inflight.NextID()
	if !ok {
		done(ErrNoPacketID)
		return
	}

	if err := c.sendPacket(conn, proto.EncodeSubscribe(id, topic, qos), model.SUBSCRIBESend); err != nil {
		done(err)
		return
	}

	i := &queue.Item{
		P:    &model.PubMessage{Topic: topic, QoS: qos},
		PId:  id,
		Sent: c.clock.Now(),
		Sub:  true,
		Done: func(ack *model.Packet, err error) {
			if err == nil {
				err = checkSuback(topic, ack)
			}
			done(err)
		},
	}
	c.track(i)
}

// track starts waiting for the acknowledgement of i.
func (c *Client) track(i *queue.Item) {
	c.inflight.Add(i)
	c.metrics.pendingAcks.Set(float64(c.inflight.Len()))
	if c.ackTimer == nil {
		c.ackTimer = c.after(c.cfg.AckTimeoutDuration(), c.checkAcks)
	}
}

func (c *Client) checkAcks() {
	c.ackTimer = nil

	expired, next := c.inflight.Expired(c.clock.Now(), c.cfg.AckTimeoutDuration())
	for _, i := range expired {
		c.log.WithFields(log.Fields{
			"packetID": i.PId,
			"topic":    i.P.Topic,
		}).Warn("Acknowledgement timed out")
		i.Complete(nil, ErrAckTimeout)
	}
	c.metrics.pendingAcks.Set(float64(c.inflight.Len()))

	if next > 0 {
		c.ackTimer = c.after(next, c.checkAcks)
	}
}

func (c *Client) failInFlight(err error) {
	c.ackTimer.stop()
	c.ackTimer = nil
	for _, i := range c.inflight.Reset() {
		i.Complete(nil, err)
	}
	c.metrics.pendingAcks.Set(0)
}

func checkAck(ack *model.Packet, want uint8) error {
	if ack.Type != want {
		return fmt.Errorf("got %s, expected %s", model.Name(ack.Type), model.Name(want))
	}
	return nil
}

func checkSuback(topic string, ack *model.Packet) error {
	if err := checkAck(ack, model.SUBACK); err != nil {
		return err
	}
	if rc := ack.ReturnCodes[0]; rc == model.SubackFailure {
		return &SubscribeError{Topic: topic, Code: rc}
	}
	return nil
}

// validTopicName reports whether topic can be published to: non-empty UTF-8
// without wildcards or NUL.
func validTopicName(topic string) bool {
	return topic != "" && len(topic) <= 0xFFFF && utf8.ValidString(topic) &&
		!strings.ContainsAny(topic, "+#\x00")
}
