package mqttmsgr

import (
	"github.com/RoanBrand/mqttmsgr/internal/model"
	"github.com/RoanBrand/mqttmsgr/internal/proto"
	log "github.com/sirupsen/logrus"
)

// handleMessage processes every control packet in one transport message, in
// order. A frame that can not be decoded is dropped and the connection stays
// up.
func (c *Client) handleMessage(conn *connection, b []byte) {
	for len(b) > 0 && c.conn == conn {
		frame, rest, err := proto.Next(b)
		if err != nil {
			c.dropFrame(conn, b, err)
			return
		}
		b = rest

		p, err := proto.Decode(frame)
		if err != nil {
			c.dropFrame(conn, frame, err)
			continue
		}

		c.metrics.received(p.Type)
		conn.log.WithField("type", model.Name(p.Type)).Debug("Packet received")
		c.handlePacket(conn, p)
	}
}

func (c *Client) dropFrame(conn *connection, frame []byte, err error) {
	c.metrics.decodeErrors.Inc()
	conn.log.WithFields(log.Fields{
		"len": len(frame),
		"err": err,
	}).Warn("Dropping undecodable frame")
}

func (c *Client) handlePacket(conn *connection, p *model.Packet) {
	switch p.Type {
	case model.CONNACK:
		c.connackReceived(conn, p)
	case model.PUBLISH:
		if !conn.established {
			conn.log.WithField("topic", p.Topic).Warn("PUBLISH before CONNACK. Dropping")
			return
		}
		c.handlePublish(conn, p)
	case model.PUBACK, model.SUBACK:
		c.handleAck(p)
	case model.PINGRESP:
		conn.pingOutstanding = false
	}
}

func (c *Client) handlePublish(conn *connection, p *model.Packet) {
	switch p.QoS {
	case 2:
		conn.log.WithFields(log.Fields{
			"topic":    p.Topic,
			"packetID": p.PacketID,
		}).Warn("QoS 2 PUBLISH not supported. Dropping")
		return
	case 1:
		if err := c.sendPacket(conn, proto.EncodePubAck(p.PacketID), model.PUBACK); err != nil {
			return
		}
	}

	c.emit(func(l Listener) { l.OnMessage(p.Topic, p.Payload) })

	if ev := c.parser.Parse(p.Topic, p.Payload); ev != nil {
		c.metrics.eventsTotal.WithLabelValues(ev.Kind().String()).Inc()
		c.emit(func(l Listener) { l.OnEvent(ev) })
	}
}

func (c *Client) handleAck(p *model.Packet) {
	i := c.inflight.Remove(p.PacketID)
	if i == nil {
		c.log.WithFields(log.Fields{
			"type":     model.Name(p.Type),
			"packetID": p.PacketID,
		}).Debug("Acknowledgement for unknown packet ID")
		return
	}

	c.metrics.pendingAcks.Set(float64(c.inflight.Len()))
	i.Complete(p, nil)

	// A flush stopped by a packet identifier shortage resumes once one is free.
	if conn := c.conn; conn != nil && conn.established && c.out.Len() > 0 {
		c.flushQueue(conn)
	}
}
