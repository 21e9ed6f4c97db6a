// Package proto encodes the MQTT 3.1.1 control packets the client sends and
// decodes the ones it receives. It keeps no state and performs no I/O.
package proto

import (
	"github.com/RoanBrand/mqttmsgr/internal/model"
)

const protocolLevel = 4

var protocolName = []byte{0, 4, 'M', 'Q', 'T', 'T'}

// EncodeRemainingLength returns the variable length encoding of n.
// n must be in the range 0..268435455.
func EncodeRemainingLength(n int) []byte {
	return model.VariableLengthEncode(make([]byte, 0, 4), n)
}

// DecodeRemainingLength reads a remaining length field starting at b[offs].
func DecodeRemainingLength(b []byte, offs int) (value, consumed int, err error) {
	value, consumed, err = model.VariableLengthDecode(b, offs)
	if err != nil {
		return 0, 0, malformed(err.Error())
	}
	return
}

// EncodeConnect builds a clean-session CONNECT without credentials or will.
// Authentication is carried by the transport's Cookie header.
func EncodeConnect(clientID string, keepAlive uint16) []byte {
	vhLen := len(protocolName) + 4 // level, flags, keep alive
	rl := vhLen + 2 + len(clientID)

	p := make([]byte, 1, 1+model.LengthToNumberOfVariableLengthBytes(rl)+rl)
	p[0] = model.CONNECT
	p = model.VariableLengthEncode(p, rl)
	p = append(p, protocolName...)
	p = append(p, protocolLevel, 0x02, byte(keepAlive>>8), byte(keepAlive))
	p = appendString(p, clientID)
	return p
}

// EncodeSubscribe builds a SUBSCRIBE with a single topic filter.
func EncodeSubscribe(pID uint16, topic string, qos uint8) []byte {
	rl := 2 + 2 + len(topic) + 1

	p := make([]byte, 1, 1+model.LengthToNumberOfVariableLengthBytes(rl)+rl)
	p[0] = model.SUBSCRIBESend
	p = model.VariableLengthEncode(p, rl)
	p = append(p, byte(pID>>8), byte(pID))
	p = appendString(p, topic)
	p = append(p, qos)
	return p
}

// EncodePublish builds a PUBLISH for m. pID is only written when m.QoS > 0.
func EncodePublish(m *model.PubMessage, pID uint16) []byte {
	rl := 2 + len(m.Topic) + len(m.Payload)
	if m.QoS > 0 {
		rl += 2
	}

	p := make([]byte, 1, 1+model.LengthToNumberOfVariableLengthBytes(rl)+rl)
	p[0] = model.PUBLISH | (m.QoS << 1)
	if m.Retain {
		p[0] |= model.FlagRetain
	}
	p = model.VariableLengthEncode(p, rl)
	p = appendString(p, m.Topic)
	if m.QoS > 0 {
		p = append(p, byte(pID>>8), byte(pID))
	}
	p = append(p, m.Payload...)
	return p
}

func EncodePubAck(pID uint16) []byte {
	return []byte{model.PUBACK, 2, byte(pID >> 8), byte(pID)}
}

func EncodeDisconnect() []byte {
	return []byte{model.DISCONNECT, 0}
}

func EncodePingReq() []byte {
	return []byte{model.PINGREQ, 0}
}

func appendString(p []byte, s string) []byte {
	p = append(p, byte(len(s)>>8), byte(len(s)))
	return append(p, s...)
}
