package proto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/RoanBrand/mqttmsgr/internal/model"
)

// ErrMalformed is wrapped by every decode error.
var ErrMalformed = errors.New("malformed packet")

func malformed(msg string) error {
	return fmt.Errorf("%w: %s", ErrMalformed, msg)
}

// Next splits the first complete control packet off b.
// A websocket message may carry more than one packet back to back.
func Next(b []byte) (frame, rest []byte, err error) {
	if len(b) < 2 {
		return nil, nil, malformed("frame shorter than fixed header")
	}

	rl, n, err := DecodeRemainingLength(b, 1)
	if err != nil {
		return nil, nil, err
	}

	end := 1 + n + rl
	if end > len(b) {
		return nil, nil, malformed(fmt.Sprintf("remaining length %d exceeds frame (%d bytes available)", rl, len(b)-1-n))
	}

	return b[:end], b[end:], nil
}

// Decode parses a single inbound control packet. Only the packet types a
// server sends to this client are understood: CONNACK, PUBLISH, PUBACK,
// SUBACK and PINGRESP.
func Decode(b []byte) (*model.Packet, error) {
	if len(b) < 2 {
		return nil, malformed("frame shorter than fixed header")
	}

	p := &model.Packet{Type: b[0] & 0xF0, Flags: b[0] & 0x0F}

	rl, n, err := DecodeRemainingLength(b, 1)
	if err != nil {
		return nil, err
	}

	vh := 1 + n // start of variable header
	if vh+rl > len(b) {
		return nil, malformed(model.Name(p.Type) + " truncated")
	}
	body := b[vh : vh+rl]

	switch p.Type {
	case model.CONNACK:
		if rl != 2 {
			return nil, malformed("CONNACK remaining length must be 2")
		}
		p.SessionPresent = body[0]&0x01 > 0
		p.ReturnCode = body[1]
	case model.PUBLISH:
		if err := decodePublish(p, body); err != nil {
			return nil, err
		}
	case model.PUBACK:
		if rl != 2 {
			return nil, malformed("PUBACK remaining length must be 2")
		}
		p.PacketID = binary.BigEndian.Uint16(body)
	case model.SUBACK:
		if rl < 3 {
			return nil, malformed("SUBACK without return codes")
		}
		p.PacketID = binary.BigEndian.Uint16(body)
		p.ReturnCodes = body[2:]
	case model.PINGRESP:
		if rl != 0 {
			return nil, malformed("PINGRESP remaining length must be 0")
		}
	case 0, 0xF0:
		return nil, malformed(fmt.Sprintf("invalid control packet type %d", p.Type>>4))
	default:
		return nil, malformed("unexpected " + model.Name(p.Type) + " from server")
	}

	return p, nil
}

func decodePublish(p *model.Packet, body []byte) error {
	p.QoS = (p.Flags & model.FlagQoS) >> 1
	p.Retain = p.Flags&model.FlagRetain > 0
	p.Dup = p.Flags&model.FlagDup > 0

	if p.QoS == 3 {
		return malformed("PUBLISH with QoS 3")
	}
	if p.Dup && p.QoS == 0 {
		return malformed("PUBLISH with DUP set for QoS 0")
	}
	if len(body) < 2 {
		return malformed("PUBLISH without topic length")
	}

	tLen := int(binary.BigEndian.Uint16(body))
	offs := 2 + tLen
	if offs > len(body) {
		return malformed("PUBLISH topic truncated")
	}

	topic := body[2:offs]
	if err := checkUTF8(topic, true); err != nil {
		return malformed("invalid PUBLISH topic: " + err.Error())
	}
	p.Topic = string(topic)

	if p.QoS > 0 {
		if offs+2 > len(body) {
			return malformed("PUBLISH packet identifier truncated")
		}
		p.PacketID = binary.BigEndian.Uint16(body[offs:])
		offs += 2
	}

	p.Payload = make([]byte, len(body)-offs)
	copy(p.Payload, body[offs:])
	return nil
}

var errInvalidUTF = errors.New("invalid UTF8")
var errContainsWildCards = errors.New("contains wildcard characters")

// [MQTT-1.5.3-1] [MQTT-1.5.3-3]
func checkUTF8(str []byte, checkWildCards bool) error {
	for i := 0; i < len(str); {
		if str[i] == 0 { // [MQTT-1.5.3-2]
			return errInvalidUTF
		}

		if checkWildCards && (str[i] == '+' || str[i] == '#') { // [MQTT-3.3.2-2]
			return errContainsWildCards
		} else if str[i]&0x80 == 0 {
			i++
		} else {
			r, size := utf8.DecodeRune(str[i:])
			if r == utf8.RuneError {
				return errInvalidUTF
			}
			i += size
		}
	}
	return nil
}
