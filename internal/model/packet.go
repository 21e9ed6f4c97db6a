package model

import "errors"

// Control Packets
const (
	CONNECT     = 1 << 4
	CONNACK     = 2 << 4
	PUBLISH     = 3 << 4
	PUBACK      = 4 << 4
	PUBREC      = 5 << 4
	PUBREL      = 6 << 4
	PUBCOMP     = 7 << 4
	SUBSCRIBE   = 8 << 4
	SUBACK      = 9 << 4
	UNSUBSCRIBE = 10 << 4
	UNSUBACK    = 11 << 4
	PINGREQ     = 12 << 4
	PINGRESP    = 13 << 4
	DISCONNECT  = 14 << 4

	SUBSCRIBESend = SUBSCRIBE | 2
)

// PUBLISH fixed header flags.
const (
	FlagRetain = 0x01
	FlagQoS    = 0x06
	FlagDup    = 0x08
)

// CONNACK return codes.
const (
	Accepted                     = 0
	RefusedProtocolVersion       = 1
	RefusedIdentifierRejected    = 2
	RefusedServerUnavailable     = 3
	RefusedBadUserNameOrPassword = 4
	RefusedNotAuthorized         = 5
)

// SubackFailure is the SUBACK return code for a rejected topic filter.
const SubackFailure = 0x80

// MaxRemainingLength is the largest value a 4 byte remaining length can hold.
const MaxRemainingLength = 268435455

var (
	ErrRemainingLengthTooLong   = errors.New("remaining length exceeds 4 bytes")
	ErrRemainingLengthTruncated = errors.New("remaining length truncated")
)

// Name returns the control packet name for a fixed header type nibble.
func Name(controlType uint8) string {
	switch controlType & 0xF0 {
	case CONNECT:
		return "CONNECT"
	case CONNACK:
		return "CONNACK"
	case PUBLISH:
		return "PUBLISH"
	case PUBACK:
		return "PUBACK"
	case PUBREC:
		return "PUBREC"
	case PUBREL:
		return "PUBREL"
	case PUBCOMP:
		return "PUBCOMP"
	case SUBSCRIBE:
		return "SUBSCRIBE"
	case SUBACK:
		return "SUBACK"
	case UNSUBSCRIBE:
		return "UNSUBSCRIBE"
	case UNSUBACK:
		return "UNSUBACK"
	case PINGREQ:
		return "PINGREQ"
	case PINGRESP:
		return "PINGRESP"
	case DISCONNECT:
		return "DISCONNECT"
	}
	return "UNKNOWN"
}

// Packet is a decoded inbound control packet.
// Only the fields relevant to Type are set.
type Packet struct {
	Type  uint8 // high nibble of the fixed header, e.g. PUBLISH
	Flags uint8 // low nibble of the fixed header

	// CONNACK
	SessionPresent bool
	ReturnCode     uint8

	// PUBLISH, PUBACK, SUBACK
	PacketID uint16

	// PUBLISH
	Topic   string
	Payload []byte
	QoS     uint8
	Retain  bool
	Dup     bool

	// SUBACK granted QoS / failure codes, one per requested topic filter.
	ReturnCodes []byte
}

func VariableLengthEncode(packet []byte, l int) []byte {
	for {
		eb := l % 128
		l /= 128
		if l > 0 {
			eb |= 128
		}
		packet = append(packet, byte(eb))
		if l <= 0 {
			break
		}
	}
	return packet
}

// VariableLengthDecode reads a remaining length starting at b[offs].
// It returns the value and the number of bytes it occupied.
func VariableLengthDecode(b []byte, offs int) (int, int, error) {
	l, mul := 0, 1
	for n := 0; ; n++ {
		if n == 4 {
			return 0, 0, ErrRemainingLengthTooLong
		}
		if offs+n >= len(b) {
			return 0, 0, ErrRemainingLengthTruncated
		}

		eb := b[offs+n]
		l += int(eb&127) * mul
		mul *= 128
		if eb&128 == 0 {
			return l, n + 1, nil
		}
	}
}

func LengthToNumberOfVariableLengthBytes(l int) int {
	switch {
	case l < 128:
		return 1
	case l < 16384:
		return 2
	case l < 2097152:
		return 3
	default:
		return 4
	}
}
