package mqttmsgr

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected     = errors.New("not connected")
	ErrClosed           = errors.New("client closed")
	ErrConnectionClosed = errors.New("connection closed")
	ErrConnectTimeout   = errors.New("timeout waiting for CONNACK")
	ErrAckTimeout       = errors.New("timeout waiting for acknowledgement")
	ErrKeepAliveTimeout = errors.New("no PINGRESP within keep alive period")
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
	ErrQueueFull        = errors.New("outbound queue full")
	ErrInvalidQoS       = errors.New("invalid QoS, must be 0 or 1")
	ErrInvalidTopic     = errors.New("invalid topic")
	ErrNoPacketID       = errors.New("no free packet identifier")

	// ErrReauthRequired is matched by refusals that a retry with the same
	// session cannot fix.
	ErrReauthRequired = errors.New("session rejected, re-authentication required")
)

var refusalReasons = [...]string{
	1: "unacceptable protocol version",
	2: "identifier rejected",
	3: "server unavailable",
	4: "bad user name or password",
	5: "not authorized",
}

// RefusedError is returned when the broker answers CONNECT with a non-zero
// CONNACK return code.
type RefusedError struct {
	Code uint8
}

func (e *RefusedError) Error() string {
	return "connection refused: " + e.Reason()
}

// Reason returns the fixed description of the return code.
func (e *RefusedError) Reason() string {
	if int(e.Code) < len(refusalReasons) && refusalReasons[e.Code] != "" {
		return refusalReasons[e.Code]
	}
	return fmt.Sprintf("unknown return code %d", e.Code)
}

// Retryable reports whether reconnecting with the same session may succeed.
// Codes 1 to 3 are protocol or server problems, anything else points at the
// credentials.
func (e *RefusedError) Retryable() bool {
	return e.Code >= 1 && e.Code <= 3
}

func (e *RefusedError) Is(target error) bool {
	return target == ErrReauthRequired && !e.Retryable()
}

// SubscribeError is returned when the broker rejects a topic filter in SUBACK.
type SubscribeError struct {
	Topic string
	Code  uint8
}

func (e *SubscribeError) Error() string {
	return fmt.Sprintf("subscription to %q refused with return code 0x%02x", e.Topic, e.Code)
}

func retryable(err error) bool {
	var re *RefusedError
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return true
}
