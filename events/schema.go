package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

var errNotScalar = errors.New("expected string or number")

// id accepts both JSON strings and numbers; the broker is not consistent.
type id string

func (i *id) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*i = id(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errNotScalar
	}
	*i = id(n.String())
	return nil
}

// millis is a unix timestamp in milliseconds, sent as a number or a numeric string.
type millis int64

func (m *millis) UnmarshalJSON(b []byte) error {
	var i id
	if err := i.UnmarshalJSON(b); err != nil {
		return err
	}
	if i == "" {
		return nil
	}

	v, err := strconv.ParseInt(string(i), 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(string(i), 64)
		if ferr != nil {
			return err
		}
		v = int64(f)
	}
	*m = millis(v)
	return nil
}

func (m millis) time() time.Time {
	if m == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(m))
}

func ids(in []id) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i := range in {
		out[i] = string(in[i])
	}
	return out
}

type threadKey struct {
	ThreadFbID    id `json:"threadFbId"`
	OtherUserFbID id `json:"otherUserFbId"`
}

// resolve applies the thread attribution rule: a thread id means a group
// thread, an other-user id means a one-to-one thread, anything else cannot be
// attributed.
func (k *threadKey) resolve() (Thread, bool) {
	switch {
	case k == nil:
		return Thread{}, false
	case k.ThreadFbID != "":
		return Thread{ThreadID: string(k.ThreadFbID), IsGroup: true}, true
	case k.OtherUserFbID != "":
		return Thread{ThreadID: string(k.OtherUserFbID)}, true
	}
	return Thread{}, false
}

type messageMetadata struct {
	ThreadKey *threadKey `json:"threadKey"`
	ActorFbID id         `json:"actorFbId"`
	MessageID id         `json:"messageId"`
	Timestamp millis     `json:"timestamp"`
}

func (m *messageMetadata) change() (ThreadChange, bool) {
	if m == nil {
		return ThreadChange{}, false
	}
	t, ok := m.ThreadKey.resolve()
	if !ok {
		return ThreadChange{}, false
	}
	return ThreadChange{Thread: t, ActorID: string(m.ActorFbID), Timestamp: m.Timestamp.time()}, true
}
