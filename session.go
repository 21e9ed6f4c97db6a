package mqttmsgr

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/RoanBrand/mqttmsgr/events"
)

// Session is the authenticated identity a Client connects with. It is read
// once per connect attempt.
type Session struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`

	// SequenceID is the last sync sequence seen. If 0 the current time in ms
	// is sent instead.
	SequenceID int64 `json:"sequence_id"`

	Cookies []Cookie `json:"cookies"`
}

type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// LoadSession reads a Session from a JSON file.
func LoadSession(fPath string) (Session, error) {
	var s Session
	b, err := os.ReadFile(fPath)
	if err != nil {
		return s, errors.New("error opening session file: " + err.Error())
	}
	if err = json.Unmarshal(b, &s); err != nil {
		return s, errors.New("error reading session file: " + err.Error())
	}
	if s.UserID == "" {
		return s, errors.New("session file has no user_id")
	}
	return s, nil
}

// Connection URL query parameters.
const (
	paramClientID    = "cid"
	paramSequenceID  = "sid"
	paramUserID      = "uid"
	paramDeviceID    = "did"
	paramInitial     = "ic"
	paramBusVersion  = "bv"
	paramSubscribeTo = "st"

	busVersion = "2"
)

// brokerURL adds the session's identity and the topics to subscribe to the
// configured broker URL.
func (c *Client) brokerURL(s *Session) (string, error) {
	u, err := url.Parse(c.cfg.Broker.URL)
	if err != nil {
		return "", err
	}

	sid := s.SequenceID
	if sid <= 0 {
		sid = c.clock.Now().UnixMilli()
	}

	q := u.Query()
	q.Set(paramClientID, c.clientID)
	q.Set(paramSequenceID, strconv.FormatInt(sid, 10))
	q.Set(paramUserID, s.UserID)
	q.Set(paramDeviceID, s.DeviceID)
	q.Set(paramInitial, "1")
	q.Set(paramBusVersion, busVersion)
	q.Set(paramSubscribeTo, strings.Join(events.SubscribeTopics(s.UserID), ","))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// header builds the upgrade request headers. Cookie values are sent as is.
func (c *Client) header(s *Session) http.Header {
	h := http.Header{}
	if ua := c.cfg.Broker.UserAgent; ua != "" {
		h.Set("User-Agent", ua)
	}
	if o := c.cfg.Broker.Origin; o != "" {
		h.Set("Origin", o)
	}
	if r := c.cfg.Broker.Referer; r != "" {
		h.Set("Referer", r)
	}
	if cookie := cookieHeader(s.Cookies); cookie != "" {
		h.Set("Cookie", cookie)
	}
	return h
}

func cookieHeader(cookies []Cookie) string {
	var sb strings.Builder
	for i, ck := range cookies {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(ck.Name)
		sb.WriteByte('=')
		sb.WriteString(ck.Value)
	}
	return sb.String()
}
