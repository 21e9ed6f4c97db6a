package events

import (
	"encoding/json"
	"io"

	log "github.com/sirupsen/logrus"
)

// Parser maps (topic, payload) pairs to events. It is safe for concurrent use.
type Parser struct {
	log log.FieldLogger
}

// NewParser returns a Parser that logs undecodable payloads at debug level.
// A nil logger discards them.
func NewParser(logger log.FieldLogger) *Parser {
	if logger == nil {
		l := log.New()
		l.Out = io.Discard
		logger = l
	}
	return &Parser{log: logger}
}

var quiet = NewParser(nil)

// Parse is Parser.Parse without logging.
func Parse(topic string, payload []byte) Event {
	return quiet.Parse(topic, payload)
}

// Parse decodes payload according to the schema of topic. It returns nil when
// the topic is not an event topic or the payload has no recognised shape.
func (p *Parser) Parse(topic string, payload []byte) Event {
	var ev Event
	switch topic {
	case TopicMessageSync:
		ev = p.parseSync(topic, payload)
	case TopicCall:
		ev = p.parseCall(topic, payload)
	case TopicPresence:
		ev = p.parsePresence(topic, payload)
	case TopicTyping:
		ev = p.parseTyping(topic, payload)
	case TopicGraphQL:
		ev = p.parseGraphQL(topic, payload)
	case TopicMessagingEvents:
		ev = p.parseMessagingEvent(topic, payload)
	default:
		if isPersonalTopic(topic) {
			ev = p.parseSync(topic, payload)
		}
	}
	return ev
}

// decode unmarshals payload into v, logging and reporting failure.
func (p *Parser) decode(topic string, payload []byte, v interface{}) bool {
	if err := json.Unmarshal(payload, v); err != nil {
		p.log.WithFields(log.Fields{
			"topic": topic,
			"err":   err,
		}).Debug("Undecodable event payload")
		return false
	}
	return true
}

type attachment struct {
	ID       id     `json:"id"`
	Type     string `json:"type"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

type delta struct {
	MessageMetadata *messageMetadata `json:"messageMetadata"`
	Body            string           `json:"body"`
	Attachments     []attachment     `json:"attachments"`

	// reactions
	Reaction  *string    `json:"reaction"`
	ThreadKey *threadKey `json:"threadKey"`
	MessageID id         `json:"messageId"`
	UserID    id         `json:"userId"`
	Action    int        `json:"action"`
}

type syncPayload struct {
	Deltas []json.RawMessage `json:"deltas"`
	Delta  json.RawMessage   `json:"delta"`
	delta
}

func (p *Parser) parseSync(topic string, payload []byte) Event {
	var sp syncPayload
	if !p.decode(topic, payload, &sp) {
		return nil
	}

	switch {
	case sp.Deltas != nil:
		for _, raw := range sp.Deltas {
			var d delta
			if !p.decode(topic, raw, &d) {
				continue
			}
			if ev := d.event(); ev != nil {
				return ev
			}
		}
		return nil
	case len(sp.Delta) > 0 && string(sp.Delta) != "null":
		var d delta
		if !p.decode(topic, sp.Delta, &d) {
			return nil
		}
		return d.event()
	case sp.MessageMetadata != nil:
		return sp.delta.message()
	}
	return nil
}

// event returns the reaction or message carried by d, or nil.
func (d *delta) event() Event {
	if d.Reaction != nil {
		return d.reaction()
	}
	if d.MessageMetadata != nil {
		return d.message()
	}
	return nil
}

func (d *delta) message() Event {
	t, ok := d.MessageMetadata.ThreadKey.resolve()
	if !ok {
		return nil
	}

	m := &Message{
		Thread:    t,
		SenderID:  string(d.MessageMetadata.ActorFbID),
		MessageID: string(d.MessageMetadata.MessageID),
		Body:      d.Body,
		Timestamp: d.MessageMetadata.Timestamp.time(),
	}
	for _, a := range d.Attachments {
		m.Attachments = append(m.Attachments, Attachment{
			ID:       string(a.ID),
			Type:     a.Type,
			URL:      a.URL,
			Filename: a.Filename,
		})
	}
	return m
}

func (d *delta) reaction() Event {
	key := d.ThreadKey
	if key == nil && d.MessageMetadata != nil {
		key = d.MessageMetadata.ThreadKey
	}
	t, ok := key.resolve()
	if !ok {
		return nil
	}

	r := &Reaction{
		Thread:    t,
		MessageID: string(d.MessageID),
		UserID:    string(d.UserID),
		Emoji:     *d.Reaction,
		Reaction:  reactionKind(*d.Reaction),
		Removed:   d.Action == 1 || *d.Reaction == "",
	}
	if r.MessageID == "" && d.MessageMetadata != nil {
		r.MessageID = string(d.MessageMetadata.MessageID)
	}
	if r.UserID == "" && d.MessageMetadata != nil {
		r.UserID = string(d.MessageMetadata.ActorFbID)
	}
	if r.Removed {
		r.Emoji, r.Reaction = "", ReactionNone
	}
	return r
}
