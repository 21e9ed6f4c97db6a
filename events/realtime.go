package events

type presencePayload struct {
	UserID     id     `json:"userId"`
	Status     string `json:"status"`
	LastActive millis `json:"lastActive"`
}

func (p *Parser) parsePresence(topic string, payload []byte) Event {
	var pp presencePayload
	if !p.decode(topic, payload, &pp) || pp.UserID == "" {
		return nil
	}

	ev := &Presence{UserID: string(pp.UserID), LastActive: pp.LastActive.time()}
	switch pp.Status {
	case "active":
		ev.Status = PresenceActive
	case "idle":
		ev.Status = PresenceIdle
	default:
		ev.Status = PresenceOffline
	}
	return ev
}

// typingOn is the state value sent while a user is typing.
const typingOn = 1

type typingPayload struct {
	SenderFbID id  `json:"sender_fbid"`
	State      int `json:"state"`
	Thread     id  `json:"thread"`
}

// parseTyping attributes the notification to the group thread when one is
// named, otherwise to the one-to-one thread with the sender.
func (p *Parser) parseTyping(topic string, payload []byte) Event {
	var tp typingPayload
	if !p.decode(topic, payload, &tp) || tp.SenderFbID == "" {
		return nil
	}

	ev := &Typing{UserID: string(tp.SenderFbID), IsTyping: tp.State == typingOn}
	if tp.Thread != "" {
		ev.Thread = Thread{ThreadID: string(tp.Thread), IsGroup: true}
	} else {
		ev.Thread = Thread{ThreadID: string(tp.SenderFbID)}
	}
	return ev
}

type callPayload struct {
	CallID    id         `json:"callId"`
	ThreadKey *threadKey `json:"threadKey"`
	CallerID  id         `json:"callerId"`
	Status    string     `json:"status"`
	IsVideo   bool       `json:"isVideo"`
	Timestamp millis     `json:"timestamp"`
}

func (p *Parser) parseCall(topic string, payload []byte) Event {
	var cp callPayload
	if !p.decode(topic, payload, &cp) || cp.CallID == "" {
		return nil
	}

	ev := &Call{
		CallID:    string(cp.CallID),
		CallerID:  string(cp.CallerID),
		IsVideo:   cp.IsVideo,
		Timestamp: cp.Timestamp.time(),
	}
	if cp.ThreadKey != nil {
		t, ok := cp.ThreadKey.resolve()
		if !ok {
			return nil
		}
		ev.Thread = t
	}

	switch cp.Status {
	case "started":
		ev.Status = CallStarted
	case "ended":
		ev.Status = CallEnded
	default:
		ev.Status = CallMissed
	}
	return ev
}

const (
	receiptRead     = "read_receipt"
	receiptDelivery = "delivery_receipt"
)

type receiptPayload struct {
	Type       string     `json:"type"`
	ThreadKey  *threadKey `json:"threadKey"`
	ActorFbID  id         `json:"actorFbId"`
	MessageIDs []id       `json:"messageIds"`
	Watermark  millis     `json:"watermarkTimestamp"`
	Timestamp  millis     `json:"timestamp"`
}

func (p *Parser) parseMessagingEvent(topic string, payload []byte) Event {
	var rp receiptPayload
	if !p.decode(topic, payload, &rp) {
		return nil
	}

	t, ok := rp.ThreadKey.resolve()
	if !ok {
		return nil
	}

	switch rp.Type {
	case receiptRead:
		ts := rp.Watermark
		if ts == 0 {
			ts = rp.Timestamp
		}
		return &ReadReceipt{Thread: t, ReaderID: string(rp.ActorFbID), Timestamp: ts.time()}
	case receiptDelivery:
		return &DeliveryReceipt{
			Thread:     t,
			UserID:     string(rp.ActorFbID),
			MessageIDs: ids(rp.MessageIDs),
			Timestamp:  rp.Timestamp.time(),
		}
	}
	return nil
}
