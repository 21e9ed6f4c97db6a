// Package events turns the JSON payloads published on the messaging broker's
// topics into typed events.
//
// Every event implements Event. Consumers switch on the concrete type:
//
//	switch e := ev.(type) {
//	case *events.Message:
//		fmt.Println(e.ThreadID, e.Body)
//	case *events.Typing:
//		...
//	}
package events

import "time"

// Kind tags each event type.
type Kind uint8

const (
	KindMessage Kind = iota + 1
	KindReaction
	KindTyping
	KindReadReceipt
	KindDeliveryReceipt
	KindPresence
	KindThreadName
	KindThreadColor
	KindThreadEmoji
	KindThreadImage
	KindNickname
	KindParticipantsAdded
	KindParticipantsRemoved
	KindAdminAdded
	KindAdminRemoved
	KindParticipantLeft
	KindCall
)

var kindNames = [...]string{
	KindMessage:             "message",
	KindReaction:            "reaction",
	KindTyping:              "typing",
	KindReadReceipt:         "read_receipt",
	KindDeliveryReceipt:     "delivery_receipt",
	KindPresence:            "presence",
	KindThreadName:          "thread_name",
	KindThreadColor:         "thread_color",
	KindThreadEmoji:         "thread_emoji",
	KindThreadImage:         "thread_image",
	KindNickname:            "nickname",
	KindParticipantsAdded:   "participants_added",
	KindParticipantsRemoved: "participants_removed",
	KindAdminAdded:          "admin_added",
	KindAdminRemoved:        "admin_removed",
	KindParticipantLeft:     "participant_left",
	KindCall:                "call",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "unknown"
}

// Event is one decoded realtime event. The set of implementations is closed.
type Event interface {
	Kind() Kind
	isEvent()
}

// Thread identifies the conversation an event belongs to.
// IsGroup is true when the thread key carried a thread id rather than the
// other participant's user id.
type Thread struct {
	ThreadID string
	IsGroup  bool
}

// ThreadChange carries the fields common to every thread metadata change.
type ThreadChange struct {
	Thread
	ActorID   string
	Timestamp time.Time
}

type Attachment struct {
	ID       string
	Type     string
	URL      string
	Filename string
}

type Message struct {
	Thread
	SenderID    string
	MessageID   string
	Body        string
	Timestamp   time.Time
	Attachments []Attachment
}

type ReactionKind uint8

const (
	ReactionNone ReactionKind = iota
	ReactionLike
	ReactionLove
	ReactionHaha
	ReactionWow
	ReactionSad
	ReactionAngry
	ReactionCare
)

var reactionNames = [...]string{"none", "like", "love", "haha", "wow", "sad", "angry", "care"}

func (r ReactionKind) String() string {
	if int(r) < len(reactionNames) {
		return reactionNames[r]
	}
	return "none"
}

type Reaction struct {
	Thread
	MessageID string
	UserID    string
	Emoji     string       // glyph as received, empty when removed
	Reaction  ReactionKind // ReactionNone for glyphs outside the fixed table
	Removed   bool
}

type Typing struct {
	Thread
	UserID   string
	IsTyping bool
}

type ReadReceipt struct {
	Thread
	ReaderID  string
	Timestamp time.Time
}

type DeliveryReceipt struct {
	Thread
	UserID     string
	MessageIDs []string
	Timestamp  time.Time
}

type PresenceStatus uint8

const (
	PresenceOffline PresenceStatus = iota
	PresenceActive
	PresenceIdle
)

func (s PresenceStatus) String() string {
	switch s {
	case PresenceActive:
		return "active"
	case PresenceIdle:
		return "idle"
	}
	return "offline"
}

type Presence struct {
	UserID     string
	Status     PresenceStatus
	LastActive time.Time
}

type ThreadName struct {
	ThreadChange
	Name string
}

type ThreadColor struct {
	ThreadChange
	Color string
}

type ThreadEmoji struct {
	ThreadChange
	Emoji string
}

type ThreadImage struct {
	ThreadChange
	ImageURL string
}

type Nickname struct {
	ThreadChange
	ParticipantID string
	Nickname      string
}

type ParticipantsAdded struct {
	ThreadChange
	ParticipantIDs []string
}

type ParticipantsRemoved struct {
	ThreadChange
	ParticipantIDs []string
}

type AdminAdded struct {
	ThreadChange
	TargetID string
}

type AdminRemoved struct {
	ThreadChange
	TargetID string
}

type ParticipantLeft struct {
	ThreadChange
	UserID string
}

type CallStatus uint8

const (
	CallMissed CallStatus = iota
	CallStarted
	CallEnded
)

func (s CallStatus) String() string {
	switch s {
	case CallStarted:
		return "started"
	case CallEnded:
		return "ended"
	}
	return "missed"
}

type Call struct {
	Thread
	CallID    string
	CallerID  string
	Status    CallStatus
	IsVideo   bool
	Timestamp time.Time
}

func (*Message) Kind() Kind             { return KindMessage }
func (*Reaction) Kind() Kind            { return KindReaction }
func (*Typing) Kind() Kind              { return KindTyping }
func (*ReadReceipt) Kind() Kind         { return KindReadReceipt }
func (*DeliveryReceipt) Kind() Kind     { return KindDeliveryReceipt }
func (*Presence) Kind() Kind            { return KindPresence }
func (*ThreadName) Kind() Kind          { return KindThreadName }
func (*ThreadColor) Kind() Kind         { return KindThreadColor }
func (*ThreadEmoji) Kind() Kind         { return KindThreadEmoji }
func (*ThreadImage) Kind() Kind         { return KindThreadImage }
func (*Nickname) Kind() Kind            { return KindNickname }
func (*ParticipantsAdded) Kind() Kind   { return KindParticipantsAdded }
func (*ParticipantsRemoved) Kind() Kind { return KindParticipantsRemoved }
func (*AdminAdded) Kind() Kind          { return KindAdminAdded }
func (*AdminRemoved) Kind() Kind        { return KindAdminRemoved }
func (*ParticipantLeft) Kind() Kind     { return KindParticipantLeft }
func (*Call) Kind() Kind                { return KindCall }

func (*Message) isEvent()             {}
func (*Reaction) isEvent()            {}
func (*Typing) isEvent()              {}
func (*ReadReceipt) isEvent()         {}
func (*DeliveryReceipt) isEvent()     {}
func (*Presence) isEvent()            {}
func (*ThreadName) isEvent()          {}
func (*ThreadColor) isEvent()         {}
func (*ThreadEmoji) isEvent()         {}
func (*ThreadImage) isEvent()         {}
func (*Nickname) isEvent()            {}
func (*ParticipantsAdded) isEvent()   {}
func (*ParticipantsRemoved) isEvent() {}
func (*AdminAdded) isEvent()          {}
func (*AdminRemoved) isEvent()        {}
func (*ParticipantLeft) isEvent()     {}
func (*Call) isEvent()                {}
