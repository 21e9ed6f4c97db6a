package events

import "encoding/json"

// Thread metadata delta keys on the graphql topic.
const (
	deltaThreadName          = "deltaThreadName"
	deltaThreadColor         = "deltaThreadColor"
	deltaThreadIcon          = "deltaThreadIcon"
	deltaThreadImage         = "deltaThreadImage"
	deltaThreadNickname      = "deltaThreadNickname"
	deltaParticipantsAdded   = "deltaParticipantsAdded"
	deltaParticipantsRemoved = "deltaParticipantsRemoved"
	deltaAdminAdded          = "deltaAdminAdded"
	deltaAdminRemoved        = "deltaAdminRemoved"
	deltaParticipantLeft     = "deltaParticipantLeftGroupThread"
)

// gqlDeltaKeys fixes the order keys are tried in when a delta carries more
// than one.
var gqlDeltaKeys = []string{
	deltaThreadName,
	deltaThreadColor,
	deltaThreadIcon,
	deltaThreadImage,
	deltaThreadNickname,
	deltaParticipantsAdded,
	deltaParticipantsRemoved,
	deltaAdminAdded,
	deltaAdminRemoved,
	deltaParticipantLeft,
}

type gqlImage struct {
	URI string `json:"uri"`
}

type gqlDelta struct {
	MessageMetadata *messageMetadata `json:"messageMetadata"`

	Name                string    `json:"name"`
	ThemeColor          string    `json:"themeColor"`
	ThreadIcon          string    `json:"threadIcon"`
	Image               *gqlImage `json:"image"`
	ParticipantID       id        `json:"participantId"`
	Nickname            string    `json:"nickname"`
	AddedParticipants   []id      `json:"addedParticipants"`
	RemovedParticipants []id      `json:"removedParticipants"`
	TargetID            id        `json:"targetId"`
	LeftParticipantFbID id        `json:"leftParticipantFbId"`
}

type gqlPayload struct {
	Deltas []map[string]json.RawMessage `json:"deltas"`
}

func (p *Parser) parseGraphQL(topic string, payload []byte) Event {
	var batch gqlPayload
	if !p.decode(topic, payload, &batch) {
		return nil
	}
	if batch.Deltas == nil {
		var single map[string]json.RawMessage
		if !p.decode(topic, payload, &single) {
			return nil
		}
		batch.Deltas = append(batch.Deltas, single)
	}

	for _, d := range batch.Deltas {
		if ev := p.parseGQLDelta(topic, d); ev != nil {
			return ev
		}
	}
	return nil
}

func (p *Parser) parseGQLDelta(topic string, d map[string]json.RawMessage) Event {
	for _, key := range gqlDeltaKeys {
		raw, ok := d[key]
		if !ok {
			continue
		}

		var gd gqlDelta
		if !p.decode(topic, raw, &gd) {
			return nil
		}
		tc, ok := gd.MessageMetadata.change()
		if !ok {
			return nil
		}
		return gd.event(key, tc)
	}
	return nil
}

func (gd *gqlDelta) event(key string, tc ThreadChange) Event {
	switch key {
	case deltaThreadName:
		return &ThreadName{ThreadChange: tc, Name: gd.Name}
	case deltaThreadColor:
		return &ThreadColor{ThreadChange: tc, Color: gd.ThemeColor}
	case deltaThreadIcon:
		return &ThreadEmoji{ThreadChange: tc, Emoji: gd.ThreadIcon}
	case deltaThreadImage:
		ev := &ThreadImage{ThreadChange: tc}
		if gd.Image != nil {
			ev.ImageURL = gd.Image.URI
		}
		return ev
	case deltaThreadNickname:
		return &Nickname{ThreadChange: tc, ParticipantID: string(gd.ParticipantID), Nickname: gd.Nickname}
	case deltaParticipantsAdded:
		return &ParticipantsAdded{ThreadChange: tc, ParticipantIDs: ids(gd.AddedParticipants)}
	case deltaParticipantsRemoved:
		return &ParticipantsRemoved{ThreadChange: tc, ParticipantIDs: ids(gd.RemovedParticipants)}
	case deltaAdminAdded:
		return &AdminAdded{ThreadChange: tc, TargetID: string(gd.TargetID)}
	case deltaAdminRemoved:
		return &AdminRemoved{ThreadChange: tc, TargetID: string(gd.TargetID)}
	case deltaParticipantLeft:
		return &ParticipantLeft{ThreadChange: tc, UserID: string(gd.LeftParticipantFbID)}
	}
	return nil
}
