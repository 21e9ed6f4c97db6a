package events

import "strings"

// Topics the broker publishes events on.
const (
	TopicMessageSync     = "/t_ms"
	TopicCall            = "/t_rtc"
	TopicPresence        = "/orca_presence"
	TopicTyping          = "/orca_typing_notifications"
	TopicGraphQL         = "/graphql"
	TopicMessagingEvents = "/messaging_events"

	// PersonalTopicPrefix is followed by the user id. Payloads have the
	// message-sync shape.
	PersonalTopicPrefix = "/t_ms_p/"

	TopicGroupDelta  = "/t_ms_gd"
	TopicAdminText   = "/t_admin"
	TopicPresenceSub = "/t_presence_sub"
	TopicMessageBody = "/t_body"
	TopicRegionHint  = "/t_region_hint"
)

func PersonalTopic(userID string) string {
	return PersonalTopicPrefix + userID
}

// SubscribeTopics returns the topic set subscribed to after every successful
// CONNACK, in subscription order.
func SubscribeTopics(userID string) []string {
	return []string{
		TopicMessageSync,
		TopicCall,
		TopicPresence,
		TopicTyping,
		TopicGraphQL,
		TopicMessagingEvents,
		PersonalTopic(userID),
		TopicGroupDelta,
		TopicAdminText,
		TopicPresenceSub,
		TopicMessageBody,
		TopicRegionHint,
	}
}

func isPersonalTopic(topic string) bool {
	return strings.HasPrefix(topic, PersonalTopicPrefix) && len(topic) > len(PersonalTopicPrefix)
}
