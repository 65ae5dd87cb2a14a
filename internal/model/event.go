package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event kinds pushed over the live channels.
const (
	EventNotificationCreated = "notification.created"
	EventMessageDirect       = "message.direct"
	EventMessageGroup        = "message.group"
)

// DeliveryEvent is the wire envelope for live push. Recipients is routing
// metadata resolved at send time; the hub strips it before writing the event
// to a client connection.
type DeliveryEvent struct {
	Kind            string          `json:"kind"`
	ConversationKey string          `json:"conversation_key"`
	SenderID        uuid.UUID       `json:"sender_id"`
	Recipients      []uuid.UUID     `json:"recipients,omitempty"`
	Payload         json.RawMessage `json:"payload"`
	SentAt          time.Time       `json:"sent_at"`
}

// NotificationPayload is the event payload for notification.created. It
// carries enough for the client to update unread state without a fetch.
type NotificationPayload struct {
	NotificationID uuid.UUID `json:"notification_id"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
}

// MessagePayload is the event payload for message.direct and message.group.
type MessagePayload struct {
	MessageID uuid.UUID  `json:"message_id"`
	SenderID  uuid.UUID  `json:"sender_id"`
	GroupID   *uuid.UUID `json:"group_id,omitempty"`
	Content   string     `json:"content"`
}

// Conversation key prefixes
const (
	userKeyPrefix  = "user:"
	groupKeyPrefix = "group:"
)

// UserConversationKey returns the unread-scope key for a direct conversation
// with the given peer. The recipient of a direct message tracks unread under
// the sender's key.
func UserConversationKey(peerID uuid.UUID) string {
	return userKeyPrefix + peerID.String()
}

// GroupConversationKey returns the unread-scope key for a group conversation.
func GroupConversationKey(groupID uuid.UUID) string {
	return groupKeyPrefix + groupID.String()
}

// ParseConversationKey splits a conversation key into its kind ("user" or
// "group") and the referenced id.
func ParseConversationKey(key string) (kind string, id uuid.UUID, err error) {
	switch {
	case strings.HasPrefix(key, userKeyPrefix):
		id, err = uuid.Parse(strings.TrimPrefix(key, userKeyPrefix))
		return "user", id, err
	case strings.HasPrefix(key, groupKeyPrefix):
		id, err = uuid.Parse(strings.TrimPrefix(key, groupKeyPrefix))
		return "group", id, err
	default:
		return "", uuid.Nil, fmt.Errorf("invalid conversation key: %q", key)
	}
}
