package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is a chat message with exactly one target: either a direct peer
// (ReceiverID) or a group conversation (GroupID), never both, never neither.
type Message struct {
	Base
	SenderID   uuid.UUID  `json:"sender_id" db:"sender_id"`
	ReceiverID *uuid.UUID `json:"receiver_id,omitempty" db:"receiver_id"`
	GroupID    *uuid.UUID `json:"group_id,omitempty" db:"group_id"`
	Content    string     `json:"content" db:"content"`
	SentAt     time.Time  `json:"sent_at" db:"sent_at"`
}

// Validate enforces the single-target invariant.
func (m *Message) Validate() error {
	if m.Content == "" {
		return fmt.Errorf("content is required")
	}
	if m.ReceiverID == nil && m.GroupID == nil {
		return fmt.Errorf("message requires a receiver or a group target")
	}
	if m.ReceiverID != nil && m.GroupID != nil {
		return fmt.Errorf("message cannot target both a receiver and a group")
	}
	return nil
}

// IsGroup reports whether the message targets a group conversation.
func (m *Message) IsGroup() bool {
	return m.GroupID != nil
}

// GroupConversation holds the display name of a group chat. Membership
// changes are authorized elsewhere; this core reads the current roster at
// send time to scope fan-out.
type GroupConversation struct {
	Base
	Name string `json:"name" db:"name"`
}

// GroupMember links a user to a group conversation.
type GroupMember struct {
	GroupID  uuid.UUID `json:"group_id" db:"group_id"`
	UserID   uuid.UUID `json:"user_id" db:"user_id"`
	JoinedAt time.Time `json:"joined_at" db:"joined_at"`
}

// ConversationRead is a per-user read cursor for a conversation key. A
// conversation is unread for the user when it contains a message from
// another sender newer than the cursor.
type ConversationRead struct {
	UserID          uuid.UUID `json:"user_id" db:"user_id"`
	ConversationKey string    `json:"conversation_key" db:"conversation_key"`
	LastReadAt      time.Time `json:"last_read_at" db:"last_read_at"`
}

// ConversationSummary is the chat catch-up shape: one entry per conversation
// the user participates in, with the server-computed unread flag.
type ConversationSummary struct {
	ConversationKey string     `json:"conversation_key" db:"conversation_key"`
	LastMessageAt   time.Time  `json:"last_message_at" db:"last_message_at"`
	LastSenderID    uuid.UUID  `json:"last_sender_id" db:"last_sender_id"`
	LastReadAt      *time.Time `json:"last_read_at,omitempty" db:"last_read_at"`
	Unread          bool       `json:"unread" db:"unread"`
}

// SendMessageRequest represents message send parameters. Exactly one of
// receiver_id and group_id must be set.
type SendMessageRequest struct {
	ReceiverID *uuid.UUID `json:"receiver_id"`
	GroupID    *uuid.UUID `json:"group_id"`
	Content    string     `json:"content" binding:"required" validate:"required"`
}

// UpdateMessageRequest represents sender-side edit parameters
type UpdateMessageRequest struct {
	Content string `json:"content" binding:"required"`
}
