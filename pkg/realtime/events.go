package realtime

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event kinds, mirroring the server wire contract.
const (
	KindNotificationCreated = "notification.created"
	KindMessageDirect       = "message.direct"
	KindMessageGroup        = "message.group"
)

// Event is a live push event as received over a channel connection.
type Event struct {
	Kind            string          `json:"kind"`
	ConversationKey string          `json:"conversation_key"`
	SenderID        uuid.UUID       `json:"sender_id"`
	Payload         json.RawMessage `json:"payload"`
	SentAt          time.Time       `json:"sent_at"`
}

// Domain separates the independent unread scopes: a baseline for one domain
// never disturbs the other.
type Domain int

const (
	DomainNotifications Domain = iota
	DomainChat
)

// DomainForKey classifies a scope key: chat keys carry a "user:" or "group:"
// prefix, notification keys are bare notification ids.
func DomainForKey(key string) Domain {
	if strings.HasPrefix(key, "user:") || strings.HasPrefix(key, "group:") {
		return DomainChat
	}
	return DomainNotifications
}

// domainForKind maps an event kind to its unread domain.
func domainForKind(kind string) Domain {
	if kind == KindNotificationCreated {
		return DomainNotifications
	}
	return DomainChat
}
