package model

import (
	"time"

	"github.com/google/uuid"
)

// Notification is a broadcast item authored once and fanned out to every
// active user (optionally narrowed by role) at creation time.
type Notification struct {
	Base
	Title      string    `json:"title" db:"title"`
	Body       string    `json:"body" db:"body"`
	AuthorID   uuid.UUID `json:"author_id" db:"author_id"`
	RoleFilter *string   `json:"role_filter,omitempty" db:"role_filter"`
}

// NotificationStatus is the per-recipient delivery record. Exactly one row
// exists per (notification, recipient) pair that was active at fan-out time;
// absence of a row means the user was never a recipient.
type NotificationStatus struct {
	NotificationID uuid.UUID  `json:"notification_id" db:"notification_id"`
	UserID         uuid.UUID  `json:"user_id" db:"user_id"`
	Read           bool       `json:"read" db:"read"`
	ReadAt         *time.Time `json:"read_at,omitempty" db:"read_at"`
}

// NotificationWithStatus is the catch-up shape returned to recipients: the
// notification joined with the caller's own status row.
type NotificationWithStatus struct {
	Notification
	Read   bool       `json:"read" db:"read"`
	ReadAt *time.Time `json:"read_at,omitempty" db:"read_at"`
}

// CreateNotificationRequest represents notification authoring parameters
type CreateNotificationRequest struct {
	Title      string  `json:"title" binding:"required" validate:"required"`
	Body       string  `json:"body" binding:"required" validate:"required"`
	RoleFilter *string `json:"role_filter" binding:"omitempty,oneof=ADMIN MANAGER USER"`
}

// UpdateNotificationRequest represents author-side edit parameters
type UpdateNotificationRequest struct {
	Title *string `json:"title"`
	Body  *string `json:"body"`
}
