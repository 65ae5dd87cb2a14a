package model

import (
	"time"

	"github.com/google/uuid"
)

// User status constants
const (
	UserStatusActive   = "active"
	UserStatusInactive = "inactive"
)

// User role constants
const (
	UserRoleAdmin    = "ADMIN"
	UserRoleManager  = "MANAGER"
	UserRoleEmployee = "USER"
)

// User is the slice of the employee record the delivery core needs.
// Employee CRUD is owned by the HR services; this core only reads identity,
// role and active status to scope fan-out and event routing.
type User struct {
	Base
	Email        string     `json:"email" db:"email"`
	Name         string     `json:"name" db:"name"`
	DepartmentID *uuid.UUID `json:"department_id" db:"department_id"`
	Role         string     `json:"role" db:"role"`
	Status       string     `json:"status" db:"status"`
	LastSeenAt   *time.Time `json:"last_seen_at" db:"last_seen_at"`
}

// IsActive reports whether the user is a valid fan-out recipient.
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive && u.DeletedAt == nil
}
