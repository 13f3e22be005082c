// internal/domain/notification/entity.go
package notification

import (
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is one of the known priorities
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Built-in notification type names seeded by the migrations
const (
	TypePaymentApproved      = "payment_approved"
	TypePaymentRejected      = "payment_rejected"
	TypeSubscriptionExpiring = "subscription_expiring"
	TypeNewStudyMaterial     = "new_study_material"
	TypeReferralReward       = "referral_reward"
	TypeEventReminder        = "event_reminder"
	TypeSystem               = "system"
)

// Notification is one deliverable event for one user
type Notification struct {
	ID        string                 `json:"id" db:"id"`
	UserID    string                 `json:"user_id" db:"user_id"`
	TypeName  string                 `json:"type_name" db:"type_name"`
	Title     string                 `json:"title" db:"title"`
	Message   string                 `json:"message" db:"message"`
	Data      map[string]interface{} `json:"data,omitempty" db:"data"`
	Priority  Priority               `json:"priority" db:"priority"`
	IsRead    bool                   `json:"is_read" db:"is_read"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
	ReadAt    *time.Time             `json:"read_at,omitempty" db:"read_at"`
	ExpiresAt *time.Time             `json:"expires_at,omitempty" db:"expires_at"`
	Icon      string                 `json:"icon,omitempty" db:"icon"`
	Color     string                 `json:"color,omitempty" db:"color"`
}

// NotificationType is a named category controlling display hints and preferences
type NotificationType struct {
	ID              int64     `json:"id" db:"id"`
	Name            string    `json:"name" db:"name"`
	DisplayName     string    `json:"display_name" db:"display_name"`
	Description     string    `json:"description,omitempty" db:"description"`
	Icon            string    `json:"icon,omitempty" db:"icon"`
	Color           string    `json:"color,omitempty" db:"color"`
	DefaultPriority Priority  `json:"default_priority" db:"default_priority"`
	Channels        []string  `json:"channels" db:"channels"`
	IsActive        bool      `json:"is_active" db:"is_active"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// NotificationPreference holds one user's delivery toggles for one type.
// A missing row means every toggle is enabled.
type NotificationPreference struct {
	ID           int64     `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	TypeID       int64     `json:"type_id" db:"type_id"`
	EmailEnabled bool      `json:"email_enabled" db:"email_enabled"`
	PushEnabled  bool      `json:"push_enabled" db:"push_enabled"`
	InAppEnabled bool      `json:"in_app_enabled" db:"in_app_enabled"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultPreference returns the implicit preference used when no row exists
func DefaultPreference(userID string, typeID int64) NotificationPreference {
	return NotificationPreference{
		UserID:       userID,
		TypeID:       typeID,
		EmailEnabled: true,
		PushEnabled:  true,
		InAppEnabled: true,
	}
}

// Apply patches the preference with the toggles present in upd
func (p *NotificationPreference) Apply(upd PreferenceUpdate) {
	if upd.EmailEnabled != nil {
		p.EmailEnabled = *upd.EmailEnabled
	}
	if upd.PushEnabled != nil {
		p.PushEnabled = *upd.PushEnabled
	}
	if upd.InAppEnabled != nil {
		p.InAppEnabled = *upd.InAppEnabled
	}
}

type ChangeOp string

const (
	ChangeInsert ChangeOp = "INSERT"
	ChangeUpdate ChangeOp = "UPDATE"
)

// ChangeEvent is a row mutation delivered by the change feed
type ChangeEvent struct {
	Op           ChangeOp     `json:"op"`
	Notification Notification `json:"notification"`
}
