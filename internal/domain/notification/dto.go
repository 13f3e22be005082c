// internal/domain/notification/dto.go
package notification

import "time"

type CreateNotificationRequest struct {
	UserID    string                 `json:"user_id" binding:"required"`
	TypeName  string                 `json:"type_name" binding:"required"`
	Title     string                 `json:"title" binding:"required,max=255"`
	Message   string                 `json:"message" binding:"required"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Priority  Priority               `json:"priority,omitempty"`
	ExpiresAt *time.Time             `json:"expires_at,omitempty"`
}

type BulkNotificationRequest struct {
	UserIDs   []string               `json:"user_ids" binding:"required,min=1"`
	TypeName  string                 `json:"type_name" binding:"required"`
	Title     string                 `json:"title" binding:"required,max=255"`
	Message   string                 `json:"message" binding:"required"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Priority  Priority               `json:"priority,omitempty"`
	ExpiresAt *time.Time             `json:"expires_at,omitempty"`
}

// PreferenceUpdate carries a subset of the delivery toggles
type PreferenceUpdate struct {
	EmailEnabled *bool `json:"email_enabled,omitempty"`
	PushEnabled  *bool `json:"push_enabled,omitempty"`
	InAppEnabled *bool `json:"in_app_enabled,omitempty"`
}

// Empty reports whether no toggle is set
func (u PreferenceUpdate) Empty() bool {
	return u.EmailEnabled == nil && u.PushEnabled == nil && u.InAppEnabled == nil
}

type ListParams struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

type ArchiveRequest struct {
	DaysOld int `json:"days_old" binding:"required,min=1"`
}

type CreateNotificationResponse struct {
	ID      *string `json:"id"`
	Skipped bool    `json:"skipped,omitempty"`
}
