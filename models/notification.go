package models

import (
	"time"

	"gorm.io/datatypes"
)

// NotificationType names the domain events surfaced to the client
type NotificationType string

const (
	NotificationMilestoneCompleted NotificationType = "milestone_completed"
	NotificationGoalCompleted      NotificationType = "goal_completed"
	NotificationLevelUp            NotificationType = "level_up"
	NotificationBadgeUnlocked      NotificationType = "badge_unlocked"
)

// Notification is a persisted domain event. The client polls for unread
// rows and renders them as toasts; there is no push channel.
type Notification struct {
	ID      string           `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID  string           `gorm:"index;not null" json:"user_id"`
	Type    NotificationType `gorm:"type:varchar(32);not null" json:"type"`
	Payload datatypes.JSON   `gorm:"type:jsonb" json:"payload"` // same fields as the originating HTTP response
	Read    bool             `gorm:"default:false;index" json:"read"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
