package models

import (
	"time"
)

// ProgressEntry is one applied delta in a goal's ledger. Rows are written
// inside the same transaction as the goal's conditional write and are never
// updated afterwards; they only disappear when the goal itself is deleted.
type ProgressEntry struct {
	ID             string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	GoalID         string    `gorm:"index;not null" json:"goal_id"`
	UserID         string    `gorm:"index;not null" json:"user_id"`
	Delta          float64   `gorm:"not null" json:"delta"`
	ResultingValue float64   `gorm:"not null" json:"resulting_value"` // clamped value after apply
	Note           string    `gorm:"type:text" json:"note,omitempty"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
