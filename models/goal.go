package models

import (
	"time"

	"gorm.io/datatypes"
)

// GoalStatus indicates the lifecycle state of a goal
type GoalStatus string

const (
	GoalStatusActive    GoalStatus = "active"
	GoalStatusCompleted GoalStatus = "completed"
	GoalStatusArchived  GoalStatus = "archived"
)

// TargetType indicates what unit the goal counts progress in
type TargetType string

const (
	TargetTypeHours    TargetType = "hours"
	TargetTypeSessions TargetType = "sessions"
	TargetTypeTasks    TargetType = "tasks"
)

// Milestone is a named sub-target within the goal's progress range.
// Milestones live inside the goal row (jsonb) so milestone state and
// current_value always move together in one conditional write.
type Milestone struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	TargetProgress float64    `json:"target_progress"` // ≤ goal.TargetValue
	Completed      bool       `json:"completed"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"` // set once, never cleared
}

// Goal is a user-defined study target with a numeric progress value
type Goal struct {
	ID     string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID string `gorm:"index;not null" json:"user_id"` // from gateway context

	Title   string `gorm:"not null" json:"title"`
	Subject string `gorm:"index" json:"subject,omitempty"`

	TargetType   TargetType `gorm:"type:varchar(16);not null" json:"target_type"` // hours, sessions, tasks
	TargetValue  float64    `gorm:"not null" json:"target_value"`
	CurrentValue float64    `gorm:"default:0" json:"current_value"`

	Status      GoalStatus                     `gorm:"type:varchar(16);default:'active';index" json:"status"`
	Milestones  datatypes.JSONSlice[Milestone] `gorm:"type:jsonb" json:"milestones"`
	Deadline    *time.Time                     `json:"deadline,omitempty"`
	CompletedAt *time.Time                     `json:"completed_at,omitempty"`

	// Bumped by every conditional write; stale writers lose the race and retry
	Version int64 `gorm:"default:1" json:"version"`

	Timestamps
}
