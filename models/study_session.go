package models

import (
	"time"
)

// SessionStatus indicates the lifecycle state of a study session
type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusFinished  SessionStatus = "finished"
	SessionStatusAbandoned SessionStatus = "abandoned" // closed by the janitor, not the user
)

// StudySession is one focus block. A session may be linked to a goal; on
// finish its duration feeds the goal's progress (hours and sessions targets).
type StudySession struct {
	ID     string  `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID string  `gorm:"index;not null" json:"user_id"`
	GoalID *string `gorm:"index" json:"goal_id,omitempty"`

	Subject string        `json:"subject"`
	Status  SessionStatus `gorm:"type:varchar(16);default:'running';index" json:"status"`

	StartedAt       time.Time  `gorm:"not null" json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationMinutes int        `gorm:"default:0" json:"duration_minutes"`
	Note            string     `gorm:"type:text" json:"note,omitempty"`

	Timestamps
}
