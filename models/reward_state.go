package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BadgeAward is an unlocked badge instance stored on the reward state row.
// Awards ride the same jsonb column as the rest of the state so badge
// unlocks commit in the same conditional write as the points they came from.
type BadgeAward struct {
	Code       string    `json:"code"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

// UserRewardState tracks points, level, badges and streaks for each user
// (denormalized for fast reads)
type UserRewardState struct {
	ID     string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID string `gorm:"uniqueIndex;not null" json:"user_id"` // from gateway context

	// Core progression
	TotalPoints int64 `json:"total_points" gorm:"default:0"`
	Level       int   `json:"level" gorm:"default:1"` // derived from TotalPoints, never decreases

	// Activity counters feeding badge predicates
	TotalSessions  int64 `json:"total_sessions" gorm:"default:0"`
	TotalMinutes   int64 `json:"total_minutes" gorm:"default:0"`
	GoalsCompleted int64 `json:"goals_completed" gorm:"default:0"`
	MilestonesHit  int64 `json:"milestones_hit" gorm:"default:0"`

	// Streaks
	CurrentStreak int        `json:"current_streak" gorm:"default:0"`
	LongestStreak int        `json:"longest_streak" gorm:"default:0"`
	LastStudyDate *time.Time `json:"last_study_date,omitempty"` // date only, midnight UTC

	// Append-only
	Badges datatypes.JSONSlice[BadgeAward] `gorm:"type:jsonb" json:"badges"`

	LastLevelUpAt *time.Time `json:"last_level_up_at,omitempty"`

	Version int64 `gorm:"default:1" json:"version"`

	Timestamps
}

// BadgeCodes returns the codes of every badge already unlocked
func (s *UserRewardState) BadgeCodes() []string {
	codes := make([]string, 0, len(s.Badges))
	for _, b := range s.Badges {
		codes = append(codes, b.Code)
	}
	return codes
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
