package models

import (
	"time"

	gorm "gorm.io/gorm"
)

// RewardType indicates whether the reward is a self-care treat or an item
type RewardType string

const (
	RewardTypeTreat RewardType = "treat"
	RewardTypeItem  RewardType = "item"
)

type RewardCategory string

const (
	RewardCategoryLevelUp        RewardCategory = "level_up"
	RewardCategoryStreak         RewardCategory = "streak"
	RewardCategoryGoalCompletion RewardCategory = "goal_completion"
	RewardCategorySeasonal       RewardCategory = "seasonal"
	RewardCategoryOther          RewardCategory = "other"
)

// RewardStatus indicates the publishing status of the reward
type RewardStatus string

const (
	RewardStatusDraft     RewardStatus = "draft"
	RewardStatusPublished RewardStatus = "published"
	RewardStatusArchived  RewardStatus = "archived"
)

// Reward is a claimable perk published for a user. Claiming is gated on the
// user's level; points are never spent (level never moves backwards).
type Reward struct {
	ID          string         `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	Title       string         `gorm:"not null" json:"title"`
	Type        RewardType     `gorm:"not null" json:"type"`
	Category    RewardCategory `gorm:"not null" json:"category"`
	ImageURL    string         `gorm:"type:text" json:"image_url"`
	Emoji       string         `gorm:"size:10" json:"emoji"`
	Excerpt     string         `gorm:"type:text" json:"excerpt"`
	ItemDetails string         `json:"item_details"`
	ExpiryDate  *time.Time     `json:"expiry_date,omitempty"`
	Claimed     bool           `gorm:"default:false" json:"claimed"`
	ClaimedAt   *time.Time     `json:"claimed_at,omitempty"`
	Viewed      bool           `gorm:"default:false;index" json:"viewed"`
	UserID      string         `gorm:"index" json:"user_id"`
	Level       int            `json:"level"` // minimum level required to claim
	Status      RewardStatus   `gorm:"not null;default:'draft'" json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}
