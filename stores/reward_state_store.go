package stores

import (
	"context"
	"errors"
	"fmt"

	"study-progress-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RewardStateStore persists the per-user reward state row. Mutations use the
// same version-checked write discipline as goals; the row carries points,
// level, streaks, counters and the badge list, so one successful CAS commits
// a whole reward cascade atomically.
type RewardStateStore interface {
	Get(ctx context.Context, userID string) (*models.UserRewardState, error)

	// GetOrCreate returns the state row, inserting a fresh level-1 row the
	// first time a user shows up (idempotent)
	GetOrCreate(ctx context.Context, userID string) (*models.UserRewardState, error)

	// UpdateCAS persists the mutated state only if the stored version still
	// equals expectedVersion. On success the state's Version is bumped.
	UpdateCAS(ctx context.Context, state *models.UserRewardState, expectedVersion int64) error
}

type rewardStateStore struct {
	db *gorm.DB
}

func NewRewardStateStore(db *gorm.DB) RewardStateStore {
	return &rewardStateStore{db: db}
}

func (s *rewardStateStore) Get(ctx context.Context, userID string) (*models.UserRewardState, error) {
	var state models.UserRewardState
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return &state, nil
}

func (s *rewardStateStore) GetOrCreate(ctx context.Context, userID string) (*models.UserRewardState, error) {
	state, err := s.Get(ctx, userID)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	fresh := models.UserRewardState{
		ID:     uuid.NewString(),
		UserID: userID,
		Level:  1,
	}
	if err := s.db.WithContext(ctx).Create(&fresh).Error; err != nil {
		// a concurrent first request may have inserted the row already
		if existing, getErr := s.Get(ctx, userID); getErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return &fresh, nil
}

func (s *rewardStateStore) UpdateCAS(ctx context.Context, state *models.UserRewardState, expectedVersion int64) error {
	res := s.db.WithContext(ctx).Model(&models.UserRewardState{}).
		Where("user_id = ? AND version = ?", state.UserID, expectedVersion).
		Updates(map[string]interface{}{
			"total_points":     state.TotalPoints,
			"level":            state.Level,
			"total_sessions":   state.TotalSessions,
			"total_minutes":    state.TotalMinutes,
			"goals_completed":  state.GoalsCompleted,
			"milestones_hit":   state.MilestonesHit,
			"current_streak":   state.CurrentStreak,
			"longest_streak":   state.LongestStreak,
			"last_study_date":  state.LastStudyDate,
			"badges":           state.Badges,
			"last_level_up_at": state.LastLevelUpAt,
			"version":          gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}

	state.Version = expectedVersion + 1
	return nil
}
