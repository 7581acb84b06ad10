package stores

import (
	"context"
	"errors"
	"fmt"

	"study-progress-system/models"

	"gorm.io/gorm"
)

// GoalStore is the only component that touches goal persistence. Every
// progress-bearing mutation goes through UpdateProgressCAS so concurrent
// writers are serialized by the version column, not by in-process locks.
type GoalStore interface {
	Create(ctx context.Context, goal *models.Goal) error
	Get(ctx context.Context, goalID, userID string) (*models.Goal, error)
	List(ctx context.Context, userID string, status models.GoalStatus) ([]models.Goal, error)

	// UpdateProgressCAS persists the goal's progress fields and appends the
	// ledger entry in one transaction, but only if the stored version still
	// equals expectedVersion. On success the goal's Version is bumped.
	// Returns ErrVersionConflict when another writer got there first.
	UpdateProgressCAS(ctx context.Context, goal *models.Goal, expectedVersion int64, entry *models.ProgressEntry) error

	UpdateMeta(ctx context.Context, goal *models.Goal) error
	Archive(ctx context.Context, goalID, userID string) (archived bool, err error)
	Delete(ctx context.Context, goalID, userID string) error

	Entries(ctx context.Context, goalID string, limit, offset int) ([]models.ProgressEntry, error)
	CountEntries(ctx context.Context, goalID string) (int64, error)
}

type goalStore struct {
	db *gorm.DB
}

func NewGoalStore(db *gorm.DB) GoalStore {
	return &goalStore{db: db}
}

func (s *goalStore) Create(ctx context.Context, goal *models.Goal) error {
	if err := s.db.WithContext(ctx).Create(goal).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *goalStore) Get(ctx context.Context, goalID, userID string) (*models.Goal, error) {
	var goal models.Goal
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", goalID, userID).
		First(&goal).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return &goal, nil
}

func (s *goalStore) List(ctx context.Context, userID string, status models.GoalStatus) ([]models.Goal, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var goals []models.Goal
	if err := query.Order("created_at DESC").Find(&goals).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return goals, nil
}

func (s *goalStore) UpdateProgressCAS(ctx context.Context, goal *models.Goal, expectedVersion int64, entry *models.ProgressEntry) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Goal{}).
			Where("id = ? AND version = ?", goal.ID, expectedVersion).
			Updates(map[string]interface{}{
				"current_value": goal.CurrentValue,
				"status":        goal.Status,
				"milestones":    goal.Milestones,
				"completed_at":  goal.CompletedAt,
				"version":       gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Either the version moved under us or the row vanished;
			// the caller rereads and finds out which.
			return ErrVersionConflict
		}
		if entry != nil {
			if err := tx.Create(entry).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return ErrVersionConflict
		}
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	goal.Version = expectedVersion + 1
	return nil
}

func (s *goalStore) UpdateMeta(ctx context.Context, goal *models.Goal) error {
	res := s.db.WithContext(ctx).Model(&models.Goal{}).
		Where("id = ? AND user_id = ?", goal.ID, goal.UserID).
		Updates(map[string]interface{}{
			"title":    goal.Title,
			"subject":  goal.Subject,
			"deadline": goal.Deadline,
		})
	if res.Error != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Archive flips an active or completed goal to archived. Returns
// archived=false without error when the goal was already archived.
func (s *goalStore) Archive(ctx context.Context, goalID, userID string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Goal{}).
		Where("id = ? AND user_id = ? AND status <> ?", goalID, userID, models.GoalStatusArchived).
		Updates(map[string]interface{}{
			"status":  models.GoalStatusArchived,
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return false, fmt.Errorf("%w: %v", ErrStorageUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		// distinguish "already archived" from "no such goal"
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Goal{}).
			Where("id = ? AND user_id = ?", goalID, userID).
			Count(&count).Error; err != nil {
			return false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		if count == 0 {
			return false, ErrNotFound
		}
		return false, nil
	}
	return true, nil
}

func (s *goalStore) Delete(ctx context.Context, goalID, userID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", goalID, userID).Delete(&models.Goal{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		// ledger rows go with the goal
		return tx.Where("goal_id = ?", goalID).Delete(&models.ProgressEntry{}).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *goalStore) Entries(ctx context.Context, goalID string, limit, offset int) ([]models.ProgressEntry, error) {
	var entries []models.ProgressEntry
	err := s.db.WithContext(ctx).
		Where("goal_id = ?", goalID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return entries, nil
}

func (s *goalStore) CountEntries(ctx context.Context, goalID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.ProgressEntry{}).
		Where("goal_id = ?", goalID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return count, nil
}
