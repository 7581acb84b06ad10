package services

import (
	"context"
	"errors"
	"log"
	"math"
	"time"

	"study-progress-system/models"
	"study-progress-system/stores"

	"github.com/google/uuid"
)

// Engine-level errors. Store errors (NotFound, StorageUnavailable) pass
// through unchanged; these cover the rules the stores don't know about.
var (
	// ErrConflict: the optimistic retry budget ran out
	ErrConflict = errors.New("conflict: concurrent updates exhausted retries")

	// ErrGoalArchived: progress cannot be applied to an archived goal
	ErrGoalArchived = errors.New("goal already archived")

	// ErrInvalidDelta: delta is NaN or infinite; rejected before any write
	ErrInvalidDelta = errors.New("invalid delta")
)

// maxProgressRetries bounds both CAS loops (goal write, reward write)
const maxProgressRetries = 5

type LevelUp struct {
	NewLevel int `json:"new_level"`
}

// ProgressResult describes everything one ApplyProgress call changed
type ProgressResult struct {
	Goal                     *models.Goal       `json:"goal"`
	NewlyCompletedMilestones []models.Milestone `json:"newly_completed_milestones"`
	GoalCompleted            bool               `json:"goal_completed"`
	PointsAwarded            int64              `json:"points_awarded"`
	LevelUp                  *LevelUp           `json:"level_up,omitempty"`
	UnlockedBadges           []models.Badge     `json:"unlocked_badges,omitempty"`
}

// EventSink receives domain events after they are committed. Sinks must not
// fail the operation that emitted the event.
type EventSink interface {
	Emit(ctx context.Context, userID string, eventType models.NotificationType, payload map[string]interface{})
}

// ProgressEngine orchestrates progress updates: atomic goal write, milestone
// evaluation, reward cascade, event emission. It holds no state between
// calls; every invocation reads fresh records and commits before returning.
type ProgressEngine struct {
	Goals   stores.GoalStore
	Rewards stores.RewardStateStore
	Policy  RewardPolicy
	Events  EventSink
}

func NewProgressEngine(goals stores.GoalStore, rewards stores.RewardStateStore, events EventSink) *ProgressEngine {
	return &ProgressEngine{
		Goals:   goals,
		Rewards: rewards,
		Policy:  DefaultRewardPolicy,
		Events:  events,
	}
}

// ApplyProgress applies one signed delta to a goal and runs the full reward
// cascade. Concurrency discipline: read version, compute, conditional write,
// reread-and-retry on version mismatch, up to maxProgressRetries before
// giving up with ErrConflict. A delta that changes nothing after clamping
// returns success without writing. The cancellation signal is checked at
// every retry boundary; a write that already committed stays committed.
func (e *ProgressEngine) ApplyProgress(ctx context.Context, userID, goalID string, delta float64, note string) (*ProgressResult, error) {
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return nil, ErrInvalidDelta
	}

	for attempt := 0; attempt < maxProgressRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		goal, err := e.Goals.Get(ctx, goalID, userID)
		if err != nil {
			return nil, err
		}
		if goal.Status == models.GoalStatusArchived {
			return nil, ErrGoalArchived
		}

		oldValue := goal.CurrentValue
		newValue := clamp(oldValue+delta, 0, goal.TargetValue)
		if newValue == oldValue {
			// nothing to persist, nothing to award
			return &ProgressResult{Goal: goal, NewlyCompletedMilestones: []models.Milestone{}}, nil
		}

		expectedVersion := goal.Version
		now := time.Now()

		newly := NewlyCompletedMilestones(oldValue, newValue, goal.Milestones)
		justCompleted := goal.Status == models.GoalStatusActive &&
			oldValue < goal.TargetValue && newValue >= goal.TargetValue

		goal.CurrentValue = newValue
		for _, m := range newly {
			for i := range goal.Milestones {
				if goal.Milestones[i].ID == m.ID {
					goal.Milestones[i].Completed = true
					completedAt := now
					goal.Milestones[i].CompletedAt = &completedAt
				}
			}
		}
		if justCompleted {
			goal.Status = models.GoalStatusCompleted
			goal.CompletedAt = &now
		}

		entry := &models.ProgressEntry{
			ID:             uuid.NewString(),
			GoalID:         goal.ID,
			UserID:         userID,
			Delta:          delta,
			ResultingValue: newValue,
			Note:           note,
		}

		if err := e.Goals.UpdateProgressCAS(ctx, goal, expectedVersion, entry); err != nil {
			if errors.Is(err, stores.ErrVersionConflict) {
				continue // lost the race, reread and retry
			}
			return nil, err
		}

		log.Printf("🎯 Progress applied: goal=%s Δ=%+.2f → %.2f/%.2f (user=%s)",
			goal.ID, delta, newValue, goal.TargetValue, userID)

		// re-sync the returned snapshot's milestone view
		for i := range goal.Milestones {
			for j := range newly {
				if newly[j].ID == goal.Milestones[i].ID {
					newly[j] = goal.Milestones[i]
				}
			}
		}

		result := &ProgressResult{
			Goal:                     goal,
			NewlyCompletedMilestones: newly,
			GoalCompleted:            justCompleted,
		}
		if newly == nil {
			result.NewlyCompletedMilestones = []models.Milestone{}
		}

		if len(newly) > 0 || justCompleted {
			if err := e.applyRewardCascade(ctx, userID, goal, newly, justCompleted, result); err != nil {
				// the goal write above is committed and final; no compensation
				return nil, err
			}
		}
		e.emitProgressEvents(ctx, userID, goal, result)

		return result, nil
	}

	return nil, ErrConflict
}

// applyRewardCascade prices the completion events and applies points, level,
// counters and badge unlocks to the user's reward state under the same
// version-checked retry discipline as the goal write.
func (e *ProgressEngine) applyRewardCascade(ctx context.Context, userID string, goal *models.Goal, newly []models.Milestone, goalCompleted bool, result *ProgressResult) error {
	for attempt := 0; attempt < maxProgressRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		state, err := e.Rewards.GetOrCreate(ctx, userID)
		if err != nil {
			return err
		}
		expectedVersion := state.Version

		var points int64
		for range newly {
			points += e.Policy.Points(RewardEvent{Kind: RewardEventMilestone})
		}
		if goalCompleted {
			points += e.Policy.Points(RewardEvent{Kind: RewardEventGoalCompletion, Weight: goal.TargetValue})
		}

		oldLevel := state.Level
		state.TotalPoints += points
		state.MilestonesHit += int64(len(newly))
		if goalCompleted {
			state.GoalsCompleted++
		}

		newLevel := LevelForPoints(state.TotalPoints)
		leveledUp := newLevel > oldLevel
		if leveledUp {
			state.Level = newLevel
			now := time.Now()
			state.LastLevelUpAt = &now
		}

		newBadges := CheckUnlocks(StatsFromState(state), state.BadgeCodes())
		unlockedAt := time.Now()
		for _, b := range newBadges {
			state.Badges = append(state.Badges, models.BadgeAward{Code: b.Code, UnlockedAt: unlockedAt})
		}

		if err := e.Rewards.UpdateCAS(ctx, state, expectedVersion); err != nil {
			if errors.Is(err, stores.ErrVersionConflict) {
				continue
			}
			return err
		}

		log.Printf("🎮 Points awarded: user=%s +%d → total=%d, level=%d (milestones=%d, goal_completed=%t)",
			userID, points, state.TotalPoints, state.Level, len(newly), goalCompleted)

		result.PointsAwarded = points
		if leveledUp {
			result.LevelUp = &LevelUp{NewLevel: newLevel}
		}
		result.UnlockedBadges = newBadges
		return nil
	}

	return ErrConflict
}

func (e *ProgressEngine) emitProgressEvents(ctx context.Context, userID string, goal *models.Goal, result *ProgressResult) {
	if e.Events == nil {
		return
	}

	for _, m := range result.NewlyCompletedMilestones {
		e.Events.Emit(ctx, userID, models.NotificationMilestoneCompleted, map[string]interface{}{
			"goal_id":         goal.ID,
			"goal_title":      goal.Title,
			"milestone_id":    m.ID,
			"milestone_title": m.Title,
			"target_progress": m.TargetProgress,
		})
	}
	if result.GoalCompleted {
		e.Events.Emit(ctx, userID, models.NotificationGoalCompleted, map[string]interface{}{
			"goal_id":        goal.ID,
			"goal_title":     goal.Title,
			"points_awarded": result.PointsAwarded,
		})
	}
	if result.LevelUp != nil {
		e.Events.Emit(ctx, userID, models.NotificationLevelUp, map[string]interface{}{
			"new_level": result.LevelUp.NewLevel,
		})
	}
	for _, b := range result.UnlockedBadges {
		e.Events.Emit(ctx, userID, models.NotificationBadgeUnlocked, map[string]interface{}{
			"code":   b.Code,
			"name":   b.Name,
			"icon":   b.Icon,
			"rarity": b.Rarity,
		})
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
