package services

import (
	"study-progress-system/models"
)

// BadgeStats is the single consistent snapshot badge predicates run
// against. Taking one copy up front means two rules reading the same
// counter can never see different values mid-evaluation.
type BadgeStats struct {
	TotalPoints    int64
	Level          int
	TotalSessions  int64
	TotalMinutes   int64
	GoalsCompleted int64
	MilestonesHit  int64
	CurrentStreak  int
	LongestStreak  int
}

func StatsFromState(state *models.UserRewardState) BadgeStats {
	return BadgeStats{
		TotalPoints:    state.TotalPoints,
		Level:          state.Level,
		TotalSessions:  state.TotalSessions,
		TotalMinutes:   state.TotalMinutes,
		GoalsCompleted: state.GoalsCompleted,
		MilestonesHit:  state.MilestonesHit,
		CurrentStreak:  state.CurrentStreak,
		LongestStreak:  state.LongestStreak,
	}
}

// CheckUnlocks evaluates every catalog rule not yet in alreadyUnlocked and
// returns the ones whose thresholds the snapshot now meets. Pure and
// idempotent: feeding the output back into alreadyUnlocked yields nothing
// on the next call with the same stats.
func CheckUnlocks(stats BadgeStats, alreadyUnlocked []string) []models.Badge {
	unlocked := make(map[string]bool, len(alreadyUnlocked))
	for _, code := range alreadyUnlocked {
		unlocked[code] = true
	}

	var newly []models.Badge
	for _, rule := range models.BadgeRules {
		if unlocked[rule.Code] {
			continue
		}
		if meetsRule(stats, rule.Threshold) {
			newly = append(newly, rule)
		}
	}
	return newly
}

func meetsRule(stats BadgeStats, req map[string]int64) bool {
	if len(req) == 0 {
		return false
	}
	for key, required := range req {
		switch key {
		case "total_points":
			if stats.TotalPoints < required {
				return false
			}
		case "level":
			if int64(stats.Level) < required {
				return false
			}
		case "total_sessions":
			if stats.TotalSessions < required {
				return false
			}
		case "total_minutes":
			if stats.TotalMinutes < required {
				return false
			}
		case "goals_completed":
			if stats.GoalsCompleted < required {
				return false
			}
		case "milestones_hit":
			if stats.MilestonesHit < required {
				return false
			}
		case "current_streak":
			if int64(stats.CurrentStreak) < required {
				return false
			}
		case "longest_streak":
			if int64(stats.LongestStreak) < required {
				return false
			}
		default:
			// unknown key in a rule never unlocks anything
			return false
		}
	}
	return true
}
