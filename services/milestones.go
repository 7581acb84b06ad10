package services

import (
	"sort"

	"study-progress-system/models"
)

// NewlyCompletedMilestones returns the milestones crossed by moving the
// goal's value from oldValue to newValue, in ascending target order. A
// milestone qualifies only once: already-completed entries are skipped, and
// a shrinking value never un-completes anything. One large delta may cross
// several targets at once; all of them are returned together.
func NewlyCompletedMilestones(oldValue, newValue float64, milestones []models.Milestone) []models.Milestone {
	if len(milestones) == 0 || newValue <= oldValue {
		return nil
	}

	sorted := make([]models.Milestone, len(milestones))
	copy(sorted, milestones)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].TargetProgress < sorted[j].TargetProgress
	})

	var newly []models.Milestone
	for _, m := range sorted {
		if m.Completed {
			continue
		}
		if oldValue < m.TargetProgress && m.TargetProgress <= newValue {
			newly = append(newly, m)
		}
	}
	return newly
}
