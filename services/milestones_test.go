package services

import (
	"testing"

	"study-progress-system/models"
)

func TestNewlyCompletedMilestonesAscendingOrder(t *testing.T) {
	ms := []models.Milestone{
		{ID: "c", Title: "Three quarters", TargetProgress: 75},
		{ID: "a", Title: "Quarter", TargetProgress: 25},
		{ID: "b", Title: "Half", TargetProgress: 50},
	}

	newly := NewlyCompletedMilestones(0, 80, ms)
	if len(newly) != 3 {
		t.Fatalf("expected 3 milestones, got %d", len(newly))
	}
	for i := 1; i < len(newly); i++ {
		if newly[i-1].TargetProgress > newly[i].TargetProgress {
			t.Fatalf("milestones out of order: %v before %v",
				newly[i-1].TargetProgress, newly[i].TargetProgress)
		}
	}
}

func TestNewlyCompletedMilestonesBoundaries(t *testing.T) {
	ms := []models.Milestone{{ID: "m1", TargetProgress: 25}}

	if got := NewlyCompletedMilestones(20, 24.5, ms); len(got) != 0 {
		t.Fatalf("completed below target: %+v", got)
	}
	if got := NewlyCompletedMilestones(20, 25, ms); len(got) != 1 {
		t.Fatalf("exact target must complete, got %d", len(got))
	}
	// oldValue already at the target means it was crossed earlier
	if got := NewlyCompletedMilestones(25, 30, ms); len(got) != 0 {
		t.Fatalf("re-completed past target: %+v", got)
	}
}

func TestNewlyCompletedMilestonesSkipsCompleted(t *testing.T) {
	ms := []models.Milestone{
		{ID: "m1", TargetProgress: 25, Completed: true},
		{ID: "m2", TargetProgress: 50},
	}

	newly := NewlyCompletedMilestones(0, 60, ms)
	if len(newly) != 1 || newly[0].ID != "m2" {
		t.Fatalf("expected only m2, got %+v", newly)
	}
}

func TestNewlyCompletedMilestonesShrinkingOrFlatValue(t *testing.T) {
	ms := []models.Milestone{{ID: "m1", TargetProgress: 25}}

	if got := NewlyCompletedMilestones(30, 10, ms); got != nil {
		t.Fatalf("shrinking value completed milestones: %+v", got)
	}
	if got := NewlyCompletedMilestones(30, 30, ms); got != nil {
		t.Fatalf("flat value completed milestones: %+v", got)
	}
}
