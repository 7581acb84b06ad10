package services

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"study-progress-system/models"
	"study-progress-system/stores"
)

// fakeGoalStore mimics the version-checked write discipline of the real
// store with an in-memory map, so engine behavior under contention can be
// exercised without a database.
type fakeGoalStore struct {
	mu      sync.Mutex
	goals   map[string]*models.Goal
	entries []models.ProgressEntry
	gets    int
	failCAS int // force this many ErrVersionConflict results before behaving
}

func newFakeGoalStore() *fakeGoalStore {
	return &fakeGoalStore{goals: make(map[string]*models.Goal)}
}

func copyGoal(g *models.Goal) *models.Goal {
	cp := *g
	cp.Milestones = make([]models.Milestone, len(g.Milestones))
	copy(cp.Milestones, g.Milestones)
	return &cp
}

func (f *fakeGoalStore) Create(ctx context.Context, goal *models.Goal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.goals[goal.ID] = copyGoal(goal)
	return nil
}

func (f *fakeGoalStore) Get(ctx context.Context, goalID, userID string) (*models.Goal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	g, ok := f.goals[goalID]
	if !ok || g.UserID != userID {
		return nil, stores.ErrNotFound
	}
	return copyGoal(g), nil
}

func (f *fakeGoalStore) List(ctx context.Context, userID string, status models.GoalStatus) ([]models.Goal, error) {
	return nil, nil
}

func (f *fakeGoalStore) UpdateProgressCAS(ctx context.Context, goal *models.Goal, expectedVersion int64, entry *models.ProgressEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCAS > 0 {
		f.failCAS--
		return stores.ErrVersionConflict
	}
	stored, ok := f.goals[goal.ID]
	if !ok || stored.Version != expectedVersion {
		return stores.ErrVersionConflict
	}
	stored.CurrentValue = goal.CurrentValue
	stored.Status = goal.Status
	stored.Milestones = make([]models.Milestone, len(goal.Milestones))
	copy(stored.Milestones, goal.Milestones)
	stored.CompletedAt = goal.CompletedAt
	stored.Version++
	if entry != nil {
		f.entries = append(f.entries, *entry)
	}
	goal.Version = expectedVersion + 1
	return nil
}

func (f *fakeGoalStore) UpdateMeta(ctx context.Context, goal *models.Goal) error { return nil }

func (f *fakeGoalStore) Archive(ctx context.Context, goalID, userID string) (bool, error) {
	return false, nil
}

func (f *fakeGoalStore) Delete(ctx context.Context, goalID, userID string) error { return nil }

func (f *fakeGoalStore) Entries(ctx context.Context, goalID string, limit, offset int) ([]models.ProgressEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ProgressEntry
	for _, e := range f.entries {
		if e.GoalID == goalID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeGoalStore) CountEntries(ctx context.Context, goalID string) (int64, error) {
	es, _ := f.Entries(ctx, goalID, 0, 0)
	return int64(len(es)), nil
}

func (f *fakeGoalStore) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

type fakeRewardStore struct {
	mu     sync.Mutex
	states map[string]*models.UserRewardState
}

func newFakeRewardStore() *fakeRewardStore {
	return &fakeRewardStore{states: make(map[string]*models.UserRewardState)}
}

func copyState(s *models.UserRewardState) *models.UserRewardState {
	cp := *s
	cp.Badges = make([]models.BadgeAward, len(s.Badges))
	copy(cp.Badges, s.Badges)
	return &cp
}

func (f *fakeRewardStore) Get(ctx context.Context, userID string) (*models.UserRewardState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[userID]
	if !ok {
		return nil, stores.ErrNotFound
	}
	return copyState(s), nil
}

func (f *fakeRewardStore) GetOrCreate(ctx context.Context, userID string) (*models.UserRewardState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.states[userID]; ok {
		return copyState(s), nil
	}
	fresh := &models.UserRewardState{ID: userID, UserID: userID, Level: 1, Version: 1}
	f.states[userID] = fresh
	return copyState(fresh), nil
}

func (f *fakeRewardStore) UpdateCAS(ctx context.Context, state *models.UserRewardState, expectedVersion int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.states[state.UserID]
	if !ok || stored.Version != expectedVersion {
		return stores.ErrVersionConflict
	}
	cp := copyState(state)
	cp.Version = expectedVersion + 1
	f.states[state.UserID] = cp
	state.Version = expectedVersion + 1
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingSink) Emit(ctx context.Context, userID string, eventType models.NotificationType, payload map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, string(eventType))
}

func (r *recordingSink) has(eventType models.NotificationType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == string(eventType) {
			return true
		}
	}
	return false
}

func newTestEngine() (*ProgressEngine, *fakeGoalStore, *fakeRewardStore, *recordingSink) {
	goals := newFakeGoalStore()
	rewards := newFakeRewardStore()
	sink := &recordingSink{}
	return NewProgressEngine(goals, rewards, sink), goals, rewards, sink
}

func seedGoal(t *testing.T, goals *fakeGoalStore, target float64, milestones ...models.Milestone) {
	t.Helper()
	goal := &models.Goal{
		ID:          "g1",
		UserID:      "u1",
		Title:       "Read the textbook",
		TargetType:  models.TargetTypeHours,
		TargetValue: target,
		Status:      models.GoalStatusActive,
		Milestones:  milestones,
		Version:     1,
	}
	if err := goals.Create(context.Background(), goal); err != nil {
		t.Fatalf("seed goal: %v", err)
	}
}

func TestApplyProgressClampsAtTarget(t *testing.T) {
	engine, goals, _, _ := newTestEngine()
	seedGoal(t, goals, 100)
	ctx := context.Background()

	if _, err := engine.ApplyProgress(ctx, "u1", "g1", 95, ""); err != nil {
		t.Fatalf("apply 95: %v", err)
	}
	res, err := engine.ApplyProgress(ctx, "u1", "g1", 10, "")
	if err != nil {
		t.Fatalf("apply 10: %v", err)
	}
	if res.Goal.CurrentValue != 100 {
		t.Fatalf("value=%v, want clamp to 100", res.Goal.CurrentValue)
	}
	if !res.GoalCompleted || res.Goal.Status != models.GoalStatusCompleted {
		t.Fatalf("expected completion, got completed=%v status=%s", res.GoalCompleted, res.Goal.Status)
	}
	if res.Goal.CompletedAt == nil {
		t.Fatalf("completed goal missing CompletedAt")
	}
}

func TestApplyProgressClampsAtZero(t *testing.T) {
	engine, goals, _, _ := newTestEngine()
	seedGoal(t, goals, 100)
	ctx := context.Background()

	if _, err := engine.ApplyProgress(ctx, "u1", "g1", 40, ""); err != nil {
		t.Fatalf("apply 40: %v", err)
	}
	res, err := engine.ApplyProgress(ctx, "u1", "g1", -1000, "")
	if err != nil {
		t.Fatalf("apply -1000: %v", err)
	}
	if res.Goal.CurrentValue != 0 {
		t.Fatalf("value=%v, want clamp to 0", res.Goal.CurrentValue)
	}
	if len(res.NewlyCompletedMilestones) != 0 || res.PointsAwarded != 0 {
		t.Fatalf("negative delta must not award anything: %+v", res)
	}
}

func TestApplyProgressNoOpSkipsWrite(t *testing.T) {
	engine, goals, _, _ := newTestEngine()
	seedGoal(t, goals, 100)
	ctx := context.Background()

	res, err := engine.ApplyProgress(ctx, "u1", "g1", -5, "")
	if err != nil {
		t.Fatalf("apply -5 at zero: %v", err)
	}
	if res.Goal.Version != 1 {
		t.Fatalf("no-op bumped version to %d", res.Goal.Version)
	}
	count, _ := goals.CountEntries(ctx, "g1")
	if count != 0 {
		t.Fatalf("no-op appended %d ledger entries", count)
	}
}

func TestApplyProgressLedgerAppends(t *testing.T) {
	engine, goals, _, _ := newTestEngine()
	seedGoal(t, goals, 100)
	ctx := context.Background()

	deltas := []float64{10, 20, -5}
	values := []float64{10, 30, 25}
	for i, d := range deltas {
		res, err := engine.ApplyProgress(ctx, "u1", "g1", d, "step")
		if err != nil {
			t.Fatalf("apply %v: %v", d, err)
		}
		if res.Goal.CurrentValue != values[i] {
			t.Fatalf("step %d value=%v, want %v", i, res.Goal.CurrentValue, values[i])
		}
	}

	entries, err := goals.Entries(ctx, "g1", 0, 0)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != len(deltas) {
		t.Fatalf("expected %d ledger entries, got %d", len(deltas), len(entries))
	}
	for i, e := range entries {
		if e.Delta != deltas[i] || e.ResultingValue != values[i] {
			t.Fatalf("entry %d = {Δ%v → %v}, want {Δ%v → %v}",
				i, e.Delta, e.ResultingValue, deltas[i], values[i])
		}
		if e.Note != "step" || e.UserID != "u1" {
			t.Fatalf("entry %d metadata wrong: %+v", i, e)
		}
	}
}

func TestApplyProgressMilestoneCrossing(t *testing.T) {
	engine, goals, rewards, sink := newTestEngine()
	seedGoal(t, goals, 100,
		models.Milestone{ID: "m25", Title: "Quarter", TargetProgress: 25},
		models.Milestone{ID: "m50", Title: "Half", TargetProgress: 50},
	)
	ctx := context.Background()

	res, err := engine.ApplyProgress(ctx, "u1", "g1", 30, "")
	if err != nil {
		t.Fatalf("apply 30: %v", err)
	}
	if len(res.NewlyCompletedMilestones) != 1 || res.NewlyCompletedMilestones[0].ID != "m25" {
		t.Fatalf("expected only m25, got %+v", res.NewlyCompletedMilestones)
	}
	if !res.NewlyCompletedMilestones[0].Completed || res.NewlyCompletedMilestones[0].CompletedAt == nil {
		t.Fatalf("returned milestone not marked completed: %+v", res.NewlyCompletedMilestones[0])
	}
	if res.PointsAwarded != DefaultRewardPolicy.MilestonePoints {
		t.Fatalf("points=%d, want %d", res.PointsAwarded, DefaultRewardPolicy.MilestonePoints)
	}

	state, err := rewards.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("reward state: %v", err)
	}
	if state.MilestonesHit != 1 || state.TotalPoints != DefaultRewardPolicy.MilestonePoints {
		t.Fatalf("state hit=%d points=%d", state.MilestonesHit, state.TotalPoints)
	}
	if !sink.has(models.NotificationMilestoneCompleted) {
		t.Fatalf("milestone event not emitted")
	}
	if res.GoalCompleted {
		t.Fatalf("milestone crossing must not complete the goal")
	}
}

func TestApplyProgressMilestoneAwardedOnce(t *testing.T) {
	engine, goals, rewards, _ := newTestEngine()
	seedGoal(t, goals, 100, models.Milestone{ID: "m25", Title: "Quarter", TargetProgress: 25})
	ctx := context.Background()

	if _, err := engine.ApplyProgress(ctx, "u1", "g1", 30, ""); err != nil {
		t.Fatalf("apply 30: %v", err)
	}
	if _, err := engine.ApplyProgress(ctx, "u1", "g1", -20, ""); err != nil {
		t.Fatalf("apply -20: %v", err)
	}

	// crossing the same target again must not re-award
	res, err := engine.ApplyProgress(ctx, "u1", "g1", 25, "")
	if err != nil {
		t.Fatalf("apply 25: %v", err)
	}
	if len(res.NewlyCompletedMilestones) != 0 || res.PointsAwarded != 0 {
		t.Fatalf("milestone completed twice: %+v", res)
	}
	state, _ := rewards.Get(ctx, "u1")
	if state.MilestonesHit != 1 {
		t.Fatalf("milestones hit=%d, want 1", state.MilestonesHit)
	}
}

func TestApplyProgressSweepsAllCrossedMilestones(t *testing.T) {
	engine, goals, _, _ := newTestEngine()
	seedGoal(t, goals, 100,
		models.Milestone{ID: "m25", TargetProgress: 25},
		models.Milestone{ID: "m50", TargetProgress: 50},
		models.Milestone{ID: "m75", TargetProgress: 75},
	)
	ctx := context.Background()

	res, err := engine.ApplyProgress(ctx, "u1", "g1", 100, "")
	if err != nil {
		t.Fatalf("apply 100: %v", err)
	}
	if len(res.NewlyCompletedMilestones) != 3 {
		t.Fatalf("expected 3 milestones, got %d", len(res.NewlyCompletedMilestones))
	}
	for i := 1; i < len(res.NewlyCompletedMilestones); i++ {
		if res.NewlyCompletedMilestones[i-1].TargetProgress > res.NewlyCompletedMilestones[i].TargetProgress {
			t.Fatalf("milestones out of order: %+v", res.NewlyCompletedMilestones)
		}
	}

	wantPoints := 3*DefaultRewardPolicy.MilestonePoints +
		DefaultRewardPolicy.GoalCompletionPoints +
		int64(100*DefaultRewardPolicy.GoalBonusRate)
	if res.PointsAwarded != wantPoints {
		t.Fatalf("points=%d, want %d", res.PointsAwarded, wantPoints)
	}

	goal, _ := goals.Get(ctx, "g1", "u1")
	for _, m := range goal.Milestones {
		if !m.Completed {
			t.Fatalf("stored milestone %s not completed", m.ID)
		}
	}
}

func TestApplyProgressGoalCompletionCascade(t *testing.T) {
	engine, goals, rewards, sink := newTestEngine()
	seedGoal(t, goals, 100)
	ctx := context.Background()

	res, err := engine.ApplyProgress(ctx, "u1", "g1", 150, "")
	if err != nil {
		t.Fatalf("apply 150: %v", err)
	}
	if res.Goal.CurrentValue != 100 || !res.GoalCompleted {
		t.Fatalf("value=%v completed=%v", res.Goal.CurrentValue, res.GoalCompleted)
	}

	wantPoints := DefaultRewardPolicy.GoalCompletionPoints + int64(100*DefaultRewardPolicy.GoalBonusRate)
	if res.PointsAwarded != wantPoints {
		t.Fatalf("points=%d, want %d", res.PointsAwarded, wantPoints)
	}
	wantLevel := LevelForPoints(wantPoints)
	if res.LevelUp == nil || res.LevelUp.NewLevel != wantLevel {
		t.Fatalf("level up=%+v, want new level %d", res.LevelUp, wantLevel)
	}
	if !containsBadge(res.UnlockedBadges, "FIRST_GOAL") {
		t.Fatalf("expected FIRST_GOAL badge, got %+v", res.UnlockedBadges)
	}

	state, _ := rewards.Get(ctx, "u1")
	if state.GoalsCompleted != 1 || state.TotalPoints != wantPoints || state.Level != wantLevel {
		t.Fatalf("state goals=%d points=%d level=%d", state.GoalsCompleted, state.TotalPoints, state.Level)
	}

	if !sink.has(models.NotificationGoalCompleted) || !sink.has(models.NotificationLevelUp) || !sink.has(models.NotificationBadgeUnlocked) {
		t.Fatalf("missing cascade events: %v", sink.events)
	}

	// goal sits at target now; another push changes nothing and pays nothing
	res2, err := engine.ApplyProgress(ctx, "u1", "g1", 10, "")
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if res2.GoalCompleted || res2.PointsAwarded != 0 {
		t.Fatalf("completion repeated: %+v", res2)
	}
	state2, _ := rewards.Get(ctx, "u1")
	if state2.GoalsCompleted != 1 || state2.TotalPoints != wantPoints {
		t.Fatalf("state moved on no-op: goals=%d points=%d", state2.GoalsCompleted, state2.TotalPoints)
	}
}

func TestApplyProgressTwoConcurrentWritersBothSucceed(t *testing.T) {
	engine, goals, _, _ := newTestEngine()
	seedGoal(t, goals, 100)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.ApplyProgress(ctx, "u1", "g1", 5, "")
		}(i)
	}
	wg.Wait()

	// with only one competitor the loser's reread always wins on retry
	for i, err := range errs {
		if err != nil {
			t.Fatalf("writer %d failed: %v", i, err)
		}
	}
	goal, err := goals.Get(ctx, "g1", "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if goal.CurrentValue != 10 || goal.Version != 3 {
		t.Fatalf("value=%v version=%d, want 10/3", goal.CurrentValue, goal.Version)
	}
	count, _ := goals.CountEntries(ctx, "g1")
	if count != 2 {
		t.Fatalf("ledger entries=%d, want 2", count)
	}
}

func TestApplyProgressConcurrentWritersNoLostUpdate(t *testing.T) {
	engine, goals, _, _ := newTestEngine()
	seedGoal(t, goals, 1000)
	ctx := context.Background()

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.ApplyProgress(ctx, "u1", "g1", 5, "")
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrConflict):
			// losing the retry budget is allowed, losing an update is not
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok < 2 {
		t.Fatalf("expected at least two applies to win, got %d", ok)
	}

	goal, err := goals.Get(ctx, "g1", "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if goal.CurrentValue != float64(ok*5) {
		t.Fatalf("value=%v, want %v (5 per successful apply)", goal.CurrentValue, ok*5)
	}
	if goal.Version != int64(1+ok) {
		t.Fatalf("version=%d, want %d", goal.Version, 1+ok)
	}
	count, _ := goals.CountEntries(ctx, "g1")
	if count != int64(ok) {
		t.Fatalf("ledger entries=%d, want %d", count, ok)
	}
}

func TestApplyProgressRetriesThroughTransientConflicts(t *testing.T) {
	engine, goals, _, _ := newTestEngine()
	seedGoal(t, goals, 100)
	goals.mu.Lock()
	goals.failCAS = 2
	goals.mu.Unlock()

	res, err := engine.ApplyProgress(context.Background(), "u1", "g1", 5, "")
	if err != nil {
		t.Fatalf("apply through conflicts: %v", err)
	}
	if res.Goal.CurrentValue != 5 {
		t.Fatalf("value=%v, want 5", res.Goal.CurrentValue)
	}
	if goals.getCount() != 3 {
		t.Fatalf("rereads=%d, want 3", goals.getCount())
	}
}

func TestApplyProgressConflictAfterRetryBudget(t *testing.T) {
	engine, goals, _, _ := newTestEngine()
	seedGoal(t, goals, 100)
	goals.mu.Lock()
	goals.failCAS = maxProgressRetries
	goals.mu.Unlock()

	_, err := engine.ApplyProgress(context.Background(), "u1", "g1", 5, "")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err=%v, want ErrConflict", err)
	}
	if goals.getCount() != maxProgressRetries {
		t.Fatalf("rereads=%d, want %d", goals.getCount(), maxProgressRetries)
	}
}

func TestApplyProgressRejectsNonFiniteDelta(t *testing.T) {
	engine, goals, _, _ := newTestEngine()
	seedGoal(t, goals, 100)
	ctx := context.Background()

	for _, d := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := engine.ApplyProgress(ctx, "u1", "g1", d, ""); !errors.Is(err, ErrInvalidDelta) {
			t.Fatalf("delta %v: err=%v, want ErrInvalidDelta", d, err)
		}
	}

	goal, _ := goals.Get(ctx, "g1", "u1")
	if goal.Version != 1 || goal.CurrentValue != 0 {
		t.Fatalf("rejected delta wrote: version=%d value=%v", goal.Version, goal.CurrentValue)
	}
}

func TestApplyProgressArchivedGoal(t *testing.T) {
	engine, goals, _, _ := newTestEngine()
	seedGoal(t, goals, 100)
	goals.mu.Lock()
	goals.goals["g1"].Status = models.GoalStatusArchived
	goals.mu.Unlock()

	if _, err := engine.ApplyProgress(context.Background(), "u1", "g1", 5, ""); !errors.Is(err, ErrGoalArchived) {
		t.Fatalf("err=%v, want ErrGoalArchived", err)
	}
}

func TestApplyProgressUnknownGoalAndForeignOwner(t *testing.T) {
	engine, goals, _, _ := newTestEngine()
	seedGoal(t, goals, 100)
	ctx := context.Background()

	if _, err := engine.ApplyProgress(ctx, "u1", "missing", 5, ""); !errors.Is(err, stores.ErrNotFound) {
		t.Fatalf("missing goal err=%v, want ErrNotFound", err)
	}
	// another user's goal looks exactly like a missing one
	if _, err := engine.ApplyProgress(ctx, "u2", "g1", 5, ""); !errors.Is(err, stores.ErrNotFound) {
		t.Fatalf("foreign goal err=%v, want ErrNotFound", err)
	}
}

func TestApplyProgressHonorsCancellation(t *testing.T) {
	engine, goals, _, _ := newTestEngine()
	seedGoal(t, goals, 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := engine.ApplyProgress(ctx, "u1", "g1", 5, ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
	if goals.getCount() != 0 {
		t.Fatalf("cancelled call still hit the store %d times", goals.getCount())
	}
}
