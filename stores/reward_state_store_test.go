package stores

import (
	"context"
	"errors"
	"testing"

	"study-progress-system/models"

	"github.com/google/uuid"
)

func TestRewardStateStoreGetOrCreate(t *testing.T) {
	db := setupTestDB(t)
	store := NewRewardStateStore(db)
	ctx := context.Background()
	userID := uuid.NewString()
	t.Cleanup(func() {
		db.Unscoped().Where("user_id = ?", userID).Delete(&models.UserRewardState{})
	})

	state, err := store.GetOrCreate(ctx, userID)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if state.Level != 1 || state.TotalPoints != 0 || state.Version != 1 {
		t.Fatalf("fresh state level=%d points=%d version=%d", state.Level, state.TotalPoints, state.Version)
	}

	again, err := store.GetOrCreate(ctx, userID)
	if err != nil {
		t.Fatalf("second get or create: %v", err)
	}
	if again.ID != state.ID {
		t.Fatalf("expected the same row, got %s then %s", state.ID, again.ID)
	}
}

func TestRewardStateStoreUpdateCAS(t *testing.T) {
	db := setupTestDB(t)
	store := NewRewardStateStore(db)
	ctx := context.Background()
	userID := uuid.NewString()
	t.Cleanup(func() {
		db.Unscoped().Where("user_id = ?", userID).Delete(&models.UserRewardState{})
	})

	state, err := store.GetOrCreate(ctx, userID)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	before := state.Version

	state.TotalPoints = 120
	state.Level = 2
	state.Badges = append(state.Badges, models.BadgeAward{Code: "FIRST_SESSION"})
	if err := store.UpdateCAS(ctx, state, before); err != nil {
		t.Fatalf("cas: %v", err)
	}
	if state.Version != before+1 {
		t.Fatalf("version=%d, want %d", state.Version, before+1)
	}

	stale := *state
	stale.TotalPoints = 999
	if err := store.UpdateCAS(ctx, &stale, before); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale cas err=%v, want ErrVersionConflict", err)
	}

	reloaded, err := store.Get(ctx, userID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.TotalPoints != 120 || reloaded.Level != 2 {
		t.Fatalf("reloaded points=%d level=%d", reloaded.TotalPoints, reloaded.Level)
	}
	if len(reloaded.Badges) != 1 || reloaded.Badges[0].Code != "FIRST_SESSION" {
		t.Fatalf("badges=%+v", reloaded.Badges)
	}
}
