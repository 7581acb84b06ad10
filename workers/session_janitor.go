package workers

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"study-progress-system/models"

	"gorm.io/gorm"
)

// SessionJanitor closes running sessions whose owner walked away without
// finishing. Abandoned sessions keep a capped duration on the row for the
// history view but never feed streaks or goal progress.
type SessionJanitor struct {
	DB          *gorm.DB
	MaxDuration time.Duration
}

func NewSessionJanitor(db *gorm.DB) *SessionJanitor {
	maxMinutes := 240
	if v := os.Getenv("SESSION_MAX_MINUTES"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			maxMinutes = parsed
		} else {
			log.Printf("⚠️ Invalid SESSION_MAX_MINUTES %q, using default %d", v, maxMinutes)
		}
	}
	return &SessionJanitor{
		DB:          db,
		MaxDuration: time.Duration(maxMinutes) * time.Minute,
	}
}

// Run polls for stale sessions until the context is cancelled. Errors are
// logged and the next tick retries; nothing here is fatal.
func (j *SessionJanitor) Run(ctx context.Context, pollInterval time.Duration) {
	log.Printf("Starting session janitor (cutoff %s)...", j.MaxDuration)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Session janitor stopped.")
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-j.MaxDuration)

			var stale []models.StudySession
			if err := j.DB.
				Where("status = ? AND started_at < ?", models.SessionStatusRunning, cutoff).
				Find(&stale).Error; err != nil {
				log.Printf("❌ Janitor query failed: %v", err)
				continue
			}
			if len(stale) == 0 {
				continue
			}

			closed := 0
			for _, session := range stale {
				endedAt := session.StartedAt.Add(j.MaxDuration)
				// the status guard keeps a concurrent finish from losing its write
				res := j.DB.Model(&models.StudySession{}).
					Where("id = ? AND status = ?", session.ID, models.SessionStatusRunning).
					Updates(map[string]interface{}{
						"status":           models.SessionStatusAbandoned,
						"ended_at":         endedAt,
						"duration_minutes": int(j.MaxDuration.Minutes()),
					})
				if res.Error != nil {
					log.Printf("❌ Failed to close stale session %s: %v", session.ID, res.Error)
					continue
				}
				closed += int(res.RowsAffected)
			}

			if closed > 0 {
				log.Printf("🧹 Closed %d stale session(s)", closed)
			}
		}
	}
}
