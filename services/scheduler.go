// services/scheduler.go
package services

import (
	"log"
	"time"

	"study-progress-system/models"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"
)

// StartStreakScheduler runs the streak-lapse job. A streak survives as long
// as the user studied yesterday or today; once the last study day falls
// further back the counter drops to zero. Hourly cadence keeps the reset
// close to the user's midnight without tracking timezones per user.
func (s *SessionService) StartStreakScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(func() {
			cutoff := dateOnly(time.Now()).AddDate(0, 0, -1)
			res := s.DB.Model(&models.UserRewardState{}).
				Where("current_streak > 0 AND (last_study_date IS NULL OR last_study_date < ?)", cutoff).
				Updates(map[string]interface{}{
					"current_streak": 0,
					"version":        gorm.Expr("version + 1"),
				})
			if res.Error != nil {
				log.Printf("[Scheduler] DB error: %v", res.Error)
				return
			}
			if res.RowsAffected > 0 {
				log.Printf("⏰ Reset %d lapsed streak(s)", res.RowsAffected)
			}
		}),
	)
}
