package services

import (
	"log"
	"time"

	"study-progress-system/models"
	"study-progress-system/stores"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type DashboardService struct {
	DB     *gorm.DB
	States stores.RewardStateStore
}

func NewDashboardService(db *gorm.DB, states stores.RewardStateStore) *DashboardService {
	return &DashboardService{DB: db, States: states}
}

// GetSummary returns the aggregates behind the dashboard charts: study
// minutes per day for the last week, goal counts and the reward snapshot.
func (s *DashboardService) GetSummary(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	since := time.Now().UTC().AddDate(0, 0, -6).Truncate(24 * time.Hour)

	type DayMinutes struct {
		Day     string `json:"day"`
		Minutes int64  `json:"minutes"`
	}
	var perDay []DayMinutes
	if err := s.DB.Raw(`
		SELECT to_char(started_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
		       COALESCE(SUM(duration_minutes), 0) AS minutes
		FROM study_sessions
		WHERE user_id = ? AND status = ? AND started_at >= ? AND deleted_at IS NULL
		GROUP BY 1
		ORDER BY 1
	`, userID, models.SessionStatusFinished, since).Scan(&perDay).Error; err != nil {
		log.Printf("DB Error building daily minutes: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to build summary"})
	}

	var activeGoals, completedGoals int64
	if err := s.DB.Model(&models.Goal{}).
		Where("user_id = ? AND status = ?", userID, models.GoalStatusActive).
		Count(&activeGoals).Error; err != nil {
		log.Printf("DB Error counting active goals: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to build summary"})
	}
	if err := s.DB.Model(&models.Goal{}).
		Where("user_id = ? AND status = ?", userID, models.GoalStatusCompleted).
		Count(&completedGoals).Error; err != nil {
		log.Printf("DB Error counting completed goals: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to build summary"})
	}

	state, err := s.States.GetOrCreate(c.UserContext(), userID)
	if err != nil {
		log.Printf("DB Error loading reward state: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to build summary"})
	}

	return c.JSON(fiber.Map{
		"minutes_per_day":      perDay,
		"active_goals":         activeGoals,
		"completed_goals":      completedGoals,
		"total_points":         state.TotalPoints,
		"level":                state.Level,
		"next_level_threshold": LevelThreshold(state.Level + 1),
		"current_streak":       state.CurrentStreak,
		"longest_streak":       state.LongestStreak,
		"total_minutes":        state.TotalMinutes,
		"total_sessions":       state.TotalSessions,
	})
}
