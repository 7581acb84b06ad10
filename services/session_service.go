package services

import (
	"context"
	"errors"
	"log"
	"math"
	"time"

	"study-progress-system/models"
	"study-progress-system/stores"
	"study-progress-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MaxSessionMinutes caps the duration credited by a single session
const MaxSessionMinutes = 1440

type SessionService struct {
	DB      *gorm.DB
	Goals   stores.GoalStore
	Rewards stores.RewardStateStore
	Engine  *ProgressEngine
	Events  EventSink
}

func NewSessionService(db *gorm.DB, goals stores.GoalStore, rewards stores.RewardStateStore, engine *ProgressEngine, events EventSink) *SessionService {
	return &SessionService{DB: db, Goals: goals, Rewards: rewards, Engine: engine, Events: events}
}

// StartSession opens a focus session. One running session per user.
func (s *SessionService) StartSession(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		Subject string  `json:"subject"`
		GoalID  *string `json:"goal_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if req.GoalID != nil {
		if _, err := uuid.Parse(*req.GoalID); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid goal ID"})
		}
		if _, err := s.Goals.Get(c.UserContext(), *req.GoalID, userID); err != nil {
			if errors.Is(err, stores.ErrNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Goal not found", "code": "GOAL_NOT_FOUND"})
			}
			return storeErrorResponse(c, err)
		}
	}

	var running int64
	if err := s.DB.Model(&models.StudySession{}).
		Where("user_id = ? AND status = ?", userID, models.SessionStatusRunning).
		Count(&running).Error; err != nil {
		log.Printf("DB Error checking running sessions: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if running > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "A session is already running", "code": "SESSION_ACTIVE",
		})
	}

	session := models.StudySession{
		ID:        uuid.NewString(),
		UserID:    userID,
		GoalID:    req.GoalID,
		Subject:   utils.NormalizeText(req.Subject),
		Status:    models.SessionStatusRunning,
		StartedAt: time.Now(),
	}
	if err := s.DB.Create(&session).Error; err != nil {
		log.Printf("DB Error creating session: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to start session"})
	}

	return c.Status(fiber.StatusCreated).JSON(session)
}

// FinishSession closes a running session, credits streak and totals, and
// feeds the linked goal's progress when there is one.
func (s *SessionService) FinishSession(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	sessionID := c.Params("id")
	if _, err := uuid.Parse(sessionID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session ID"})
	}

	var req struct {
		Note string `json:"note"`
	}
	// an empty body is fine here
	_ = c.BodyParser(&req)

	var session models.StudySession
	if err := s.DB.Where("id = ? AND user_id = ?", sessionID, userID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found", "code": "SESSION_NOT_FOUND"})
		}
		log.Printf("DB Error fetching session: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if session.Status != models.SessionStatusRunning {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Session is not running", "code": "SESSION_NOT_RUNNING",
		})
	}

	now := time.Now()
	minutes := int(math.Round(now.Sub(session.StartedAt).Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	if minutes > MaxSessionMinutes {
		minutes = MaxSessionMinutes
	}

	session.Status = models.SessionStatusFinished
	session.EndedAt = &now
	session.DurationMinutes = minutes
	session.Note = utils.NormalizeText(req.Note)
	if err := s.DB.Save(&session).Error; err != nil {
		log.Printf("DB Error finishing session: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to finish session"})
	}

	state, newBadges, err := s.creditSession(c.UserContext(), userID, minutes, now)
	if err != nil {
		// the session row is closed; totals will catch up on the next finish
		log.Printf("⚠️ Failed to credit session %s for %s: %v", session.ID, userID, err)
	}

	response := fiber.Map{
		"session": session,
	}
	if state != nil {
		response["current_streak"] = state.CurrentStreak
		response["longest_streak"] = state.LongestStreak
		response["total_sessions"] = state.TotalSessions
		response["total_minutes"] = state.TotalMinutes
	}
	if len(newBadges) > 0 {
		response["unlocked_badges"] = newBadges
	}

	// feed the linked goal: hours goals get the duration, session goals one unit
	if session.GoalID != nil {
		if result := s.feedGoalProgress(c.UserContext(), userID, *session.GoalID, minutes, session.ID); result != nil {
			response["goal_progress"] = result
		}
	}

	log.Printf("📚 Session finished: user=%s, %d min (streak=%d)", userID, minutes, func() int {
		if state != nil {
			return state.CurrentStreak
		}
		return 0
	}())

	return c.JSON(response)
}

// creditSession applies streak, totals and any badge unlocks to the reward
// state under the usual version-checked retry discipline.
func (s *SessionService) creditSession(ctx context.Context, userID string, minutes int, at time.Time) (*models.UserRewardState, []models.Badge, error) {
	for attempt := 0; attempt < maxProgressRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		state, err := s.Rewards.GetOrCreate(ctx, userID)
		if err != nil {
			return nil, nil, err
		}
		expectedVersion := state.Version

		advanceStreak(state, at)
		state.TotalSessions++
		state.TotalMinutes += int64(minutes)

		newBadges := CheckUnlocks(StatsFromState(state), state.BadgeCodes())
		unlockedAt := time.Now()
		for _, b := range newBadges {
			state.Badges = append(state.Badges, models.BadgeAward{Code: b.Code, UnlockedAt: unlockedAt})
		}

		if err := s.Rewards.UpdateCAS(ctx, state, expectedVersion); err != nil {
			if errors.Is(err, stores.ErrVersionConflict) {
				continue
			}
			return nil, nil, err
		}

		if s.Events != nil {
			for _, b := range newBadges {
				s.Events.Emit(ctx, userID, models.NotificationBadgeUnlocked, map[string]interface{}{
					"code":   b.Code,
					"name":   b.Name,
					"icon":   b.Icon,
					"rarity": b.Rarity,
				})
			}
		}
		return state, newBadges, nil
	}
	return nil, nil, ErrConflict
}

// feedGoalProgress converts the finished session into a goal delta. Failures
// are logged, never surfaced; the session itself is already closed.
func (s *SessionService) feedGoalProgress(ctx context.Context, userID, goalID string, minutes int, sessionID string) *ProgressResult {
	goal, err := s.Goals.Get(ctx, goalID, userID)
	if err != nil {
		log.Printf("⚠️ Session %s: linked goal %s unavailable: %v", sessionID, goalID, err)
		return nil
	}

	var delta float64
	switch goal.TargetType {
	case models.TargetTypeHours:
		delta = float64(minutes) / 60.0
	case models.TargetTypeSessions:
		delta = 1
	default:
		// task goals advance through explicit progress updates only
		return nil
	}

	result, err := s.Engine.ApplyProgress(ctx, userID, goalID, delta, "study session")
	if err != nil {
		log.Printf("⚠️ Session %s: goal progress failed for %s: %v", sessionID, goalID, err)
		return nil
	}
	return result
}

// GetSessions lists the caller's sessions, newest first
func (s *SessionService) GetSessions(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	page := c.QueryInt("page", 1)
	size := c.QueryInt("size", 20)
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	query := s.DB.Where("user_id = ?", userID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Model(&models.StudySession{}).Count(&total).Error; err != nil {
		log.Printf("DB Error counting sessions: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	var sessions []models.StudySession
	if err := query.Order("started_at DESC").
		Limit(size).Offset((page - 1) * size).
		Find(&sessions).Error; err != nil {
		log.Printf("DB Error listing sessions: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch sessions"})
	}

	return c.JSON(fiber.Map{
		"sessions":    sessions,
		"page":        page,
		"size":        size,
		"total_items": total,
	})
}

// GetActiveSession returns the currently running session, if any
func (s *SessionService) GetActiveSession(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var session models.StudySession
	err := s.DB.Where("user_id = ? AND status = ?", userID, models.SessionStatusRunning).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "No running session", "code": "NO_ACTIVE_SESSION"})
		}
		log.Printf("DB Error fetching active session: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(session)
}

// advanceStreak counts a study day. Same-day activity leaves the streak
// unchanged, a next-day session extends it, anything longer resets it to 1.
func advanceStreak(state *models.UserRewardState, at time.Time) {
	day := dateOnly(at)
	switch {
	case state.LastStudyDate == nil:
		state.CurrentStreak = 1
	case state.LastStudyDate.Equal(day):
		// already counted today
	case state.LastStudyDate.Equal(day.AddDate(0, 0, -1)):
		state.CurrentStreak++
	default:
		state.CurrentStreak = 1
	}
	if state.CurrentStreak > state.LongestStreak {
		state.LongestStreak = state.CurrentStreak
	}
	state.LastStudyDate = &day
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
