package services

import (
	"context"
	"errors"
	"log"
	"math"
	"sort"
	"time"

	"study-progress-system/models"
	"study-progress-system/stores"
	"study-progress-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type GoalService struct {
	Goals  stores.GoalStore
	Engine *ProgressEngine
}

func NewGoalService(goals stores.GoalStore, engine *ProgressEngine) *GoalService {
	return &GoalService{Goals: goals, Engine: engine}
}

// CreateGoal creates a new active goal with its milestone list
func (s *GoalService) CreateGoal(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		Title       string            `json:"title"`
		Subject     string            `json:"subject"`
		TargetType  models.TargetType `json:"target_type"`
		TargetValue float64           `json:"target_value"`
		Deadline    *time.Time        `json:"deadline"`
		Milestones  []struct {
			Title          string  `json:"title"`
			TargetProgress float64 `json:"target_progress"`
		} `json:"milestones"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	req.Title = utils.NormalizeText(req.Title)
	if req.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Title is required"})
	}
	switch req.TargetType {
	case models.TargetTypeHours, models.TargetTypeSessions, models.TargetTypeTasks:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "target_type must be hours, sessions or tasks"})
	}
	if req.TargetValue <= 0 || math.IsNaN(req.TargetValue) || math.IsInf(req.TargetValue, 0) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "target_value must be a positive number"})
	}

	milestones := make([]models.Milestone, 0, len(req.Milestones))
	for _, m := range req.Milestones {
		title := utils.NormalizeText(m.Title)
		if title == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Milestone title is required"})
		}
		if m.TargetProgress <= 0 || m.TargetProgress > req.TargetValue {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Milestone target_progress must be positive and within target_value",
			})
		}
		milestones = append(milestones, models.Milestone{
			ID:             uuid.NewString(),
			Title:          title,
			TargetProgress: m.TargetProgress,
		})
	}
	sort.Slice(milestones, func(i, j int) bool {
		return milestones[i].TargetProgress < milestones[j].TargetProgress
	})

	goal := &models.Goal{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       req.Title,
		Subject:     utils.NormalizeText(req.Subject),
		TargetType:  req.TargetType,
		TargetValue: req.TargetValue,
		Status:      models.GoalStatusActive,
		Milestones:  milestones,
		Deadline:    req.Deadline,
		Version:     1,
	}

	if err := s.Goals.Create(c.UserContext(), goal); err != nil {
		log.Printf("DB Error creating goal: %v", err)
		return storeErrorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(goal)
}

// GetGoals lists the caller's goals, optionally filtered by status
func (s *GoalService) GetGoals(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var status models.GoalStatus
	switch c.Query("status") {
	case "active":
		status = models.GoalStatusActive
	case "completed":
		status = models.GoalStatusCompleted
	case "archived":
		status = models.GoalStatusArchived
	case "":
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid status filter"})
	}

	goals, err := s.Goals.List(c.UserContext(), userID, status)
	if err != nil {
		log.Printf("DB Error listing goals: %v", err)
		return storeErrorResponse(c, err)
	}
	return c.JSON(goals)
}

// GetGoalByID fetches one goal (owner-checked)
func (s *GoalService) GetGoalByID(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	goalID := c.Params("id")
	if _, err := uuid.Parse(goalID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid goal ID"})
	}

	goal, err := s.Goals.Get(c.UserContext(), goalID, userID)
	if err != nil {
		return storeErrorResponse(c, err)
	}
	return c.JSON(goal)
}

// UpdateGoal edits title, subject or deadline. Progress fields never move
// through here; they belong to the engine.
func (s *GoalService) UpdateGoal(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	goalID := c.Params("id")
	if _, err := uuid.Parse(goalID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid goal ID"})
	}

	var req struct {
		Title    *string    `json:"title"`
		Subject  *string    `json:"subject"`
		Deadline *time.Time `json:"deadline"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	goal, err := s.Goals.Get(c.UserContext(), goalID, userID)
	if err != nil {
		return storeErrorResponse(c, err)
	}

	if req.Title != nil {
		title := utils.NormalizeText(*req.Title)
		if title == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Title cannot be empty"})
		}
		goal.Title = title
	}
	if req.Subject != nil {
		goal.Subject = utils.NormalizeText(*req.Subject)
	}
	if req.Deadline != nil {
		goal.Deadline = req.Deadline
	}

	if err := s.Goals.UpdateMeta(c.UserContext(), goal); err != nil {
		log.Printf("DB Error updating goal: %v", err)
		return storeErrorResponse(c, err)
	}
	return c.JSON(goal)
}

// ArchiveGoal retires a goal. Archiving an already-archived goal is a no-op
// success; any later progress update is rejected with GOAL_ARCHIVED.
func (s *GoalService) ArchiveGoal(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	goalID := c.Params("id")
	if _, err := uuid.Parse(goalID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid goal ID"})
	}

	archived, err := s.Goals.Archive(c.UserContext(), goalID, userID)
	if err != nil {
		return storeErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"message":          "Goal archived",
		"already_archived": !archived,
	})
}

// DeleteGoal soft-deletes a goal and drops its ledger
func (s *GoalService) DeleteGoal(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	goalID := c.Params("id")
	if _, err := uuid.Parse(goalID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid goal ID"})
	}

	if err := s.Goals.Delete(c.UserContext(), goalID, userID); err != nil {
		return storeErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"message": "Goal deleted successfully"})
}

// GetGoalEntries returns the goal's progress ledger, newest first
func (s *GoalService) GetGoalEntries(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	goalID := c.Params("id")
	if _, err := uuid.Parse(goalID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid goal ID"})
	}

	// ownership check before touching the ledger
	if _, err := s.Goals.Get(c.UserContext(), goalID, userID); err != nil {
		return storeErrorResponse(c, err)
	}

	page := c.QueryInt("page", 1)
	size := c.QueryInt("size", 20)
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	entries, err := s.Goals.Entries(c.UserContext(), goalID, size, (page-1)*size)
	if err != nil {
		return storeErrorResponse(c, err)
	}
	total, err := s.Goals.CountEntries(c.UserContext(), goalID)
	if err != nil {
		return storeErrorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"entries":     entries,
		"page":        page,
		"size":        size,
		"total_items": total,
	})
}

// ApplyProgress applies one signed delta to the goal and returns what changed
func (s *GoalService) ApplyProgress(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	goalID := c.Params("id")
	if _, err := uuid.Parse(goalID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid goal ID"})
	}

	var req struct {
		Delta float64 `json:"delta"`
		Note  string  `json:"note"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	result, err := s.Engine.ApplyProgress(c.UserContext(), userID, goalID, req.Delta, utils.NormalizeText(req.Note))
	if err != nil {
		return progressErrorResponse(c, err)
	}
	return c.JSON(result)
}

// progressErrorResponse maps the engine's error taxonomy onto HTTP statuses
// with stable machine-readable codes, so the client can tell "try again"
// from "this goal no longer exists".
func progressErrorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, stores.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Goal not found", "code": "GOAL_NOT_FOUND",
		})
	case errors.Is(err, ErrGoalArchived):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Goal is archived", "code": "GOAL_ARCHIVED",
		})
	case errors.Is(err, ErrInvalidDelta):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Delta must be a finite number", "code": "INVALID_DELTA",
		})
	case errors.Is(err, ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Too many concurrent updates, try again", "code": "CONFLICT",
		})
	case errors.Is(err, stores.ErrStorageUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Storage unavailable, retry with backoff", "code": "STORAGE_UNAVAILABLE",
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Request cancelled", "code": "CANCELLED",
		})
	default:
		log.Printf("Unexpected progress error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal error", "code": "INTERNAL",
		})
	}
}

// storeErrorResponse maps plain store errors for the CRUD handlers
func storeErrorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, stores.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Goal not found", "code": "GOAL_NOT_FOUND",
		})
	case errors.Is(err, stores.ErrStorageUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Storage unavailable, retry with backoff", "code": "STORAGE_UNAVAILABLE",
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal error", "code": "INTERNAL",
		})
	}
}
