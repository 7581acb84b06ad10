// services/reward_service.go
package services

import (
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"study-progress-system/models"
	"study-progress-system/stores"
	"study-progress-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RewardService struct {
	DB     *gorm.DB
	States stores.RewardStateStore
}

func NewRewardService(db *gorm.DB, states stores.RewardStateStore) *RewardService {
	return &RewardService{DB: db, States: states}
}

// --- Admin Handlers ---

// CreateReward creates a new reward (Admin only)
func (s *RewardService) CreateReward(c *fiber.Ctx) error {
	if !hasRole(c, "admin") {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Admin role required"})
	}

	var req struct {
		Title       string                `json:"title"`
		Type        models.RewardType     `json:"type"`
		Category    models.RewardCategory `json:"category"`
		ImageURL    string                `json:"image_url"`
		Emoji       string                `json:"emoji"`
		Excerpt     string                `json:"excerpt"`
		ItemDetails string                `json:"item_details"`
		ExpiryDate  *time.Time            `json:"expiry_date"`
		UserID      string                `json:"user_id"`
		Level       int                   `json:"level"`
		Status      models.RewardStatus   `json:"status"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	req.Title = utils.NormalizeText(req.Title)
	if req.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Title is required"})
	}
	switch req.Type {
	case models.RewardTypeTreat, models.RewardTypeItem:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "type must be treat or item"})
	}
	if req.Type == models.RewardTypeItem && req.ItemDetails == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Item details are required for item rewards"})
	}
	switch req.Status {
	case models.RewardStatusDraft, models.RewardStatusPublished, models.RewardStatusArchived:
	case "":
		req.Status = models.RewardStatusDraft
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "status must be draft, published or archived"})
	}
	if req.Level < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "level cannot be negative"})
	}

	reward := &models.Reward{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Type:        req.Type,
		Category:    req.Category,
		ImageURL:    req.ImageURL,
		Emoji:       req.Emoji,
		Excerpt:     req.Excerpt,
		ItemDetails: req.ItemDetails,
		ExpiryDate:  req.ExpiryDate,
		Claimed:     false,
		UserID:      req.UserID,
		Level:       req.Level,
		Status:      req.Status,
		Viewed:      false,
	}

	if err := s.DB.Create(reward).Error; err != nil {
		log.Printf("DB Error creating reward: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create reward"})
	}

	return c.Status(fiber.StatusCreated).JSON(reward)
}

// UpdateReward updates an existing reward (Admin only)
func (s *RewardService) UpdateReward(c *fiber.Ctx) error {
	if !hasRole(c, "admin") {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Admin role required"})
	}

	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid reward ID"})
	}

	var existingReward models.Reward
	if err := s.DB.First(&existingReward, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Reward not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	var req struct {
		Title       *string              `json:"title"`
		Type        *models.RewardType   `json:"type"`
		ImageURL    *string              `json:"image_url"`
		Emoji       *string              `json:"emoji"`
		Excerpt     *string              `json:"excerpt"`
		ItemDetails *string              `json:"item_details"`
		ExpiryDate  *time.Time           `json:"expiry_date"`
		UserID      *string              `json:"user_id"`
		Level       *int                 `json:"level"`
		Status      *models.RewardStatus `json:"status"`
		Viewed      *bool                `json:"viewed"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	// Apply updates if provided
	if req.Title != nil {
		title := utils.NormalizeText(*req.Title)
		if title == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Title cannot be empty"})
		}
		existingReward.Title = title
	}
	if req.Type != nil {
		existingReward.Type = *req.Type
		if *req.Type == models.RewardTypeItem && req.ItemDetails == nil && existingReward.ItemDetails == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Item details are required for item rewards"})
		}
	}
	if req.ImageURL != nil {
		existingReward.ImageURL = *req.ImageURL
	}
	if req.Emoji != nil {
		existingReward.Emoji = *req.Emoji
	}
	if req.Excerpt != nil {
		existingReward.Excerpt = *req.Excerpt
	}
	if req.ItemDetails != nil {
		existingReward.ItemDetails = *req.ItemDetails
	}
	if req.ExpiryDate != nil {
		existingReward.ExpiryDate = req.ExpiryDate
	}
	if req.UserID != nil {
		existingReward.UserID = *req.UserID
	}
	if req.Level != nil {
		existingReward.Level = *req.Level
	}
	if req.Status != nil {
		existingReward.Status = *req.Status
	}
	if req.Viewed != nil {
		existingReward.Viewed = *req.Viewed
	}

	if err := s.DB.Save(&existingReward).Error; err != nil {
		log.Printf("DB Error updating reward: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update reward"})
	}

	return c.JSON(existingReward)
}

// DeleteReward deletes a reward (Admin only)
func (s *RewardService) DeleteReward(c *fiber.Ctx) error {
	if !hasRole(c, "admin") {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Admin role required"})
	}

	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid reward ID"})
	}

	var reward models.Reward
	if err := s.DB.First(&reward, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Reward not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	if err := s.DB.Delete(&reward).Error; err != nil {
		log.Printf("DB Error deleting reward: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete reward"})
	}

	return c.JSON(fiber.Map{"message": "Reward deleted successfully"})
}

// UpdateRewardStatus allows admin to change the status (e.g., draft -> published)
func (s *RewardService) UpdateRewardStatus(c *fiber.Ctx) error {
	if !hasRole(c, "admin") {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Admin role required"})
	}

	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid reward ID"})
	}

	var req struct {
		Status models.RewardStatus `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	switch req.Status {
	case models.RewardStatusDraft, models.RewardStatusPublished, models.RewardStatusArchived:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "status must be draft, published or archived"})
	}

	var existingReward models.Reward
	if err := s.DB.First(&existingReward, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Reward not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	existingReward.Status = req.Status

	if err := s.DB.Save(&existingReward).Error; err != nil {
		log.Printf("DB Error updating reward status: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update reward status"})
	}

	return c.JSON(fiber.Map{"message": "Reward status updated successfully", "reward": existingReward})
}

// GetAllRewards fetches all rewards (Admin only)
func (s *RewardService) GetAllRewards(c *fiber.Ctx) error {
	if !hasRole(c, "admin") {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Admin role required"})
	}

	var rewards []models.Reward
	if err := s.DB.Order("created_at DESC").Find(&rewards).Error; err != nil {
		log.Printf("DB Error fetching all rewards: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch rewards"})
	}

	return c.JSON(rewards)
}

// --- User Handlers ---

// GetUserRewards fetches rewards for the *authenticated* user based on filters
func (s *RewardService) GetUserRewards(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	limitStr := c.Query("limit")
	claimedStr := c.Query("claimed") // claimed=all (default), claimed=true, claimed=false
	statusStr := c.Query("status")   // status=published (default), status=any

	var limit *int
	if limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid limit parameter"})
		}
		limit = &l
	}

	var claimedFilter *bool
	switch strings.ToLower(claimedStr) {
	case "true":
		claimed := true
		claimedFilter = &claimed
	case "false":
		claimed := false
		claimedFilter = &claimed
		// Default ("all" or not provided) means no filter on claimed status
	}

	var statusFilter *models.RewardStatus
	switch strings.ToLower(statusStr) {
	case "any":
		// No filter on status
	case "published", "draft", "archived":
		status := models.RewardStatus(strings.ToLower(statusStr))
		statusFilter = &status
	default:
		publishedStatus := models.RewardStatusPublished
		statusFilter = &publishedStatus
	}

	query := s.DB.Where("user_id = ?", userID)

	if claimedFilter != nil {
		query = query.Where("claimed = ?", *claimedFilter)
	}
	if statusFilter != nil {
		query = query.Where("status = ?", *statusFilter)
	}

	var rewards []models.Reward
	dbQuery := query.Order("created_at DESC")

	if limit != nil {
		dbQuery = dbQuery.Limit(*limit)
	}

	if err := dbQuery.Find(&rewards).Error; err != nil {
		log.Printf("DB Error fetching user rewards: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch rewards"})
	}

	return c.JSON(rewards)
}

// GetUserRewardCounts returns total/unviewed/unclaimed counts for the
// authenticated user. Cheap enough for the client to poll.
func (s *RewardService) GetUserRewardCounts(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	now := time.Now()

	// Session() keeps the three counts independent; without it the chained
	// Where conditions stack across finishers
	baseQuery := s.DB.Model(&models.Reward{}).
		Where("user_id = ?", userID).
		Where("status = ?", models.RewardStatusPublished).
		Where("(expiry_date IS NULL OR expiry_date >= ?)", now).
		Session(&gorm.Session{})

	var totalCount int64
	if err := baseQuery.Count(&totalCount).Error; err != nil {
		log.Printf("DB Error counting total rewards: %v", err)
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "DB error counting total rewards"})
	}

	var unviewedCount int64
	if err := baseQuery.
		Where("viewed = ?", false).
		Count(&unviewedCount).Error; err != nil {
		log.Printf("DB Error counting unviewed rewards: %v", err)
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "DB error counting unviewed rewards"})
	}

	var unclaimedCount int64
	if err := baseQuery.
		Where("claimed = ?", false).
		Count(&unclaimedCount).Error; err != nil {
		log.Printf("DB Error counting unclaimed rewards: %v", err)
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "DB error counting unclaimed rewards"})
	}

	return c.JSON(fiber.Map{
		"total_count":     totalCount,
		"unviewed_count":  unviewedCount,
		"unclaimed_count": unclaimedCount,
	})
}

// ClaimReward handles the claiming of a reward by the user. Claiming is
// gated on the user's level; points are never deducted.
func (s *RewardService) ClaimReward(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	rewardID := c.Params("id")

	if _, err := uuid.Parse(rewardID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid reward ID"})
	}

	var reward models.Reward
	if err := s.DB.Where("id = ? AND user_id = ?", rewardID, userID).First(&reward).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Reward not found or not owned by user"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	if reward.Claimed {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Reward already claimed"})
	}
	if reward.Status != models.RewardStatusPublished {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Reward is not available for claiming"})
	}
	if reward.ExpiryDate != nil && reward.ExpiryDate.Before(time.Now()) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Reward has expired"})
	}

	if reward.Level > 0 {
		state, err := s.States.GetOrCreate(c.UserContext(), userID)
		if err != nil {
			log.Printf("DB Error loading reward state: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
		}
		if state.Level < reward.Level {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":          "Level too low to claim this reward",
				"required_level": reward.Level,
				"current_level":  state.Level,
			})
		}
	}

	now := time.Now()
	reward.Claimed = true
	reward.ClaimedAt = &now
	if err := s.DB.Save(&reward).Error; err != nil {
		log.Printf("DB Error claiming reward: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to claim reward"})
	}

	log.Printf("🎁 Reward claimed: %s by %s", reward.Title, userID)
	return c.JSON(fiber.Map{"message": "Reward claimed successfully", "reward": reward})
}

// MarkRewardAsViewed marks a single reward as viewed (idempotent)
func (s *RewardService) MarkRewardAsViewed(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	rewardID := c.Params("id")

	if _, err := uuid.Parse(rewardID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid reward ID"})
	}

	var reward models.Reward
	if err := s.DB.Where("id = ? AND user_id = ?", rewardID, userID).First(&reward).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Reward not found or not owned"})
		}
		log.Printf("DB error fetching reward: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	if !reward.Viewed {
		reward.Viewed = true
		if err := s.DB.Save(&reward).Error; err != nil {
			log.Printf("Failed to update viewed status: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to mark as viewed"})
		}
	}

	return c.JSON(fiber.Map{"message": "OK", "reward_id": reward.ID, "viewed": true})
}

// MarkAllRewardsAsViewed marks every unviewed reward for the user as viewed
func (s *RewardService) MarkAllRewardsAsViewed(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	result := s.DB.Model(&models.Reward{}).
		Where("user_id = ? AND viewed = ?", userID, false).
		Update("viewed", true)

	if result.Error != nil {
		log.Printf("Bulk mark viewed failed: %v", result.Error)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update rewards"})
	}

	return c.JSON(fiber.Map{
		"message":      "OK",
		"marked_count": result.RowsAffected,
	})
}

// hasRole reports whether the gateway granted the caller the given role
func hasRole(c *fiber.Ctx, role string) bool {
	roles, _ := c.Locals("user_roles").([]string)
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// GetMyRewardState returns the caller's points, level, streaks and badges
func (s *RewardService) GetMyRewardState(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	state, err := s.States.GetOrCreate(c.UserContext(), userID)
	if err != nil {
		log.Printf("DB Error loading reward state: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load reward state"})
	}

	badges := make([]fiber.Map, 0, len(state.Badges))
	for _, award := range state.Badges {
		entry := fiber.Map{
			"code":        award.Code,
			"unlocked_at": award.UnlockedAt,
		}
		if b, ok := models.BadgeByCode(award.Code); ok {
			entry["name"] = b.Name
			entry["description"] = b.Description
			entry["icon"] = b.Icon
			entry["rarity"] = b.Rarity
		}
		badges = append(badges, entry)
	}

	return c.JSON(fiber.Map{
		"total_points":         state.TotalPoints,
		"level":                state.Level,
		"next_level_threshold": LevelThreshold(state.Level + 1),
		"total_sessions":       state.TotalSessions,
		"total_minutes":        state.TotalMinutes,
		"goals_completed":      state.GoalsCompleted,
		"milestones_hit":       state.MilestonesHit,
		"current_streak":       state.CurrentStreak,
		"longest_streak":       state.LongestStreak,
		"last_study_date":      state.LastStudyDate,
		"last_level_up_at":     state.LastLevelUpAt,
		"badges":               badges,
	})
}
