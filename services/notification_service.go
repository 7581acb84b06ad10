package services

import (
	"context"
	"encoding/json"
	"log"

	"study-progress-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationService persists domain events as notification rows and
// serves them to the polling client. It is the EventSink the progress
// engine emits into.
type NotificationService struct {
	DB *gorm.DB
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{DB: db}
}

// Emit writes one notification row. Failures are logged and swallowed so a
// broken sink can never fail the operation that produced the event.
func (s *NotificationService) Emit(ctx context.Context, userID string, eventType models.NotificationType, payload map[string]interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("⚠️ Failed to encode %s event for %s: %v", eventType, userID, err)
		return
	}

	notif := models.Notification{
		ID:      uuid.NewString(),
		UserID:  userID,
		Type:    eventType,
		Payload: raw,
	}
	if err := s.DB.WithContext(ctx).Create(&notif).Error; err != nil {
		log.Printf("⚠️ Failed to persist %s event for %s: %v", eventType, userID, err)
	}
}

// GetNotifications returns the user's notifications, unread first
func (s *NotificationService) GetNotifications(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}

	query := s.DB.Where("user_id = ?", userID)
	if c.Query("unread") == "true" {
		query = query.Where("read = ?", false)
	}

	var notifications []models.Notification
	if err := query.Order("read ASC, created_at DESC").Limit(limit).Find(&notifications).Error; err != nil {
		log.Printf("DB Error fetching notifications: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch notifications"})
	}

	var unread int64
	if err := s.DB.Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&unread).Error; err != nil {
		log.Printf("DB Error counting unread notifications: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to count notifications"})
	}

	return c.JSON(fiber.Map{
		"notifications": notifications,
		"unread_count":  unread,
	})
}

// MarkNotificationsRead marks the given ids (or all, when ids is empty) as read
func (s *NotificationService) MarkNotificationsRead(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		IDs []string `json:"ids"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	query := s.DB.Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false)
	if len(req.IDs) > 0 {
		query = query.Where("id IN ?", req.IDs)
	}

	result := query.Update("read", true)
	if result.Error != nil {
		log.Printf("DB Error marking notifications read: %v", result.Error)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update notifications"})
	}

	return c.JSON(fiber.Map{
		"message":      "OK",
		"marked_count": result.RowsAffected,
	})
}
