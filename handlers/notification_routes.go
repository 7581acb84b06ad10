// handlers/notification_routes.go
package handlers

import (
	"study-progress-system/middleware"
	"study-progress-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupNotificationRoutes(app *fiber.App, notificationService *services.NotificationService) {
	// 🔐 Secured routes — require user context (userID, roles)
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Get("/notifications", notificationService.GetNotifications)
	secured.Patch("/notifications/read", notificationService.MarkNotificationsRead)
}
