// handlers/session_routes.go
package handlers

import (
	"study-progress-system/middleware"
	"study-progress-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupSessionRoutes(app *fiber.App, sessionService *services.SessionService) {
	// 🔐 Secured routes — require user context (userID, roles)
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/sessions/start", sessionService.StartSession)
	secured.Post("/sessions/:id/finish", sessionService.FinishSession)
	secured.Get("/sessions", sessionService.GetSessions)
	secured.Get("/sessions/active", sessionService.GetActiveSession)
}
