// handlers/dashboard_routes.go
package handlers

import (
	"study-progress-system/middleware"
	"study-progress-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupDashboardRoutes(app *fiber.App, dashboardService *services.DashboardService) {
	// 🔐 Secured routes — require user context (userID, roles)
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Get("/dashboard/summary", dashboardService.GetSummary)
}
