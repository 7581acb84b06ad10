// handlers/goal_routes.go
package handlers

import (
	"study-progress-system/middleware"
	"study-progress-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupGoalRoutes(app *fiber.App, goalService *services.GoalService) {
	// 🔐 All goal routes require user context from the gateway
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/goals", goalService.CreateGoal)
	secured.Get("/goals", goalService.GetGoals)
	secured.Get("/goals/:id", goalService.GetGoalByID)
	secured.Patch("/goals/:id", goalService.UpdateGoal)
	secured.Post("/goals/:id/archive", goalService.ArchiveGoal)
	secured.Delete("/goals/:id", goalService.DeleteGoal)
	secured.Get("/goals/:id/entries", goalService.GetGoalEntries)

	// the progress endpoint drives the whole reward cascade
	secured.Post("/goals/:id/progress", goalService.ApplyProgress)
}
