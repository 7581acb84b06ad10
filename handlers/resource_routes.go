// handlers/resource_routes.go
package handlers

import (
	"study-progress-system/middleware"
	"study-progress-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupResourceRoutes(app *fiber.App, resourceService *services.ResourceService) {
	// 🔐 Secured routes — require user context (userID, roles)
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/resources", resourceService.UploadResource)
	secured.Get("/resources", resourceService.GetResources)
	secured.Delete("/resources/:id", resourceService.DeleteResource)
}
