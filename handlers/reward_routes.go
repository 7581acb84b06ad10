// handlers/reward_routes.go
package handlers

import (
	"study-progress-system/middleware"
	"study-progress-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupRewardRoutes(app *fiber.App, rewardService *services.RewardService) {
	// 🔐 Secured routes — require user context (userID, roles)
	secured := app.Group("/", middleware.UserContextMiddleware())

	// User-facing reward inventory
	secured.Get("/rewards", rewardService.GetUserRewards)
	secured.Get("/rewards/counts", rewardService.GetUserRewardCounts)
	secured.Post("/rewards/:id/claim", rewardService.ClaimReward)
	secured.Patch("/rewards/:id/viewed", rewardService.MarkRewardAsViewed)
	secured.Patch("/rewards/viewed", rewardService.MarkAllRewardsAsViewed)

	// Points, level, streaks and badges for the current user
	secured.Get("/users/me/rewards", rewardService.GetMyRewardState)

	// 🛡️ Catalog management; the admin role check happens inside the handlers
	secured.Get("/admin/rewards", rewardService.GetAllRewards)
	secured.Post("/admin/rewards", rewardService.CreateReward)
	secured.Patch("/admin/rewards/:id", rewardService.UpdateReward)
	secured.Patch("/admin/rewards/:id/status", rewardService.UpdateRewardStatus)
	secured.Delete("/admin/rewards/:id", rewardService.DeleteReward)
}
