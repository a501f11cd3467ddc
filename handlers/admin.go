// handlers/admin.go
package handlers

import (
	"coin-reward-system/middleware"
	"coin-reward-system/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func SetupAdminRoutes(app *fiber.App, db *gorm.DB, auth *services.AuthService, users *services.UserService, tasks *services.TaskService, tournaments *services.TournamentService, withdrawals *services.WithdrawalService, settings *services.SettingsService) {
	// 🔐 Admin routes — authenticated AND is_admin checked against the DB
	admin := app.Group("/admin", middleware.AuthMiddleware(auth), middleware.AdminMiddleware(db))

	admin.Get("/users", users.SearchUsers)
	admin.Patch("/users/:id", users.HandleUpdateUser)
	admin.Post("/users/:id/adjust", users.HandleAdjustBalance)
	admin.Get("/stats", users.HandleStats)

	admin.Post("/tasks", tasks.CreateTask)
	admin.Delete("/tasks/:taskId", tasks.DeactivateTask)

	admin.Post("/tournaments", tournaments.CreateTournament)
	admin.Patch("/tournaments/:id/status", tournaments.UpdateStatus)
	admin.Post("/tournaments/:id/distribute", tournaments.HandleDistributePrizes)

	admin.Post("/withdrawals/:id/approve", withdrawals.HandleApprove)

	admin.Get("/settings/coins", settings.GetCoinSettings)
	admin.Put("/settings/coins", settings.UpdateCoinSettings)
	admin.Put("/settings/withdrawal", settings.UpdateWithdrawalSettings)
}
