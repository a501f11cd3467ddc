// handlers/coins.go
package handlers

import (
	"coin-reward-system/middleware"
	"coin-reward-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupCoinRoutes(app *fiber.App, auth *services.AuthService, tap *services.TapService, ledger *services.LedgerService, tasks *services.TaskService, referrals *services.ReferralService, settings *services.SettingsService, users *services.UserService) {
	// 🔓 Public routes
	app.Post("/auth/telegram", auth.HandleLogin)

	// 🔐 Authenticated routes
	secured := app.Group("/", middleware.AuthMiddleware(auth))

	secured.Get("/user/me", auth.HandleMe)
	secured.Get("/user/referrals", referrals.GetReferralStats)
	secured.Get("/user/level", users.HandleLevel)

	secured.Get("/settings/coins", settings.GetCoinSettings)

	secured.Get("/coins/balance", tap.GetBalance)
	secured.Post("/coins/tap", tap.HandleTap)
	secured.Get("/coins/transactions", tap.GetTransactions)

	secured.Get("/tasks", tasks.ListTasks)
	secured.Post("/tasks/:taskId/complete", tasks.HandleCompleteTask)

	// SSE uses query-param auth since EventSource cannot set headers
	app.Get("/coins/transactions/stream", middleware.SSEAuthMiddleware(auth), ledger.StreamTransactionsSSE)
}
