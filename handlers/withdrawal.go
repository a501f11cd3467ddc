// handlers/withdrawal.go
package handlers

import (
	"log"
	"os"

	"coin-reward-system/middleware"
	"coin-reward-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupWithdrawalRoutes(app *fiber.App, auth *services.AuthService, withdrawals *services.WithdrawalService, settings *services.SettingsService, ledger *services.LedgerService) {
	// 🔐 Authenticated routes
	secured := app.Group("/", middleware.AuthMiddleware(auth))

	secured.Get("/withdrawals", withdrawals.ListWithdrawals)
	secured.Post("/withdrawals", withdrawals.HandleRequest)
	secured.Get("/settings/withdrawal", settings.GetWithdrawalSettings)

	// Provider callbacks, authenticated by HMAC signature
	webhookSecret := os.Getenv("WEBHOOK_SECRET")
	if webhookSecret == "" {
		log.Printf("⚠️ [ROUTES] WEBHOOK_SECRET not set — provider webhooks disabled")
		return
	}
	webhooks := app.Group("/webhooks", middleware.WebhookAuthMiddleware(webhookSecret))
	webhooks.Post("/payout", withdrawals.HandleSettlementWebhook)
	webhooks.Post("/deposit", ledger.HandleDepositWebhook)
}
