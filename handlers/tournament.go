// handlers/tournament.go
package handlers

import (
	"coin-reward-system/middleware"
	"coin-reward-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupTournamentRoutes(app *fiber.App, auth *services.AuthService, tournaments *services.TournamentService) {
	// 🔓 Public routes (listing upcoming/active tournaments)
	app.Get("/tournaments", tournaments.ListTournaments)

	// 🔐 Authenticated routes
	secured := app.Group("/", middleware.AuthMiddleware(auth))

	secured.Get("/tournaments/:id", tournaments.GetTournament)
	secured.Post("/tournaments/:id/join", tournaments.HandleJoin)
}
