package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"coin-reward-system/handlers"
	"coin-reward-system/models"
	"coin-reward-system/services"
	"coin-reward-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		AppName: "coin-reward-system",
	})

	// Load allowed origins from environment variable
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	// TranslateError surfaces unique violations as gorm.ErrDuplicatedKey,
	// which the exactly-once paths (tasks, referrals, tournament joins)
	// depend on.
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.CoinTransaction{},
		&models.Task{},
		&models.TaskCompletion{},
		&models.Tournament{},
		&models.TournamentParticipation{},
		&models.ReferralReward{},
		&models.Withdrawal{},
		&models.Setting{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	events := services.NewLogPublisher()
	settingsService := services.NewSettingsService(db)
	ledgerService := services.NewLedgerService(db, settingsService, events)
	tapService := services.NewTapService(db, ledgerService, settingsService)
	taskService := services.NewTaskService(db, ledgerService)
	referralService := services.NewReferralService(db, ledgerService, settingsService)
	tournamentService := services.NewTournamentService(db, ledgerService)
	withdrawalService := services.NewWithdrawalService(db, ledgerService, settingsService, events)
	authService := services.NewAuthService(db, settingsService, referralService)
	userService := services.NewUserService(db, ledgerService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Payout dispatch is optional: without a provider configured, approved
	// withdrawals wait until one is wired up.
	if os.Getenv("PAYOUT_SERVICE_URL") != "" {
		payoutClient := workers.NewPayoutClient(withdrawalService)
		go workers.PollWithdrawals(ctx, payoutClient, 10*time.Second)
	} else {
		log.Println("⚠️  PAYOUT_SERVICE_URL not set — payout worker disabled")
	}

	tournamentService.StartLifecycleScheduler()

	handlers.SetupCoinRoutes(app, authService, tapService, ledgerService, taskService, referralService, settingsService, userService)
	handlers.SetupTournamentRoutes(app, authService, tournamentService)
	handlers.SetupWithdrawalRoutes(app, authService, withdrawalService, settingsService, ledgerService)
	handlers.SetupAdminRoutes(app, db, authService, userService, taskService, tournamentService, withdrawalService, settingsService)

	app.Get("/health", func(c *fiber.Ctx) error {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.Ping() != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", port)
	log.Println("✅ Tournament lifecycle scheduler running (every 1m)")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
