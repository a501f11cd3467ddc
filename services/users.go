// services/users.go
package services

import (
	"strings"

	"coin-reward-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// UserService exposes admin operations over user accounts.
type UserService struct {
	DB     *gorm.DB
	Ledger *LedgerService
}

func NewUserService(db *gorm.DB, ledger *LedgerService) *UserService {
	return &UserService{DB: db, Ledger: ledger}
}

// SearchUsers searches users by username or telegram ID (Admin only)
func (s *UserService) SearchUsers(c *fiber.Ctx) error {
	query := c.Query("q", "")
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var users []models.User
	db := s.DB.Model(&models.User{}).Order("created_at DESC").Limit(limit)

	if query != "" {
		searchTerm := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
		db = db.Where(
			"LOWER(username) LIKE ? OR LOWER(first_name) LIKE ? OR CAST(telegram_id AS TEXT) LIKE ?",
			searchTerm, searchTerm, searchTerm,
		)
	}

	if err := db.Find(&users).Error; err != nil {
		return respondError(c, classifyStoreError(err))
	}

	type userSummary struct {
		ID          string  `json:"id"`
		TelegramID  int64   `json:"telegram_id"`
		Username    *string `json:"username"`
		FirstName   *string `json:"first_name"`
		CoinBalance int64   `json:"coin_balance"`
		TotalEarned int64   `json:"total_earned"`
		Level       int     `json:"level"`
		IsAdmin     bool    `json:"is_admin"`
	}

	res := make([]userSummary, len(users))
	for i, u := range users {
		res[i] = userSummary{
			ID:          u.ID,
			TelegramID:  u.TelegramID,
			Username:    u.Username,
			FirstName:   u.FirstName,
			CoinBalance: u.CoinBalance,
			TotalEarned: u.TotalEarned,
			Level:       u.Level,
			IsAdmin:     u.IsAdmin,
		}
	}

	return c.JSON(res)
}

// HandleLevel reports the caller's level progress toward the next threshold.
func (s *UserService) HandleLevel(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	var user models.User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		return respondError(c, err)
	}

	cfg, err := s.Ledger.Settings.CoinSettings()
	if err != nil {
		return respondError(c, err)
	}
	nextLevelAt := int64(user.Level) * cfg.LevelUpThreshold

	return c.JSON(fiber.Map{
		"level":       user.Level,
		"totalEarned": user.TotalEarned,
		"nextLevelAt": nextLevelAt,
		"progress":    user.TotalEarned - (nextLevelAt - cfg.LevelUpThreshold),
	})
}

// HandleStats reports economy-wide aggregates (Admin only)
func (s *UserService) HandleStats(c *fiber.Ctx) error {
	var totalUsers int64
	if err := s.DB.Model(&models.User{}).Count(&totalUsers).Error; err != nil {
		return respondError(c, classifyStoreError(err))
	}

	var circulating int64
	if err := s.DB.Model(&models.User{}).
		Select("COALESCE(SUM(coin_balance), 0)").Scan(&circulating).Error; err != nil {
		return respondError(c, classifyStoreError(err))
	}

	var pendingWithdrawals int64
	if err := s.DB.Model(&models.Withdrawal{}).
		Where("status IN ?", []models.WithdrawalStatus{
			models.WithdrawalStatusPending,
			models.WithdrawalStatusApproved,
			models.WithdrawalStatusProcessing,
		}).Count(&pendingWithdrawals).Error; err != nil {
		return respondError(c, classifyStoreError(err))
	}

	var completedTasks int64
	if err := s.DB.Model(&models.TaskCompletion{}).Count(&completedTasks).Error; err != nil {
		return respondError(c, classifyStoreError(err))
	}

	return c.JSON(fiber.Map{
		"totalUsers":         totalUsers,
		"coinsInCirculation": circulating,
		"pendingWithdrawals": pendingWithdrawals,
		"completedTasks":     completedTasks,
	})
}

// HandleUpdateUser patches account flags (Admin only)
func (s *UserService) HandleUpdateUser(c *fiber.Ctx) error {
	userID := c.Params("id")
	var req struct {
		IsAdmin *bool `json:"is_admin"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.IsAdmin == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no updatable fields given"})
	}

	res := s.DB.Model(&models.User{}).Where("id = ?", userID).Update("is_admin", *req.IsAdmin)
	if res.Error != nil {
		return respondError(c, classifyStoreError(res.Error))
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": true, "message": "User not found"})
	}
	return c.JSON(fiber.Map{"success": true})
}

// HandleAdjustBalance credits or debits a user by a signed delta (Admin only)
func (s *UserService) HandleAdjustBalance(c *fiber.Ctx) error {
	userID := c.Params("id")
	var req struct {
		Delta  int64  `json:"delta"`
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Reason == "" {
		req.Reason = "Admin balance adjustment"
	}

	user, err := s.Ledger.AdjustUser(userID, req.Delta, models.TxTypeAdminAdjust, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":     true,
		"coinBalance": user.CoinBalance,
	})
}
