package services

import (
	"fmt"

	"coin-reward-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LedgerService owns every mutation of a user's coin balance. All three
// primitives run server-side read-modify-writes (SET x = x + ?, conditional
// UPDATE) so concurrent reward sources on the same account can never commit
// a stale value. Callers pass the surrounding transaction handle; the ledger
// never opens its own.
type LedgerService struct {
	DB       *gorm.DB
	Settings *SettingsService
	Events   Publisher
}

func NewLedgerService(db *gorm.DB, settings *SettingsService, events Publisher) *LedgerService {
	return &LedgerService{DB: db, Settings: settings, Events: events}
}

// Credit increases coin_balance and total_earned atomically, recomputes the
// level from the configured threshold and journals the entry.
func (s *LedgerService) Credit(tx *gorm.DB, userID string, amount int64, txType models.TransactionType, description string) (*models.User, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	res := tx.Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"coin_balance": gorm.Expr("coin_balance + ?", amount),
			"total_earned": gorm.Expr("total_earned + ?", amount),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return s.journal(tx, userID, amount, txType, description, true)
}

// Debit decreases coin_balance only. The sufficiency check and the decrement
// are one guarded statement; zero rows affected on an existing user means the
// committed balance was too low.
func (s *LedgerService) Debit(tx *gorm.DB, userID string, amount int64, txType models.TransactionType, description string) (*models.User, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	res := tx.Model(&models.User{}).
		Where("id = ? AND coin_balance >= ?", userID, amount).
		Update("coin_balance", gorm.Expr("coin_balance - ?", amount))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		var exists int64
		if err := tx.Model(&models.User{}).Where("id = ?", userID).Count(&exists).Error; err != nil {
			return nil, err
		}
		if exists == 0 {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, ErrInsufficientBalance
	}
	return s.journal(tx, userID, -amount, txType, description, false)
}

// Adjust applies a signed administrative delta without the sufficiency check.
// Used by the withdrawal engine to refund a failed payout and by admin
// corrections; total_earned is untouched.
func (s *LedgerService) Adjust(tx *gorm.DB, userID string, delta int64, txType models.TransactionType, description string) (*models.User, error) {
	if delta == 0 {
		return nil, ErrInvalidAmount
	}
	res := tx.Model(&models.User{}).
		Where("id = ?", userID).
		Update("coin_balance", gorm.Expr("coin_balance + ?", delta))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return s.journal(tx, userID, delta, txType, description, false)
}

// journal reloads the committed row, applies level recomputation for earning
// credits and writes the CoinTransaction entry.
func (s *LedgerService) journal(tx *gorm.DB, userID string, amount int64, txType models.TransactionType, description string, recomputeLevel bool) (*models.User, error) {
	var user models.User
	if err := tx.First(&user, "id = ?", userID).Error; err != nil {
		return nil, err
	}

	if recomputeLevel {
		cfg, err := s.Settings.CoinSettings()
		if err != nil {
			return nil, err
		}
		if newLevel := int(user.TotalEarned/cfg.LevelUpThreshold) + 1; newLevel != user.Level {
			if err := tx.Model(&models.User{}).Where("id = ?", userID).Update("level", newLevel).Error; err != nil {
				return nil, err
			}
			user.Level = newLevel
		}
	}

	entry := models.CoinTransaction{
		ID:           uuid.NewString(),
		UserID:       userID,
		Amount:       amount,
		BalanceAfter: user.CoinBalance,
		Type:         txType,
		Description:  description,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("failed to journal transaction: %w", err)
	}

	s.Events.BalanceChanged(userID, user.CoinBalance, txType)
	return &user, nil
}

// CreditUser is the standalone variant for callers without an open
// transaction (deposit webhook, admin tooling).
func (s *LedgerService) CreditUser(userID string, amount int64, txType models.TransactionType, description string) (*models.User, error) {
	var user *models.User
	err := runInTx(s.DB, func(tx *gorm.DB) error {
		var err error
		user, err = s.Credit(tx, userID, amount, txType, description)
		return err
	})
	return user, err
}

// AdjustUser is the standalone variant of Adjust.
func (s *LedgerService) AdjustUser(userID string, delta int64, txType models.TransactionType, description string) (*models.User, error) {
	var user *models.User
	err := runInTx(s.DB, func(tx *gorm.DB) error {
		var err error
		user, err = s.Adjust(tx, userID, delta, txType, description)
		return err
	})
	return user, err
}

// HandleDepositWebhook credits coins purchased through the payment provider.
// Authenticity is checked by the webhook middleware upstream.
func (s *LedgerService) HandleDepositWebhook(c *fiber.Ctx) error {
	var req struct {
		UserID    string `json:"userId"`
		Amount    int64  `json:"amount"`
		Reference string `json:"reference"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.UserID == "" || req.Amount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "userId and a positive amount are required"})
	}

	user, err := s.CreditUser(req.UserID, req.Amount, models.TxTypeDeposit,
		fmt.Sprintf("Deposit %s", req.Reference))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "coinBalance": user.CoinBalance})
}

// Transactions returns a page of the user's journal, newest first.
func (s *LedgerService) Transactions(userID string, page, limit int) ([]models.CoinTransaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	var total int64
	if err := s.DB.Model(&models.CoinTransaction{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, classifyStoreError(err)
	}

	var entries []models.CoinTransaction
	err := s.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).Offset((page - 1) * limit).
		Find(&entries).Error
	if err != nil {
		return nil, 0, classifyStoreError(err)
	}
	return entries, total, nil
}
