package services

import (
	"fmt"
	"math"
	"regexp"
	"time"

	"coin-reward-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// upiPattern matches the payout destinations the provider accepts.
var upiPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+@[a-zA-Z0-9]+$`)

// WithdrawalService drives the pending → approved → processing → completed
// state machine, with failed reachable from any non-terminal state. The coin
// amount is reserved (debited) when the request is created; a failed
// settlement refunds it in the same transaction as the state change.
type WithdrawalService struct {
	DB       *gorm.DB
	Ledger   *LedgerService
	Settings *SettingsService
	Events   Publisher
}

func NewWithdrawalService(db *gorm.DB, ledger *LedgerService, settings *SettingsService, events Publisher) *WithdrawalService {
	return &WithdrawalService{DB: db, Ledger: ledger, Settings: settings, Events: events}
}

// Request validates and records a withdrawal, debiting the balance up front
// so concurrent requests cannot overdraw.
func (s *WithdrawalService) Request(userID string, amountCoins int64, upiID string) (*models.Withdrawal, error) {
	cfg, err := s.Settings.WithdrawalSettings()
	if err != nil {
		return nil, err
	}
	if amountCoins < cfg.MinWithdrawal {
		return nil, fmt.Errorf("%w: minimum amount is %d coins", ErrInvalidRequest, cfg.MinWithdrawal)
	}
	if amountCoins > cfg.MaxWithdrawal {
		return nil, fmt.Errorf("%w: maximum amount is %d coins", ErrInvalidRequest, cfg.MaxWithdrawal)
	}
	if !upiPattern.MatchString(upiID) {
		return nil, fmt.Errorf("%w: invalid UPI ID format", ErrInvalidRequest)
	}

	amountINR := float64(amountCoins) * cfg.ConversionRate * (1 - cfg.ProcessingFee)
	amountINR = math.Round(amountINR*100) / 100

	var withdrawal *models.Withdrawal
	err = runInTx(s.DB, func(tx *gorm.DB) error {
		if _, err := s.Ledger.Debit(tx, userID, amountCoins, models.TxTypeWithdrawal,
			fmt.Sprintf("Withdrawal request to %s", upiID)); err != nil {
			return err
		}

		w := models.Withdrawal{
			ID:          uuid.NewString(),
			UserID:      userID,
			AmountCoins: amountCoins,
			AmountINR:   amountINR,
			UPIID:       upiID,
			Status:      models.WithdrawalStatusPending,
		}
		if err := tx.Create(&w).Error; err != nil {
			return err
		}
		withdrawal = &w
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Events.WithdrawalStateChanged(withdrawal.ID, "", models.WithdrawalStatusPending)
	return withdrawal, nil
}

// Approve moves a pending request to approved (operator action). The
// transition is a compare-and-set on the current state.
func (s *WithdrawalService) Approve(withdrawalID string) error {
	return s.transition(withdrawalID,
		[]models.WithdrawalStatus{models.WithdrawalStatusPending},
		models.WithdrawalStatusApproved, nil, nil)
}

// MarkProcessing claims an approved request for payout dispatch.
func (s *WithdrawalService) MarkProcessing(withdrawalID string) error {
	return s.transition(withdrawalID,
		[]models.WithdrawalStatus{models.WithdrawalStatusApproved},
		models.WithdrawalStatusProcessing, nil, nil)
}

// Settle applies the payout outcome reported by the provider. completed is
// only reachable from processing and changes no balance; failed is reachable
// from any non-terminal state and re-credits the reserved coins inside the
// same transaction as the state change. Terminal states reject repeats.
func (s *WithdrawalService) Settle(withdrawalID string, outcome models.WithdrawalStatus, externalTxRef string) error {
	now := time.Now()
	var ref *string
	if externalTxRef != "" {
		ref = &externalTxRef
	}

	switch outcome {
	case models.WithdrawalStatusCompleted:
		return s.transition(withdrawalID,
			[]models.WithdrawalStatus{models.WithdrawalStatusProcessing},
			models.WithdrawalStatusCompleted, &now, ref)
	case models.WithdrawalStatusFailed:
		return s.fail(withdrawalID, now, ref)
	default:
		return fmt.Errorf("%w: settlement outcome must be completed or failed", ErrInvalidRequest)
	}
}

// transition performs the guarded state change and publishes the event.
func (s *WithdrawalService) transition(withdrawalID string, from []models.WithdrawalStatus, to models.WithdrawalStatus, processedAt *time.Time, externalTxRef *string) error {
	err := runInTx(s.DB, func(tx *gorm.DB) error {
		var w models.Withdrawal
		if err := tx.First(&w, "id = ?", withdrawalID).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{"status": to}
		if processedAt != nil {
			updates["processed_at"] = *processedAt
		}
		if externalTxRef != nil {
			updates["external_tx_ref"] = *externalTxRef
		}

		res := tx.Model(&models.Withdrawal{}).
			Where("id = ? AND status IN ?", withdrawalID, from).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s is %s", ErrInvalidStateTransition, withdrawalID, w.Status)
		}

		s.Events.WithdrawalStateChanged(withdrawalID, w.Status, to)
		return nil
	})
	return err
}

// fail moves any non-terminal request to failed and refunds the coins. The
// state check and the compensating credit share one transaction so a repeated
// settlement call can never refund twice.
func (s *WithdrawalService) fail(withdrawalID string, now time.Time, externalTxRef *string) error {
	return runInTx(s.DB, func(tx *gorm.DB) error {
		var w models.Withdrawal
		if err := tx.First(&w, "id = ?", withdrawalID).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"status":       models.WithdrawalStatusFailed,
			"processed_at": now,
		}
		if externalTxRef != nil {
			updates["external_tx_ref"] = *externalTxRef
		}

		res := tx.Model(&models.Withdrawal{}).
			Where("id = ? AND status IN ?", withdrawalID, []models.WithdrawalStatus{
				models.WithdrawalStatusPending,
				models.WithdrawalStatusApproved,
				models.WithdrawalStatusProcessing,
			}).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s is %s", ErrInvalidStateTransition, withdrawalID, w.Status)
		}

		if _, err := s.Ledger.Adjust(tx, w.UserID, w.AmountCoins, models.TxTypeWithdrawalRefund,
			fmt.Sprintf("Refund for failed withdrawal %s", withdrawalID)); err != nil {
			return err
		}

		s.Events.WithdrawalStateChanged(withdrawalID, w.Status, models.WithdrawalStatusFailed)
		return nil
	})
}

// PendingDispatch lists approved requests the payout worker should claim.
func (s *WithdrawalService) PendingDispatch(limit int) ([]models.Withdrawal, error) {
	var rows []models.Withdrawal
	err := s.DB.Where("status = ?", models.WithdrawalStatusApproved).
		Order("created_at ASC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, classifyStoreError(err)
	}
	return rows, nil
}

// --- Fiber handlers ---

// ListWithdrawals pages through the caller's withdrawal history.
func (s *WithdrawalService) ListWithdrawals(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 10)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	var total int64
	if err := s.DB.Model(&models.Withdrawal{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return respondError(c, classifyStoreError(err))
	}

	var withdrawals []models.Withdrawal
	err := s.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).Offset((page - 1) * limit).
		Find(&withdrawals).Error
	if err != nil {
		return respondError(c, classifyStoreError(err))
	}

	pages := (total + int64(limit) - 1) / int64(limit)
	return c.JSON(fiber.Map{
		"withdrawals": withdrawals,
		"pagination":  fiber.Map{"total": total, "page": page, "limit": limit, "pages": pages},
	})
}

// HandleRequest creates a withdrawal for the caller.
func (s *WithdrawalService) HandleRequest(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	var req struct {
		Amount int64  `json:"amount"`
		UPIID  string `json:"upiId"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	withdrawal, err := s.Request(userID, req.Amount, req.UPIID)
	if err != nil {
		return respondError(c, err)
	}

	var user models.User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":      true,
		"message":      "Withdrawal request submitted for approval",
		"withdrawalId": withdrawal.ID,
		"amountInr":    withdrawal.AmountINR,
		"coinBalance":  user.CoinBalance,
	})
}

// HandleApprove approves a pending withdrawal (Admin only)
func (s *WithdrawalService) HandleApprove(c *fiber.Ctx) error {
	if err := s.Approve(c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Withdrawal approved"})
}

// HandleSettlementWebhook records the payout outcome reported by the
// provider. Authenticity is checked by the webhook middleware upstream.
func (s *WithdrawalService) HandleSettlementWebhook(c *fiber.Ctx) error {
	var req struct {
		WithdrawalID    string `json:"withdrawalId"`
		Status          string `json:"status"`
		TransactionHash string `json:"transactionHash"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.WithdrawalID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "withdrawalId is required"})
	}

	err := s.Settle(req.WithdrawalID, models.WithdrawalStatus(req.Status), req.TransactionHash)
	if err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusOK)
}
