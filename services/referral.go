package services

import (
	"errors"

	"coin-reward-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReferralService pays the fixed referral bonus at most once per
// (referrer, referred) edge. Idempotency comes from the unique index on the
// reward row, not from a read-then-check, so a retried registration webhook
// hits the constraint instead of double-crediting.
type ReferralService struct {
	DB       *gorm.DB
	Ledger   *LedgerService
	Settings *SettingsService
}

var ErrSelfReferral = errors.New("user cannot refer themselves")

func NewReferralService(db *gorm.DB, ledger *LedgerService, settings *SettingsService) *ReferralService {
	return &ReferralService{DB: db, Ledger: ledger, Settings: settings}
}

// RewardReferrer credits the configured bonus to the referrer. A second
// invocation for the same edge is a no-op.
func (s *ReferralService) RewardReferrer(referrerID, referredID string) error {
	if referrerID == referredID {
		return ErrSelfReferral
	}
	cfg, err := s.Settings.CoinSettings()
	if err != nil {
		return err
	}

	return runInTx(s.DB, func(tx *gorm.DB) error {
		reward := models.ReferralReward{
			ID:         uuid.NewString(),
			ReferrerID: referrerID,
			ReferredID: referredID,
			Amount:     cfg.ReferralReward,
		}
		if err := tx.Create(&reward).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil // edge already rewarded
			}
			return err
		}

		_, err := s.Ledger.Credit(tx, referrerID, cfg.ReferralReward, models.TxTypeReferral, "Referral bonus")
		return err
	})
}

// ResolveReferralCode maps a referral code to the owning user, if any.
func (s *ReferralService) ResolveReferralCode(code string) (*models.User, error) {
	if code == "" {
		return nil, nil
	}
	var referrer models.User
	if err := s.DB.First(&referrer, "referral_code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, classifyStoreError(err)
	}
	return &referrer, nil
}

// GetReferralStats reports how many users the caller referred and what it
// earned them.
func (s *ReferralService) GetReferralStats(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var totalReferrals int64
	if err := s.DB.Model(&models.User{}).Where("referred_by = ?", userID).Count(&totalReferrals).Error; err != nil {
		return respondError(c, classifyStoreError(err))
	}

	var totalEarnings int64
	err := s.DB.Model(&models.CoinTransaction{}).
		Where("user_id = ? AND type = ?", userID, models.TxTypeReferral).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&totalEarnings).Error
	if err != nil {
		return respondError(c, classifyStoreError(err))
	}

	return c.JSON(fiber.Map{
		"totalReferrals": totalReferrals,
		"totalEarnings":  totalEarnings,
	})
}
