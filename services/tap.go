package services

import (
	"time"

	"coin-reward-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// TapService enforces the rate-limited tapping rule: a bounded bucket of taps
// that refills after the cooldown window. The bucket decrement and the coin
// credit share one transaction keyed by the user row, so concurrent taps from
// the same user serialize on the database.
type TapService struct {
	DB       *gorm.DB
	Ledger   *LedgerService
	Settings *SettingsService

	// Now is swappable for cooldown-window tests.
	Now func() time.Time
}

func NewTapService(db *gorm.DB, ledger *LedgerService, settings *SettingsService) *TapService {
	return &TapService{DB: db, Ledger: ledger, Settings: settings, Now: time.Now}
}

// TapResult is the post-tap account snapshot returned to the client.
type TapResult struct {
	CoinsEarned   int64     `json:"coinsEarned"`
	CoinBalance   int64     `json:"coinBalance"`
	TotalEarned   int64     `json:"totalEarned"`
	Level         int       `json:"level"`
	TapsRemaining int       `json:"tapsRemaining"`
	ResetTime     time.Time `json:"resetTime"`
}

// Tap consumes one tap and credits the configured reward. Settings are read
// per call; admin changes apply to the next tap.
func (s *TapService) Tap(userID string) (*TapResult, error) {
	cfg, err := s.Settings.CoinSettings()
	if err != nil {
		return nil, err
	}
	cooldown := time.Duration(cfg.TapCooldown) * time.Second

	var result *TapResult
	err = runInTx(s.DB, func(tx *gorm.DB) error {
		now := s.Now()
		if err := s.consumeTap(tx, userID, now, cfg, cooldown); err != nil {
			return err
		}

		user, err := s.Ledger.Credit(tx, userID, cfg.TapReward, models.TxTypeTap, "Earned from tapping")
		if err != nil {
			return err
		}

		result = &TapResult{
			CoinsEarned:   cfg.TapReward,
			CoinBalance:   user.CoinBalance,
			TotalEarned:   user.TotalEarned,
			Level:         user.Level,
			TapsRemaining: user.TapsRemaining,
			ResetTime:     now.Add(cooldown),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// consumeTap takes one tap out of the bucket, refilling it first when the
// cooldown window has lapsed. Both paths are guarded single statements so two
// concurrent taps can never observe the same taps_remaining value.
func (s *TapService) consumeTap(tx *gorm.DB, userID string, now time.Time, cfg CoinSettings, cooldown time.Duration) error {
	decrement := func() (int64, error) {
		res := tx.Model(&models.User{}).
			Where("id = ? AND taps_remaining > 0", userID).
			Updates(map[string]interface{}{
				"taps_remaining": gorm.Expr("taps_remaining - 1"),
				"last_tap_time":  now,
			})
		return res.RowsAffected, res.Error
	}

	n, err := decrement()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	// Bucket looked empty. Load the row to decide between refill and reject.
	var user models.User
	if err := tx.First(&user, "id = ?", userID).Error; err != nil {
		return err
	}

	// A user who has never tapped holds a full bucket even if the stored
	// counter is zero.
	eligible := user.LastTapTime == nil || !now.Before(user.LastTapTime.Add(cooldown))
	if eligible {
		cutoff := now.Add(-cooldown)
		res := tx.Model(&models.User{}).
			Where("id = ? AND taps_remaining <= 0 AND (last_tap_time IS NULL OR last_tap_time <= ?)", userID, cutoff).
			Updates(map[string]interface{}{
				"taps_remaining": cfg.MaxTapsPerDay - 1, // current tap consumed
				"last_tap_time":  now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		// A concurrent tap refilled the bucket between our two statements;
		// take one from it instead.
		n, err = decrement()
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			return err
		}
	}

	resetAt := now.Add(cooldown)
	if user.LastTapTime != nil {
		resetAt = user.LastTapTime.Add(cooldown)
	}
	return &RateLimitedError{ResetTime: resetAt}
}

// BalanceSnapshot mirrors the original balance endpoint, including the
// opportunistic bucket refill when the window has already lapsed.
type BalanceSnapshot struct {
	CoinBalance   int64      `json:"coinBalance"`
	TotalEarned   int64      `json:"totalEarned"`
	Level         int        `json:"level"`
	TapsRemaining int        `json:"tapsRemaining"`
	ResetTime     *time.Time `json:"resetTime"`
}

func (s *TapService) Balance(userID string) (*BalanceSnapshot, error) {
	cfg, err := s.Settings.CoinSettings()
	if err != nil {
		return nil, err
	}
	cooldown := time.Duration(cfg.TapCooldown) * time.Second
	now := s.Now()

	var user models.User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		return nil, err
	}

	if user.LastTapTime != nil && !now.Before(user.LastTapTime.Add(cooldown)) && user.TapsRemaining < cfg.MaxTapsPerDay {
		res := s.DB.Model(&models.User{}).
			Where("id = ? AND taps_remaining < ? AND last_tap_time <= ?", userID, cfg.MaxTapsPerDay, now.Add(-cooldown)).
			Update("taps_remaining", cfg.MaxTapsPerDay)
		if res.Error != nil {
			return nil, classifyStoreError(res.Error)
		}
		if res.RowsAffected > 0 {
			user.TapsRemaining = cfg.MaxTapsPerDay
		}
	}

	snap := &BalanceSnapshot{
		CoinBalance:   user.CoinBalance,
		TotalEarned:   user.TotalEarned,
		Level:         user.Level,
		TapsRemaining: user.TapsRemaining,
	}
	if user.LastTapTime != nil {
		t := user.LastTapTime.Add(cooldown)
		snap.ResetTime = &t
	}
	return snap, nil
}

// --- Fiber handlers ---

func (s *TapService) GetBalance(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	snap, err := s.Balance(userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(snap)
}

func (s *TapService) HandleTap(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	result, err := s.Tap(userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":       true,
		"coinsEarned":   result.CoinsEarned,
		"coinBalance":   result.CoinBalance,
		"totalEarned":   result.TotalEarned,
		"level":         result.Level,
		"tapsRemaining": result.TapsRemaining,
		"resetTime":     result.ResetTime,
	})
}

// GetTransactions pages through the caller's coin journal.
func (s *TapService) GetTransactions(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 10)

	entries, total, err := s.Ledger.Transactions(userID, page, limit)
	if err != nil {
		return respondError(c, err)
	}
	pages := (total + int64(limit) - 1) / int64(limit)
	return c.JSON(fiber.Map{
		"transactions": entries,
		"pagination": fiber.Map{
			"total": total,
			"page":  page,
			"limit": limit,
			"pages": pages,
		},
	})
}
