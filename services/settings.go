package services

import (
	"encoding/json"
	"errors"
	"log"

	"coin-reward-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	coinSettingsKey       = "coin_settings"
	withdrawalSettingsKey = "withdrawal_settings"
)

// CoinSettings tune the earning engines. Re-read from the settings table on
// every call so admin changes apply without restart.
type CoinSettings struct {
	TapReward        int64 `json:"tapReward"`
	MaxTapsPerDay    int   `json:"maxTapsPerDay"`
	TapCooldown      int   `json:"tapCooldown"` // seconds
	ReferralReward   int64 `json:"referralReward"`
	LevelUpThreshold int64 `json:"levelUpThreshold"`
}

// WithdrawalSettings tune the withdrawal engine.
type WithdrawalSettings struct {
	MinWithdrawal  int64   `json:"minWithdrawal"`
	MaxWithdrawal  int64   `json:"maxWithdrawal"`
	ProcessingFee  float64 `json:"processingFee"`  // fraction, e.g. 0.05
	ConversionRate float64 `json:"conversionRate"` // INR per coin
	ProcessingTime int     `json:"processingTime"` // hours, informational
}

func defaultCoinSettings() CoinSettings {
	return CoinSettings{
		TapReward:        5,
		MaxTapsPerDay:    100,
		TapCooldown:      4 * 60 * 60,
		ReferralReward:   50,
		LevelUpThreshold: 1000,
	}
}

func defaultWithdrawalSettings() WithdrawalSettings {
	return WithdrawalSettings{
		MinWithdrawal:  1000,
		MaxWithdrawal:  10000,
		ProcessingFee:  0.05,
		ConversionRate: 0.01, // 1000 coins = 10 INR
		ProcessingTime: 24,
	}
}

type SettingsService struct {
	DB *gorm.DB
}

func NewSettingsService(db *gorm.DB) *SettingsService {
	return &SettingsService{DB: db}
}

func (s *SettingsService) get(key string, out interface{}) (bool, error) {
	var row models.Setting
	if err := s.DB.First(&row, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(row.Value), out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SettingsService) put(key string, value interface{}) error {
	blob, err := json.Marshal(value)
	if err != nil {
		return err
	}
	row := models.Setting{Key: key, Value: string(blob)}
	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}

// CoinSettings returns the current coin settings, falling back to defaults
// when the row is missing.
func (s *SettingsService) CoinSettings() (CoinSettings, error) {
	cfg := defaultCoinSettings()
	if _, err := s.get(coinSettingsKey, &cfg); err != nil {
		return cfg, classifyStoreError(err)
	}
	return cfg, nil
}

// WithdrawalSettings returns the current withdrawal settings, falling back to
// defaults when the row is missing.
func (s *SettingsService) WithdrawalSettings() (WithdrawalSettings, error) {
	cfg := defaultWithdrawalSettings()
	if _, err := s.get(withdrawalSettingsKey, &cfg); err != nil {
		return cfg, classifyStoreError(err)
	}
	return cfg, nil
}

// --- Fiber handlers ---

func (s *SettingsService) GetCoinSettings(c *fiber.Ctx) error {
	cfg, err := s.CoinSettings()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(cfg)
}

func (s *SettingsService) GetWithdrawalSettings(c *fiber.Ctx) error {
	cfg, err := s.WithdrawalSettings()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(cfg)
}

// UpdateCoinSettings replaces the coin settings blob (Admin only)
func (s *SettingsService) UpdateCoinSettings(c *fiber.Ctx) error {
	var req CoinSettings
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.TapReward <= 0 || req.MaxTapsPerDay <= 0 || req.TapCooldown <= 0 || req.LevelUpThreshold <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "settings values must be positive"})
	}
	if err := s.put(coinSettingsKey, req); err != nil {
		log.Printf("DB Error updating coin settings: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update coin settings"})
	}
	return c.JSON(req)
}

// UpdateWithdrawalSettings replaces the withdrawal settings blob (Admin only)
func (s *SettingsService) UpdateWithdrawalSettings(c *fiber.Ctx) error {
	var req WithdrawalSettings
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.MinWithdrawal <= 0 || req.MaxWithdrawal < req.MinWithdrawal ||
		req.ProcessingFee < 0 || req.ProcessingFee >= 1 || req.ConversionRate <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid withdrawal settings"})
	}
	if err := s.put(withdrawalSettingsKey, req); err != nil {
		log.Printf("DB Error updating withdrawal settings: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update withdrawal settings"})
	}
	return c.JSON(req)
}
