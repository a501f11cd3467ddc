package models

import (
	"time"

	"gorm.io/gorm"
)

// User is the system-of-record account for the coin economy.
// Created by the auth flow on first Telegram login; the reward engines only
// mutate the balance-related fields.
type User struct {
	ID         string  `gorm:"primaryKey;type:uuid" json:"id"`
	TelegramID int64   `gorm:"uniqueIndex;not null" json:"telegram_id"`
	Username   *string `json:"username,omitempty"`
	FirstName  *string `json:"first_name,omitempty"`
	LastName   *string `json:"last_name,omitempty"`

	// Ledger fields. CoinBalance never goes negative; TotalEarned only grows
	// outside explicit admin correction.
	CoinBalance int64 `gorm:"not null;default:0" json:"coin_balance"`
	TotalEarned int64 `gorm:"not null;default:0" json:"total_earned"`
	Level       int   `gorm:"not null;default:1" json:"level"`

	// Tap bucket state. A user who has never tapped has LastTapTime nil and
	// is treated as holding a full bucket.
	TapsRemaining int        `gorm:"not null;default:0" json:"taps_remaining"`
	LastTapTime   *time.Time `json:"last_tap_time,omitempty"`

	ReferralCode string  `gorm:"uniqueIndex;not null" json:"referral_code"`
	ReferredBy   *string `gorm:"type:uuid;index" json:"referred_by,omitempty"`

	IsAdmin bool `gorm:"default:false" json:"is_admin"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
