package models

import "time"

// ReferralReward records the one-shot bonus paid to a referrer when the user
// they invited completes registration. The unique index on the edge makes a
// retried webhook a no-op rather than a double credit.
type ReferralReward struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	ReferrerID string `gorm:"type:uuid;not null;uniqueIndex:idx_referral_edge" json:"referrer_id"`
	ReferredID string `gorm:"type:uuid;not null;uniqueIndex:idx_referral_edge" json:"referred_id"`

	Amount    int64     `gorm:"not null" json:"amount"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}
