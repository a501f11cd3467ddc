package models

import "time"

// WithdrawalStatus state machine:
// pending → approved → processing → completed, with failed reachable from any
// non-terminal state. completed and failed are terminal.
type WithdrawalStatus string

const (
	WithdrawalStatusPending    WithdrawalStatus = "pending"
	WithdrawalStatusApproved   WithdrawalStatus = "approved"
	WithdrawalStatusProcessing WithdrawalStatus = "processing"
	WithdrawalStatusCompleted  WithdrawalStatus = "completed"
	WithdrawalStatusFailed     WithdrawalStatus = "failed"
)

// Withdrawal is a balance-to-external-payout request. The coin amount is
// debited at creation time, not at settlement, so concurrent requests cannot
// overdraw; a failed settlement refunds it.
type Withdrawal struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"type:uuid;not null;index" json:"user_id"`

	AmountCoins int64   `gorm:"not null" json:"amount_coins"`
	AmountINR   float64 `gorm:"not null" json:"amount_inr"` // after conversion + processing fee
	UPIID       string  `gorm:"not null" json:"upi_id"`

	Status        WithdrawalStatus `gorm:"type:varchar(16);default:'pending';index" json:"status"`
	ExternalTxRef *string          `json:"external_tx_ref,omitempty"`
	ProcessedAt   *time.Time       `json:"processed_at,omitempty"`

	Timestamps
}
