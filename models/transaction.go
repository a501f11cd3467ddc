package models

import "time"

// TransactionType labels a coin ledger entry with its earning/spending source
type TransactionType string

const (
	TxTypeTap              TransactionType = "tap"
	TxTypeTask             TransactionType = "task"
	TxTypeReferral         TransactionType = "referral"
	TxTypeTournamentEntry  TransactionType = "tournament_entry"
	TxTypeTournamentPrize  TransactionType = "tournament_prize"
	TxTypeWithdrawal       TransactionType = "withdrawal"
	TxTypeWithdrawalRefund TransactionType = "withdrawal_refund"
	TxTypeDeposit          TransactionType = "deposit"
	TxTypeAdminAdjust      TransactionType = "admin_adjust"
)

// CoinTransaction is the journal row written alongside every balance
// mutation. Amount is signed: credits positive, debits negative.
type CoinTransaction struct {
	ID           string          `gorm:"primaryKey;type:uuid" json:"id"`
	UserID       string          `gorm:"type:uuid;not null;index" json:"user_id"`
	Amount       int64           `gorm:"not null" json:"amount"`
	BalanceAfter int64           `gorm:"not null" json:"balance_after"`
	Type         TransactionType `gorm:"type:varchar(32);not null;index" json:"type"`
	Description  string          `json:"description"`
	CreatedAt    time.Time       `json:"created_at" gorm:"autoCreateTime;index"`
}
