package services

import (
	"testing"

	"coin-reward-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestWithdrawals(t *testing.T, db *gorm.DB) *WithdrawalService {
	t.Helper()
	settings := NewSettingsService(db)
	ledger := NewLedgerService(db, settings, NewLogPublisher())
	return NewWithdrawalService(db, ledger, settings, NewLogPublisher())
}

func TestRequestDebitsImmediately(t *testing.T) {
	db := newTestDB(t)
	withdrawals := newTestWithdrawals(t, db)
	user := createTestUser(t, db, 5000)

	w, err := withdrawals.Request(user.ID, 2000, "alice@upi")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusPending, w.Status)
	assert.Equal(t, int64(2000), w.AmountCoins)
	// 2000 coins * 0.01 INR/coin, minus the 5% fee.
	assert.InDelta(t, 19.0, w.AmountINR, 0.001)

	assert.Equal(t, int64(3000), reloadUser(t, db, user.ID).CoinBalance)
	assert.Equal(t, int64(1), countTransactions(t, db, user.ID, models.TxTypeWithdrawal))
}

func TestRequestValidation(t *testing.T) {
	db := newTestDB(t)
	withdrawals := newTestWithdrawals(t, db)
	user := createTestUser(t, db, 50000)

	_, err := withdrawals.Request(user.ID, 999, "alice@upi")
	assert.ErrorIs(t, err, ErrInvalidRequest, "below minimum")

	_, err = withdrawals.Request(user.ID, 10001, "alice@upi")
	assert.ErrorIs(t, err, ErrInvalidRequest, "above maximum")

	_, err = withdrawals.Request(user.ID, 2000, "not a upi id")
	assert.ErrorIs(t, err, ErrInvalidRequest, "malformed UPI")

	// Failed validation never touches the balance.
	assert.Equal(t, int64(50000), reloadUser(t, db, user.ID).CoinBalance)
}

func TestRequestInsufficientBalance(t *testing.T) {
	db := newTestDB(t)
	withdrawals := newTestWithdrawals(t, db)
	user := createTestUser(t, db, 500)

	_, err := withdrawals.Request(user.ID, 1000, "alice@upi")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, int64(500), reloadUser(t, db, user.ID).CoinBalance)

	var rows int64
	require.NoError(t, db.Model(&models.Withdrawal{}).Where("user_id = ?", user.ID).Count(&rows).Error)
	assert.Equal(t, int64(0), rows, "no withdrawal row without its debit")
}

func TestFullLifecycleToCompleted(t *testing.T) {
	db := newTestDB(t)
	withdrawals := newTestWithdrawals(t, db)
	user := createTestUser(t, db, 5000)

	w, err := withdrawals.Request(user.ID, 2000, "alice@upi")
	require.NoError(t, err)

	require.NoError(t, withdrawals.Approve(w.ID))
	require.NoError(t, withdrawals.MarkProcessing(w.ID))
	require.NoError(t, withdrawals.Settle(w.ID, models.WithdrawalStatusCompleted, "upi-tx-9001"))

	var reloaded models.Withdrawal
	require.NoError(t, db.First(&reloaded, "id = ?", w.ID).Error)
	assert.Equal(t, models.WithdrawalStatusCompleted, reloaded.Status)
	require.NotNil(t, reloaded.ExternalTxRef)
	assert.Equal(t, "upi-tx-9001", *reloaded.ExternalTxRef)
	assert.NotNil(t, reloaded.ProcessedAt)

	// Completed payouts keep the coins debited.
	assert.Equal(t, int64(3000), reloadUser(t, db, user.ID).CoinBalance)
}

func TestFailedSettlementRefunds(t *testing.T) {
	db := newTestDB(t)
	withdrawals := newTestWithdrawals(t, db)
	user := createTestUser(t, db, 5000)

	w, err := withdrawals.Request(user.ID, 2000, "alice@upi")
	require.NoError(t, err)
	require.NoError(t, withdrawals.Approve(w.ID))
	require.NoError(t, withdrawals.MarkProcessing(w.ID))

	require.NoError(t, withdrawals.Settle(w.ID, models.WithdrawalStatusFailed, ""))

	assert.Equal(t, int64(5000), reloadUser(t, db, user.ID).CoinBalance)
	assert.Equal(t, int64(1), countTransactions(t, db, user.ID, models.TxTypeWithdrawalRefund))

	// A repeated failure report must not refund twice.
	err = withdrawals.Settle(w.ID, models.WithdrawalStatusFailed, "")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	assert.Equal(t, int64(5000), reloadUser(t, db, user.ID).CoinBalance)
}

func TestFailedFromPendingRefunds(t *testing.T) {
	db := newTestDB(t)
	withdrawals := newTestWithdrawals(t, db)
	user := createTestUser(t, db, 5000)

	w, err := withdrawals.Request(user.ID, 2000, "alice@upi")
	require.NoError(t, err)

	require.NoError(t, withdrawals.Settle(w.ID, models.WithdrawalStatusFailed, ""))
	assert.Equal(t, int64(5000), reloadUser(t, db, user.ID).CoinBalance)
}

func TestIllegalTransitionsRejected(t *testing.T) {
	db := newTestDB(t)
	withdrawals := newTestWithdrawals(t, db)
	user := createTestUser(t, db, 5000)

	w, err := withdrawals.Request(user.ID, 2000, "alice@upi")
	require.NoError(t, err)

	// completed is only reachable from processing.
	err = withdrawals.Settle(w.ID, models.WithdrawalStatusCompleted, "ref")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	// processing is only reachable from approved.
	err = withdrawals.MarkProcessing(w.ID)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	require.NoError(t, withdrawals.Approve(w.ID))
	err = withdrawals.Approve(w.ID)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	// Settling after completion is terminal.
	require.NoError(t, withdrawals.MarkProcessing(w.ID))
	require.NoError(t, withdrawals.Settle(w.ID, models.WithdrawalStatusCompleted, "ref"))
	err = withdrawals.Settle(w.ID, models.WithdrawalStatusFailed, "")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	assert.Equal(t, int64(3000), reloadUser(t, db, user.ID).CoinBalance)
}

func TestSettleRejectsUnknownOutcome(t *testing.T) {
	db := newTestDB(t)
	withdrawals := newTestWithdrawals(t, db)
	user := createTestUser(t, db, 5000)

	w, err := withdrawals.Request(user.ID, 2000, "alice@upi")
	require.NoError(t, err)

	err = withdrawals.Settle(w.ID, models.WithdrawalStatusPending, "")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSettleUnknownWithdrawal(t *testing.T) {
	db := newTestDB(t)
	withdrawals := newTestWithdrawals(t, db)

	err := withdrawals.Settle("no-such-id", models.WithdrawalStatusFailed, "")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestPendingDispatchListsApprovedOnly(t *testing.T) {
	db := newTestDB(t)
	withdrawals := newTestWithdrawals(t, db)
	user := createTestUser(t, db, 50000)

	pending, err := withdrawals.Request(user.ID, 1000, "alice@upi")
	require.NoError(t, err)
	approved, err := withdrawals.Request(user.ID, 2000, "alice@upi")
	require.NoError(t, err)
	require.NoError(t, withdrawals.Approve(approved.ID))

	batch, err := withdrawals.PendingDispatch(10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, approved.ID, batch[0].ID)
	assert.NotEqual(t, pending.ID, batch[0].ID)
}
