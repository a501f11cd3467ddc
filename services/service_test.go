package services

import (
	"testing"
	"time"

	"coin-reward-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory database. A single connection keeps
// it alive for the test's lifetime and serializes concurrent goroutines the
// way row locks do in production.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.CoinTransaction{},
		&models.Task{},
		&models.TaskCompletion{},
		&models.Tournament{},
		&models.TournamentParticipation{},
		&models.ReferralReward{},
		&models.Withdrawal{},
		&models.Setting{},
	))

	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newTestLedger(t *testing.T, db *gorm.DB) *LedgerService {
	t.Helper()
	settings := NewSettingsService(db)
	return NewLedgerService(db, settings, NewLogPublisher())
}

func createTestUser(t *testing.T, db *gorm.DB, balance int64) *models.User {
	t.Helper()
	user := &models.User{
		ID:            uuid.NewString(),
		TelegramID:    time.Now().UnixNano(),
		CoinBalance:   balance,
		TotalEarned:   balance,
		Level:         1,
		TapsRemaining: 100,
		ReferralCode:  uuid.NewString()[:8],
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func reloadUser(t *testing.T, db *gorm.DB, id string) *models.User {
	t.Helper()
	var user models.User
	require.NoError(t, db.First(&user, "id = ?", id).Error)
	return &user
}

func countTransactions(t *testing.T, db *gorm.DB, userID string, txType models.TransactionType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.CoinTransaction{}).
		Where("user_id = ? AND type = ?", userID, txType).Count(&n).Error)
	return n
}
