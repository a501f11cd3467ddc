package services

import (
	"sync"
	"testing"
	"time"

	"coin-reward-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestTap(t *testing.T, db *gorm.DB) (*TapService, *SettingsService) {
	t.Helper()
	settings := NewSettingsService(db)
	ledger := NewLedgerService(db, settings, NewLogPublisher())
	return NewTapService(db, ledger, settings), settings
}

func TestTapCreditsRewardAndConsumesBucket(t *testing.T) {
	db := newTestDB(t)
	tap, _ := newTestTap(t, db)
	user := createTestUser(t, db, 0)

	result, err := tap.Tap(user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.CoinsEarned)
	assert.Equal(t, int64(5), result.CoinBalance)
	assert.Equal(t, 99, result.TapsRemaining)

	reloaded := reloadUser(t, db, user.ID)
	assert.Equal(t, int64(5), reloaded.CoinBalance)
	assert.NotNil(t, reloaded.LastTapTime)
}

func TestTapExhaustionReturnsRateLimited(t *testing.T) {
	db := newTestDB(t)
	tap, settings := newTestTap(t, db)
	user := createTestUser(t, db, 0)

	cfg := defaultCoinSettings()
	cfg.MaxTapsPerDay = 2
	require.NoError(t, settings.put(coinSettingsKey, cfg))
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.ID).
		Update("taps_remaining", 2).Error)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tap.Now = func() time.Time { return base }

	_, err := tap.Tap(user.ID)
	require.NoError(t, err)
	_, err = tap.Tap(user.ID)
	require.NoError(t, err)

	_, err = tap.Tap(user.ID)
	var rl *RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, base.Add(time.Duration(cfg.TapCooldown)*time.Second), rl.ResetTime)

	// Only the two consumed taps were credited.
	assert.Equal(t, int64(10), reloadUser(t, db, user.ID).CoinBalance)
}

func TestTapCooldownRefillsBucket(t *testing.T) {
	db := newTestDB(t)
	tap, settings := newTestTap(t, db)
	user := createTestUser(t, db, 0)

	cfg := defaultCoinSettings()
	cfg.MaxTapsPerDay = 3
	require.NoError(t, settings.put(coinSettingsKey, cfg))
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.ID).
		Update("taps_remaining", 1).Error)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tap.Now = func() time.Time { return base }

	_, err := tap.Tap(user.ID)
	require.NoError(t, err)
	_, err = tap.Tap(user.ID)
	require.Error(t, err)

	// Still inside the window: rejected.
	tap.Now = func() time.Time { return base.Add(time.Hour) }
	_, err = tap.Tap(user.ID)
	var rl *RateLimitedError
	require.ErrorAs(t, err, &rl)

	// Past the window: bucket refills, current tap consumed.
	tap.Now = func() time.Time { return base.Add(time.Duration(cfg.TapCooldown)*time.Second + time.Second) }
	result, err := tap.Tap(user.ID)
	require.NoError(t, err)
	assert.Equal(t, cfg.MaxTapsPerDay-1, result.TapsRemaining)
}

func TestTapFreshUserWithZeroCounter(t *testing.T) {
	db := newTestDB(t)
	tap, _ := newTestTap(t, db)
	user := createTestUser(t, db, 0)

	// Never tapped, but the stored counter is zero. Treated as a full bucket.
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.ID).
		Update("taps_remaining", 0).Error)

	result, err := tap.Tap(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 99, result.TapsRemaining)
}

func TestConcurrentTapsNeverOverdrawBucket(t *testing.T) {
	db := newTestDB(t)
	tap, _ := newTestTap(t, db)
	user := createTestUser(t, db, 0)

	require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.ID).
		Updates(map[string]interface{}{"taps_remaining": 5, "last_tap_time": time.Now()}).Error)

	const attempts = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	var succeeded int
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			if _, err := tap.Tap(user.ID); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	reloaded := reloadUser(t, db, user.ID)
	assert.Equal(t, int64(25), reloaded.CoinBalance)
	assert.Equal(t, 0, reloaded.TapsRemaining)
}

func TestBalanceOpportunisticRefill(t *testing.T) {
	db := newTestDB(t)
	tap, _ := newTestTap(t, db)
	user := createTestUser(t, db, 42)

	old := time.Now().Add(-5 * time.Hour) // past the default 4h window
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.ID).
		Updates(map[string]interface{}{"taps_remaining": 0, "last_tap_time": old}).Error)

	snap, err := tap.Balance(user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), snap.CoinBalance)
	assert.Equal(t, 100, snap.TapsRemaining)
}
