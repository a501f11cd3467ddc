package services

import (
	"testing"
	"time"

	"coin-reward-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func createTestTournament(t *testing.T, db *gorm.DB, entryFee, seedPool int64, status models.TournamentStatus) *models.Tournament {
	t.Helper()
	id := uuid.NewString()
	tournament := &models.Tournament{
		ID:        id,
		Title:     "Weekend Cup",
		Slug:      "weekend-cup-" + id[:8],
		EntryFee:  entryFee,
		PrizePool: seedPool,
		Status:    status,
		StartTime: time.Now().Add(time.Hour),
	}
	require.NoError(t, db.Create(tournament).Error)
	return tournament
}

func TestJoinEscrowsEntryFee(t *testing.T) {
	db := newTestDB(t)
	tournaments := NewTournamentService(db, newTestLedger(t, db))
	user := createTestUser(t, db, 500)
	tournament := createTestTournament(t, db, 200, 0, models.TournamentStatusUpcoming)

	participation, err := tournaments.Join(user.ID, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(200), participation.EntryFeePaid)

	assert.Equal(t, int64(300), reloadUser(t, db, user.ID).CoinBalance)

	var reloaded models.Tournament
	require.NoError(t, db.First(&reloaded, "id = ?", tournament.ID).Error)
	assert.Equal(t, int64(200), reloaded.PrizePool)
}

func TestJoinTwiceDebitsOnce(t *testing.T) {
	db := newTestDB(t)
	tournaments := NewTournamentService(db, newTestLedger(t, db))
	user := createTestUser(t, db, 500)
	tournament := createTestTournament(t, db, 200, 0, models.TournamentStatusUpcoming)

	_, err := tournaments.Join(user.ID, tournament.ID)
	require.NoError(t, err)

	_, err = tournaments.Join(user.ID, tournament.ID)
	assert.ErrorIs(t, err, ErrAlreadyJoined)

	assert.Equal(t, int64(300), reloadUser(t, db, user.ID).CoinBalance)
	assert.Equal(t, int64(1), countTransactions(t, db, user.ID, models.TxTypeTournamentEntry))
}

func TestJoinRejectsNonUpcoming(t *testing.T) {
	db := newTestDB(t)
	tournaments := NewTournamentService(db, newTestLedger(t, db))
	user := createTestUser(t, db, 500)
	active := createTestTournament(t, db, 100, 0, models.TournamentStatusActive)

	_, err := tournaments.Join(user.ID, active.ID)
	assert.ErrorIs(t, err, ErrTournamentNotJoinable)
	assert.Equal(t, int64(500), reloadUser(t, db, user.ID).CoinBalance)
}

func TestJoinInsufficientBalanceLeavesNoTrace(t *testing.T) {
	db := newTestDB(t)
	tournaments := NewTournamentService(db, newTestLedger(t, db))
	user := createTestUser(t, db, 50)
	tournament := createTestTournament(t, db, 200, 0, models.TournamentStatusUpcoming)

	_, err := tournaments.Join(user.ID, tournament.ID)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	var participations int64
	require.NoError(t, db.Model(&models.TournamentParticipation{}).
		Where("user_id = ?", user.ID).Count(&participations).Error)
	assert.Equal(t, int64(0), participations)
	assert.Equal(t, int64(50), reloadUser(t, db, user.ID).CoinBalance)
}

func TestJoinFreeTournament(t *testing.T) {
	db := newTestDB(t)
	tournaments := NewTournamentService(db, newTestLedger(t, db))
	user := createTestUser(t, db, 0)
	tournament := createTestTournament(t, db, 0, 1000, models.TournamentStatusUpcoming)

	participation, err := tournaments.Join(user.ID, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), participation.EntryFeePaid)
	assert.Equal(t, int64(0), countTransactions(t, db, user.ID, models.TxTypeTournamentEntry))

	// A seeded pool is untouched by free joins.
	var reloaded models.Tournament
	require.NoError(t, db.First(&reloaded, "id = ?", tournament.ID).Error)
	assert.Equal(t, int64(1000), reloaded.PrizePool)
}

func TestDistributePrizesPaysWinnersAndCompletes(t *testing.T) {
	db := newTestDB(t)
	tournaments := NewTournamentService(db, newTestLedger(t, db))
	first := createTestUser(t, db, 300)
	second := createTestUser(t, db, 300)
	tournament := createTestTournament(t, db, 100, 0, models.TournamentStatusUpcoming)

	_, err := tournaments.Join(first.ID, tournament.ID)
	require.NoError(t, err)
	_, err = tournaments.Join(second.ID, tournament.ID)
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Tournament{}).Where("id = ?", tournament.ID).
		Update("status", models.TournamentStatusActive).Error)

	err = tournaments.DistributePrizes(tournament.ID, []PrizeAward{
		{UserID: first.ID, Position: 1, Amount: 150},
		{UserID: second.ID, Position: 2, Amount: 50},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(350), reloadUser(t, db, first.ID).CoinBalance)
	assert.Equal(t, int64(250), reloadUser(t, db, second.ID).CoinBalance)

	var reloaded models.Tournament
	require.NoError(t, db.First(&reloaded, "id = ?", tournament.ID).Error)
	assert.Equal(t, models.TournamentStatusCompleted, reloaded.Status)

	var winner models.TournamentParticipation
	require.NoError(t, db.First(&winner, "tournament_id = ? AND user_id = ?", tournament.ID, first.ID).Error)
	assert.Equal(t, 1, winner.FinalPosition)
	assert.Equal(t, int64(150), winner.PrizeWon)
}

func TestDistributePrizesRejectsOverPool(t *testing.T) {
	db := newTestDB(t)
	tournaments := NewTournamentService(db, newTestLedger(t, db))
	user := createTestUser(t, db, 300)
	tournament := createTestTournament(t, db, 100, 0, models.TournamentStatusUpcoming)

	_, err := tournaments.Join(user.ID, tournament.ID)
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Tournament{}).Where("id = ?", tournament.ID).
		Update("status", models.TournamentStatusActive).Error)

	err = tournaments.DistributePrizes(tournament.ID, []PrizeAward{
		{UserID: user.ID, Position: 1, Amount: 101},
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, int64(200), reloadUser(t, db, user.ID).CoinBalance)
}

func TestDistributePrizesRejectsNonParticipantAtomically(t *testing.T) {
	db := newTestDB(t)
	tournaments := NewTournamentService(db, newTestLedger(t, db))
	participant := createTestUser(t, db, 300)
	outsider := createTestUser(t, db, 0)
	tournament := createTestTournament(t, db, 100, 0, models.TournamentStatusUpcoming)

	_, err := tournaments.Join(participant.ID, tournament.ID)
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Tournament{}).Where("id = ?", tournament.ID).
		Update("status", models.TournamentStatusActive).Error)

	err = tournaments.DistributePrizes(tournament.ID, []PrizeAward{
		{UserID: participant.ID, Position: 1, Amount: 50},
		{UserID: outsider.ID, Position: 2, Amount: 50},
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	// The valid award in the same batch rolled back with it.
	assert.Equal(t, int64(200), reloadUser(t, db, participant.ID).CoinBalance)
	var reloaded models.Tournament
	require.NoError(t, db.First(&reloaded, "id = ?", tournament.ID).Error)
	assert.Equal(t, models.TournamentStatusActive, reloaded.Status)
}

func TestDistributePrizesRejectsUpcoming(t *testing.T) {
	db := newTestDB(t)
	tournaments := NewTournamentService(db, newTestLedger(t, db))
	user := createTestUser(t, db, 300)
	tournament := createTestTournament(t, db, 100, 0, models.TournamentStatusUpcoming)

	_, err := tournaments.Join(user.ID, tournament.ID)
	require.NoError(t, err)

	err = tournaments.DistributePrizes(tournament.ID, []PrizeAward{
		{UserID: user.ID, Position: 1, Amount: 100},
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
