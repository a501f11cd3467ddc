package services

import (
	"errors"
	"fmt"
	"time"

	"coin-reward-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// TournamentService escrows entry fees into tournament prize pools and pays
// them back out on admin distribution. Enrollment and the fee debit are one
// transaction; the unique (tournament, user) index rejects double joins.
type TournamentService struct {
	DB     *gorm.DB
	Ledger *LedgerService
}

func NewTournamentService(db *gorm.DB, ledger *LedgerService) *TournamentService {
	return &TournamentService{DB: db, Ledger: ledger}
}

// Join enrolls the user and escrows the entry fee. Error ordering follows the
// API contract: joinability, then balance, then duplicate enrollment — but
// the authoritative checks are the unique insert and the guarded debit inside
// the transaction.
func (s *TournamentService) Join(userID, tournamentID string) (*models.TournamentParticipation, error) {
	var participation *models.TournamentParticipation
	err := runInTx(s.DB, func(tx *gorm.DB) error {
		var tournament models.Tournament
		if err := tx.First(&tournament, "id = ?", tournamentID).Error; err != nil {
			return err
		}
		if tournament.Status != models.TournamentStatusUpcoming {
			return ErrTournamentNotJoinable
		}

		var user models.User
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			return err
		}
		if user.CoinBalance < tournament.EntryFee {
			return ErrInsufficientBalance
		}

		p := models.TournamentParticipation{
			ID:           uuid.NewString(),
			TournamentID: tournamentID,
			UserID:       userID,
			EntryFeePaid: tournament.EntryFee,
		}
		if err := tx.Create(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyJoined
			}
			return err
		}

		if tournament.EntryFee > 0 {
			if _, err := s.Ledger.Debit(tx, userID, tournament.EntryFee, models.TxTypeTournamentEntry,
				fmt.Sprintf("Entry fee: %s", tournament.Title)); err != nil {
				return err
			}
			if err := tx.Model(&models.Tournament{}).
				Where("id = ?", tournamentID).
				Update("prize_pool", gorm.Expr("prize_pool + ?", tournament.EntryFee)).Error; err != nil {
				return err
			}
		}

		participation = &p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return participation, nil
}

// PrizeAward is one line of an admin prize distribution.
type PrizeAward struct {
	UserID   string `json:"user_id"`
	Position int    `json:"position"`
	Amount   int64  `json:"amount"`
}

// DistributePrizes credits the winners from the escrowed pool and completes
// the tournament. The payout split is the operator's call; the engine only
// enforces that awards stay within the pool and go to participants.
func (s *TournamentService) DistributePrizes(tournamentID string, awards []PrizeAward) error {
	if len(awards) == 0 {
		return fmt.Errorf("%w: no awards given", ErrInvalidRequest)
	}
	return runInTx(s.DB, func(tx *gorm.DB) error {
		var tournament models.Tournament
		if err := tx.First(&tournament, "id = ?", tournamentID).Error; err != nil {
			return err
		}
		if tournament.Status == models.TournamentStatusUpcoming {
			return fmt.Errorf("%w: tournament has not started", ErrInvalidRequest)
		}

		var total int64
		for _, award := range awards {
			if award.Amount <= 0 {
				return ErrInvalidAmount
			}
			total += award.Amount
		}
		if total > tournament.PrizePool {
			return fmt.Errorf("%w: awards %d exceed prize pool %d", ErrInvalidRequest, total, tournament.PrizePool)
		}

		for _, award := range awards {
			res := tx.Model(&models.TournamentParticipation{}).
				Where("tournament_id = ? AND user_id = ?", tournamentID, award.UserID).
				Updates(map[string]interface{}{
					"final_position": award.Position,
					"prize_won":      award.Amount,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: user %s is not a participant", ErrInvalidRequest, award.UserID)
			}

			if _, err := s.Ledger.Credit(tx, award.UserID, award.Amount, models.TxTypeTournamentPrize,
				fmt.Sprintf("Prize for position %d: %s", award.Position, tournament.Title)); err != nil {
				return err
			}
		}

		return tx.Model(&models.Tournament{}).
			Where("id = ?", tournamentID).
			Update("status", models.TournamentStatusCompleted).Error
	})
}

// --- Fiber handlers ---

// ListTournaments returns upcoming and active tournaments, soonest first.
func (s *TournamentService) ListTournaments(c *fiber.Ctx) error {
	var tournaments []models.Tournament
	err := s.DB.Where("status IN ?", []models.TournamentStatus{
		models.TournamentStatusUpcoming, models.TournamentStatusActive,
	}).Order("start_time ASC").Find(&tournaments).Error
	if err != nil {
		return respondError(c, classifyStoreError(err))
	}
	return c.JSON(tournaments)
}

// GetTournament returns tournament details, the participant list and the
// caller's own participation if any.
func (s *TournamentService) GetTournament(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	tournamentID := c.Params("id")

	var tournament models.Tournament
	if err := s.DB.First(&tournament, "id = ?", tournamentID).Error; err != nil {
		return respondError(c, err)
	}

	var participants []models.TournamentParticipation
	if err := s.DB.Where("tournament_id = ?", tournamentID).
		Order("final_position ASC").Find(&participants).Error; err != nil {
		return respondError(c, classifyStoreError(err))
	}

	var mine *models.TournamentParticipation
	for i := range participants {
		if participants[i].UserID == userID {
			mine = &participants[i]
			break
		}
	}

	return c.JSON(fiber.Map{
		"tournament":        tournament,
		"participants":      participants,
		"userParticipation": mine,
	})
}

func (s *TournamentService) HandleJoin(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	tournamentID := c.Params("id")

	participation, err := s.Join(userID, tournamentID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message":       "Successfully joined tournament",
		"participation": participation,
	})
}

// CreateTournament adds a tournament to the catalog (Admin only)
func (s *TournamentService) CreateTournament(c *fiber.Ctx) error {
	var req struct {
		Title       string    `json:"title"`
		Description string    `json:"description"`
		EntryFee    int64     `json:"entry_fee"`
		PrizePool   int64     `json:"prize_pool"`
		StartTime   time.Time  `json:"start_time"`
		EndTime     *time.Time `json:"end_time"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Title == "" || req.StartTime.IsZero() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "title and start_time are required"})
	}
	if req.EntryFee < 0 || req.PrizePool < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "entry_fee and prize_pool must be non-negative"})
	}

	id := uuid.NewString()
	tournament := models.Tournament{
		ID:          id,
		Title:       req.Title,
		Slug:        slug.Make(req.Title) + "-" + id[:8],
		Description: req.Description,
		EntryFee:    req.EntryFee,
		PrizePool:   req.PrizePool,
		Status:      models.TournamentStatusUpcoming,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
	}
	if err := s.DB.Create(&tournament).Error; err != nil {
		return respondError(c, classifyStoreError(err))
	}
	return c.Status(fiber.StatusCreated).JSON(tournament)
}

// UpdateStatus moves a tournament through its lifecycle (Admin only)
func (s *TournamentService) UpdateStatus(c *fiber.Ctx) error {
	tournamentID := c.Params("id")
	var req struct {
		Status models.TournamentStatus `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	switch req.Status {
	case models.TournamentStatusUpcoming, models.TournamentStatusActive, models.TournamentStatusCompleted:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid status"})
	}

	res := s.DB.Model(&models.Tournament{}).Where("id = ?", tournamentID).Update("status", req.Status)
	if res.Error != nil {
		return respondError(c, classifyStoreError(res.Error))
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": true, "message": "Tournament not found"})
	}

	var tournament models.Tournament
	s.DB.First(&tournament, "id = ?", tournamentID)
	return c.JSON(tournament)
}

// HandleDistributePrizes is the HTTP surface of DistributePrizes (Admin only)
func (s *TournamentService) HandleDistributePrizes(c *fiber.Ctx) error {
	tournamentID := c.Params("id")
	var req struct {
		Awards []PrizeAward `json:"awards"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := s.DistributePrizes(tournamentID, req.Awards); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Prizes distributed"})
}
