package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Business-rule violations. These are terminal for the call and surface to
// the caller verbatim; nothing in the engines retries them.
var (
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrInsufficientBalance    = errors.New("insufficient coin balance")
	ErrTaskNotFound           = errors.New("task not found or inactive")
	ErrAlreadyCompleted       = errors.New("task already completed")
	ErrAlreadyJoined          = errors.New("already participating in this tournament")
	ErrTournamentNotJoinable  = errors.New("tournament is not open for joining")
	ErrInvalidRequest         = errors.New("invalid withdrawal request")
	ErrInvalidStateTransition = errors.New("invalid withdrawal state transition")
)

// Transient store failures. ErrStoreConflict is retried a bounded number of
// times inside runInTx; ErrStoreUnavailable goes straight to the caller.
var (
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrStoreConflict    = errors.New("store conflict")
)

// RateLimitedError reports when the tap bucket refills.
type RateLimitedError struct {
	ResetTime time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("no taps remaining, bucket resets at %s", e.ResetTime.Format(time.RFC3339))
}

const maxTxAttempts = 3

// runInTx runs fn inside a transaction, retrying serialization conflicts
// with backoff. Business errors abort immediately and roll the whole
// transaction back, so a record insert never outlives a failed paired credit.
func runInTx(db *gorm.DB, fn func(tx *gorm.DB) error) error {
	backoff := 50 * time.Millisecond
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = db.Transaction(fn)
		if err == nil {
			return nil
		}
		if isBusinessError(err) {
			return err
		}
		err = classifyStoreError(err)
		if !errors.Is(err, ErrStoreConflict) {
			return err
		}
		log.Printf("⚠️  store conflict, retrying transaction (attempt %d/%d): %v", attempt, maxTxAttempts, err)
		time.Sleep(backoff)
		backoff *= 2
	}
	return err
}

func isBusinessError(err error) bool {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return true
	}
	for _, target := range []error{
		ErrInvalidAmount, ErrInsufficientBalance, ErrTaskNotFound,
		ErrAlreadyCompleted, ErrAlreadyJoined, ErrTournamentNotJoinable,
		ErrInvalidRequest, ErrInvalidStateTransition, ErrSelfReferral,
		gorm.ErrRecordNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// classifyStoreError maps driver failures onto the transient taxonomy.
// Postgres serialization/deadlock SQLSTATEs are retryable conflicts.
func classifyStoreError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.SQLState() {
		case "40001", "40P01":
			return fmt.Errorf("%w: %v", ErrStoreConflict, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// respondError maps engine errors to HTTP responses. Status codes follow the
// upstream API contract the mini-app frontend already depends on.
func respondError(c *fiber.Ctx, err error) error {
	var rl *RateLimitedError
	switch {
	case errors.As(err, &rl):
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":     true,
			"message":   "No taps remaining",
			"resetTime": rl.ResetTime,
		})
	case errors.Is(err, ErrTaskNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": true, "message": err.Error()})
	case errors.Is(err, ErrInvalidStateTransition):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": true, "message": err.Error()})
	case isBusinessError(err):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": true, "message": err.Error()})
	case errors.Is(err, ErrStoreConflict), errors.Is(err, ErrStoreUnavailable):
		log.Printf("❌ store failure: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": true, "message": "temporary storage failure, please retry"})
	default:
		log.Printf("❌ unexpected error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": true, "message": "internal server error"})
	}
}
