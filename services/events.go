package services

import (
	"log"

	"coin-reward-system/models"
)

// Publisher receives the engine's outbound events. Notification collaborators
// (bot pushes, audit sinks) plug in here; the default just logs.
type Publisher interface {
	BalanceChanged(userID string, newBalance int64, reason models.TransactionType)
	WithdrawalStateChanged(withdrawalID string, oldState, newState models.WithdrawalStatus)
}

type logPublisher struct{}

// NewLogPublisher returns a Publisher that writes events to the process log.
func NewLogPublisher() Publisher {
	return logPublisher{}
}

func (logPublisher) BalanceChanged(userID string, newBalance int64, reason models.TransactionType) {
	log.Printf("💰 balance changed: user=%s balance=%d reason=%s", userID, newBalance, reason)
}

func (logPublisher) WithdrawalStateChanged(withdrawalID string, oldState, newState models.WithdrawalStatus) {
	log.Printf("🏦 withdrawal %s: %s → %s", withdrawalID, oldState, newState)
}
