package models

import "time"

// TournamentStatus follows upcoming → active → completed
type TournamentStatus string

const (
	TournamentStatusUpcoming  TournamentStatus = "upcoming"
	TournamentStatusActive    TournamentStatus = "active"
	TournamentStatusCompleted TournamentStatus = "completed"
)

// Tournament holds the escrowed prize pool. Entry fees are debited into
// PrizePool at join time and paid back out on admin distribution.
type Tournament struct {
	ID          string           `gorm:"primaryKey;type:uuid" json:"id"`
	Title       string           `gorm:"not null" json:"title"`
	Slug        string           `gorm:"uniqueIndex;not null" json:"slug"`
	Description string           `gorm:"type:text" json:"description"`
	EntryFee    int64            `gorm:"not null;default:0" json:"entry_fee"`
	PrizePool   int64            `gorm:"not null;default:0" json:"prize_pool"`
	Status      TournamentStatus `gorm:"type:varchar(16);default:'upcoming';index" json:"status"`
	StartTime   time.Time        `gorm:"not null;index" json:"start_time"`
	EndTime     *time.Time       `json:"end_time,omitempty"` // nil = open-ended, closed by prize distribution

	Timestamps

	Participants []TournamentParticipation `json:"participants,omitempty" gorm:"foreignKey:TournamentID"`
}

// TournamentParticipation enrolls a user exactly once per tournament.
type TournamentParticipation struct {
	ID           string `gorm:"primaryKey;type:uuid" json:"id"`
	TournamentID string `gorm:"type:uuid;not null;uniqueIndex:idx_tournament_user" json:"tournament_id"`
	UserID       string `gorm:"type:uuid;not null;uniqueIndex:idx_tournament_user" json:"user_id"`

	EntryFeePaid  int64     `gorm:"not null;default:0" json:"entry_fee_paid"`
	FinalPosition int       `gorm:"default:0" json:"final_position"` // 0 = not ranked
	PrizeWon      int64     `gorm:"default:0" json:"prize_won"`
	JoinedAt      time.Time `json:"joined_at" gorm:"autoCreateTime"`
}
