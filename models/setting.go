package models

import "time"

// Setting stores a hot-reloadable configuration blob (JSON) under a key,
// e.g. "coin_settings" or "withdrawal_settings". Engines re-read the row on
// every call so admin changes take effect without restart.
type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
