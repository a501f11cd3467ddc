package models

import "time"

// Task is a one-time social/engagement task from the external catalog.
// The engines only read Reward and Active; catalog management is admin tooling.
type Task struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	Title       string `gorm:"not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	ActionURL   string `json:"action_url,omitempty"`
	Reward      int64  `gorm:"not null" json:"reward"`
	Active      bool   `gorm:"default:true;index" json:"active"`

	Timestamps
}

// TaskCompletion marks a (user, task) pair as completed exactly once.
// The unique index is the concurrency guard: a duplicate insert means the
// reward was already granted.
type TaskCompletion struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string    `gorm:"type:uuid;not null;uniqueIndex:idx_user_task" json:"user_id"`
	TaskID      string    `gorm:"type:uuid;not null;uniqueIndex:idx_user_task" json:"task_id"`
	CompletedAt time.Time `json:"completed_at" gorm:"autoCreateTime"`
}
