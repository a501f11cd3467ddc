// services/scheduler.go
package services

import (
	"log"
	"time"

	"coin-reward-system/models"

	"github.com/go-co-op/gocron/v2"
)

// StartLifecycleScheduler flips tournaments between lifecycle states on a
// one-minute cadence: upcoming → active once start_time passes, and
// active → completed once end_time passes. Prize distribution also marks a
// tournament completed, so the guarded update tolerates either path winning.
func (s *TournamentService) StartLifecycleScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			now := time.Now()

			res := s.DB.Model(&models.Tournament{}).
				Where("status = ? AND start_time <= ?", models.TournamentStatusUpcoming, now).
				Update("status", models.TournamentStatusActive)
			if res.Error != nil {
				log.Printf("[Scheduler] activate error: %v", res.Error)
			} else if res.RowsAffected > 0 {
				log.Printf("✅ Activated %d tournament(s)", res.RowsAffected)
			}

			res = s.DB.Model(&models.Tournament{}).
				Where("status = ? AND end_time IS NOT NULL AND end_time <= ?", models.TournamentStatusActive, now).
				Update("status", models.TournamentStatusCompleted)
			if res.Error != nil {
				log.Printf("[Scheduler] complete error: %v", res.Error)
			} else if res.RowsAffected > 0 {
				log.Printf("✅ Completed %d tournament(s)", res.RowsAffected)
			}
		}),
	)
}
