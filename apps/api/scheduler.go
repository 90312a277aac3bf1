package main

import (
	"context"
	"fmt"
	"time"

	"github.com/trezcool/cheti/core"
	"github.com/trezcool/cheti/core/certificate"
)

// scheduler fires one lifecycle pass per day at a fixed UTC wall time.
// Passes are idempotent, so overlap with the manual trigger endpoint is
// harmless and no locking is needed.
type scheduler struct {
	svc    *certificate.Service
	logger core.Logger
	hour   int
	minute int
}

func newScheduler(svc *certificate.Service, logger core.Logger, conf *core.Config) *scheduler {
	return &scheduler{
		svc:    svc,
		logger: logger,
		hour:   conf.CheckHour,
		minute: conf.CheckMinute,
	}
}

func (s *scheduler) run(ctx context.Context) {
	for {
		next := s.nextRun(time.Now().UTC())
		s.logger.Debug(fmt.Sprintf("next lifecycle pass scheduled at %s", next.Format(time.RFC3339)))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case now := <-timer.C:
			if _, err := s.svc.RunPass(ctx, now.UTC()); err != nil {
				s.logger.Error(fmt.Sprintf("scheduled lifecycle pass: %v", err), err)
			}
		}
	}
}

// nextRun returns the next occurrence of hour:minute UTC strictly after now.
func (s *scheduler) nextRun(now time.Time) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
