package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ParseSchedule parses a standard 5-field cron expression
// (minute hour day-of-month month day-of-week) or a descriptor such as "@daily".
// Examples: "0 7 * * *" (daily 7am), "0 7 * * 1-5" (weekdays 7am).
func ParseSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return nil, fmt.Errorf("invalid rescan_schedule '%s': %w", expr, err)
	}
	return sched, nil
}

// RunRescanScheduler rescans on every tick of expr, evaluated in loc, until
// ctx is cancelled. An empty expr disables scheduling and returns at once.
func RunRescanScheduler(ctx context.Context, expr string, loc *time.Location, r *Rescanner) error {
	logger := r.logger()
	expr = strings.TrimSpace(expr)
	if expr == "" {
		logger.Info("scheduled rescans disabled (rescan_schedule not set)")
		return nil
	}
	sched, err := ParseSchedule(expr)
	if err != nil {
		return err
	}
	if loc == nil {
		loc = time.Local
	}
	logger.Info("rescans scheduled", zap.String("cron", expr), zap.String("folder", r.Folder))

	for {
		now := time.Now().In(loc)
		next := sched.Next(now)
		wait := next.Sub(now)
		logger.Info("next rescan", zap.Time("at", next), zap.Duration("in", wait.Round(time.Minute)))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		r.RescanAndNotify(ctx, "scheduled")
	}
}
