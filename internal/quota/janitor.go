package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Janitor prunes counters from previous days on a cron schedule.
type Janitor struct {
	ledger Ledger
	cron   *cron.Cron
	clock  Clock
	logger *slog.Logger
}

// NewJanitor schedules pruning of ledger; schedule uses cron syntax or descriptors like "@daily".
func NewJanitor(ledger Ledger, schedule string, logger *slog.Logger) (*Janitor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	j := &Janitor{
		ledger: ledger,
		cron:   cron.New(),
		clock:  time.Now,
		logger: logger,
	}

	if _, err := j.cron.AddFunc(schedule, func() { j.Run(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}
	return j, nil
}

// Start begins running the schedule in the background.
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts the schedule and waits for a running prune to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// Run prunes every counter older than today.
func (j *Janitor) Run(ctx context.Context) int {
	today := j.clock().Format(DayLayout)
	removed, err := j.ledger.Prune(ctx, today)
	if err != nil {
		j.logger.Error("quota prune failed", slog.String("error", err.Error()))
		return removed
	}
	j.logger.Info("quota counters pruned",
		slog.String("before", today),
		slog.Int("removed", removed))
	return removed
}
