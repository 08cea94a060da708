package devices

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Pruner periodically removes stale devices from a Tracker.
type Pruner struct {
	cron    *cron.Cron
	tracker *Tracker
	maxAge  time.Duration
	logger  *zap.Logger
}

// NewPruner schedules Prune(maxAge) on the given cron schedule, e.g. "@every 1m".
func NewPruner(tracker *Tracker, schedule string, maxAge time.Duration, logger *zap.Logger) (*Pruner, error) {
	p := &Pruner{
		cron:    cron.New(),
		tracker: tracker,
		maxAge:  maxAge,
		logger:  logger,
	}
	if _, err := p.cron.AddFunc(schedule, p.run); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}
	return p, nil
}

func (p *Pruner) run() {
	removed := p.tracker.Prune(p.maxAge)
	if removed > 0 {
		p.logger.Info("pruned stale devices",
			zap.Int("removed", removed),
			zap.Int("remaining", p.tracker.Len()),
			zap.Duration("max_age", p.maxAge),
		)
	}
}

// Start runs the schedule in its own goroutine.
func (p *Pruner) Start() {
	p.cron.Start()
}

// Stop stops the schedule and waits for a running prune to finish.
func (p *Pruner) Stop() {
	<-p.cron.Stop().Done()
}
