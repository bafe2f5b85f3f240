/*
scheduler.go - Automated loss recompute scheduler

PURPOSE:
  Periodically recomputes and persists the current month and a configurable
  number of previous months, so late base-fact corrections reach the stored
  history without an operator pressing "compute".

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Checks availability first; months without energy or billing are skipped
  - Each run goes through Engine.ComputeAndPersist, so reruns overwrite
  - Stop cancels the in-flight run between municipalities

CONFIGURATION ([scheduler] in the TOML file):
  - interval:        How often to run (default: 1 hour)
  - enabled:         Whether the scheduler starts (default: false)
  - lookback_months: Previous months recomputed besides the current one
  - user_id:         Recorded on every persisted row

USAGE:
  scheduler := NewRecomputeScheduler(engine, cfg.Scheduler, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: ComputeLosses endpoint (manual recompute)
  - losses/engine.go: ComputeAndPersist
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/loss-engine/config"
	"github.com/warp/loss-engine/losses"
)

// RunResult is the outcome of one scheduled pass.
type RunResult struct {
	Computed int
	Skipped  int
	Failed   int
}

// RecomputeScheduler recomputes recent months on a ticker.
type RecomputeScheduler struct {
	Engine         *losses.Engine
	CheckInterval  time.Duration
	Enabled        bool
	LookbackMonths int
	UserID         string

	// Now is the clock; replaced in tests.
	Now func() time.Time

	log    *zap.Logger
	ticker *time.Ticker
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRecomputeScheduler creates a scheduler from the [scheduler] config.
func NewRecomputeScheduler(engine *losses.Engine, cfg config.SchedulerConfig, log *zap.Logger) *RecomputeScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	interval := cfg.Interval.Duration
	if interval <= 0 {
		interval = time.Hour
	}
	return &RecomputeScheduler{
		Engine:         engine,
		CheckInterval:  interval,
		Enabled:        cfg.Enabled,
		LookbackMonths: cfg.LookbackMonths,
		UserID:         cfg.UserID,
		Now:            time.Now,
		log:            log.Named("scheduler"),
	}
}

// Start begins the scheduler.
func (rs *RecomputeScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.log.Info("disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rs.cancel = cancel
	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)

	go rs.run(ctx)

	rs.log.Info("started",
		zap.Duration("interval", rs.CheckInterval),
		zap.Int("lookback_months", rs.LookbackMonths))
}

// Stop stops the scheduler and waits for the current pass to end.
func (rs *RecomputeScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker == nil {
		return
	}
	rs.ticker.Stop()
	rs.cancel()
	rs.wg.Wait()
	rs.ticker = nil
	rs.log.Info("stopped")
}

func (rs *RecomputeScheduler) run(ctx context.Context) {
	defer rs.wg.Done()

	// Run immediately on start
	rs.RunNow(ctx)

	for {
		select {
		case <-rs.ticker.C:
			rs.RunNow(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Periods returns the months a pass recomputes, oldest first.
func (rs *RecomputeScheduler) Periods() []losses.Period {
	current := losses.PeriodOf(rs.Now())
	periods := make([]losses.Period, rs.LookbackMonths+1)
	for i := len(periods) - 1; i >= 0; i-- {
		periods[i] = current
		current = current.Previous()
	}
	return periods
}

// RunNow runs one pass immediately.
func (rs *RecomputeScheduler) RunNow(ctx context.Context) RunResult {
	var result RunResult

	for _, period := range rs.Periods() {
		if ctx.Err() != nil {
			break
		}
		if period.Validate() != nil {
			result.Skipped++
			continue
		}

		avail, err := rs.Engine.CheckAvailability(ctx, period)
		if err != nil {
			rs.log.Error("availability check failed", zap.Stringer("period", period), zap.Error(err))
			result.Failed++
			continue
		}
		if !avail.ComputationPossible {
			result.Skipped++
			continue
		}

		summary, report, err := rs.Engine.ComputeAndPersist(ctx, period, rs.UserID)
		switch {
		case err != nil:
			rs.log.Error("recompute failed", zap.Stringer("period", period), zap.Error(err))
			result.Failed++
		case summary == nil:
			result.Skipped++
		case !report.Complete():
			rs.log.Warn("recompute partially saved",
				zap.Stringer("period", period),
				zap.Int("saved", report.Saved),
				zap.Int("attempted", report.Attempted))
			result.Failed++
		default:
			result.Computed++
		}
	}

	if result.Computed > 0 || result.Failed > 0 {
		rs.log.Info("pass completed",
			zap.Int("computed", result.Computed),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed))
	}
	return result
}

// NextRunTime returns when the next scheduled pass will occur.
func (rs *RecomputeScheduler) NextRunTime() time.Time {
	return rs.Now().Add(rs.CheckInterval)
}
