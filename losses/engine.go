/*
engine.go - Compute-and-persist use case

FLOW:
  1. Validate the period (InvalidInput before any storage call)
  2. Checker gates the run: no energy or no billing rows -> no result
  3. Aggregator computes every municipality and the provincial fold
  4. Writer stores each municipal row, then the provincial row

RESULT:
  Either a full ProvincialSummary or nil. nil means insufficient data or no
  active municipality, and both are reported the same way. Write failures
  never turn a computed summary into nil; they show up in SaveReport as
  "N of M records saved".

STATE:
  absent -> computed -> persisted. A rerun recomputes from base facts and
  overwrites, so persisted rows always match the base facts of the last run.
*/
package losses

import (
	"context"

	"go.uber.org/zap"
)

// SaveReport counts the persisted rows of one run.
type SaveReport struct {
	Attempted int
	Saved     int
	Failed    []Scope
}

// Complete reports whether every attempted write succeeded.
func (r SaveReport) Complete() bool { return r.Saved == r.Attempted }

// Engine wires the loss components around a single storage gateway.
type Engine struct {
	Checker    *Checker
	Plans      *PlanResolver
	Aggregator *Aggregator
	Writer     *Writer

	store Gateway
	log   *zap.Logger
}

// NewEngine builds an engine over the given gateway.
func NewEngine(store Gateway, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	plans := NewPlanResolver(store, store, log)
	return &Engine{
		Checker:    NewChecker(store),
		Plans:      plans,
		Aggregator: NewAggregator(store, store, plans, log),
		Writer:     NewWriter(store, log),
		store:      store,
		log:        log.Named("engine"),
	}
}

// CheckAvailability reports the base-fact coverage of a period.
func (e *Engine) CheckAvailability(ctx context.Context, period Period) (Availability, error) {
	return e.Checker.Check(ctx, period)
}

// Compute returns the provincial summary without persisting anything.
func (e *Engine) Compute(ctx context.Context, period Period) (*ProvincialSummary, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	avail, err := e.Checker.Check(ctx, period)
	if err != nil {
		return nil, err
	}
	if !avail.ComputationPossible {
		e.log.Info("insufficient data",
			zap.Stringer("period", period),
			zap.Int("energy_rows", avail.EnergyCount),
			zap.Int("billing_rows", avail.BillingCount))
		return nil, nil
	}
	return e.Aggregator.Compute(ctx, period)
}

// ComputeAndPersist computes the period and stores every derived row.
func (e *Engine) ComputeAndPersist(ctx context.Context, period Period, userID string) (*ProvincialSummary, SaveReport, error) {
	summary, err := e.Compute(ctx, period)
	if err != nil || summary == nil {
		return nil, SaveReport{}, err
	}

	report := SaveReport{Attempted: len(summary.Municipalities) + 1}
	for _, rec := range summary.Municipalities {
		if err := e.Writer.UpsertMunicipalityResult(ctx, rec, userID); err != nil {
			report.Failed = append(report.Failed, rec.Scope)
			continue
		}
		report.Saved++
	}
	if err := e.Writer.UpsertProvincialResult(ctx, *summary, userID); err != nil {
		report.Failed = append(report.Failed, ProvinceScope)
	} else {
		report.Saved++
	}

	e.log.Info("losses computed",
		zap.Stringer("period", period),
		zap.Int("municipalities", len(summary.Municipalities)),
		zap.Stringer("loss_pct", summary.LossPct.Round(2)),
		zap.Int("saved", report.Saved),
		zap.Int("attempted", report.Attempted))
	return summary, report, nil
}

// PersistedResults returns the stored rows of a period: the provincial row
// (nil if never computed) carrying the stored municipal rows.
func (e *Engine) PersistedResults(ctx context.Context, period Period) (*ProvincialSummary, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	summary, err := e.store.ProvincialResult(ctx, period)
	if err != nil {
		return nil, err
	}
	records, err := e.store.MunicipalityResults(ctx, period)
	if err != nil {
		return nil, err
	}
	if summary == nil {
		if len(records) == 0 {
			return nil, nil
		}
		summary = &ProvincialSummary{Period: period}
	}
	summary.Municipalities = records
	return summary, nil
}
