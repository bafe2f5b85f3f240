/*
writer.go - Persistence of derived results

PURPOSE:
  Stores municipal and provincial results keyed by (scope, year, month).
  An existing row is overwritten in full (derived fields and modification
  timestamp); otherwise a row is inserted. Persisted rows are history: later
  computations always start again from base facts.

SERIALIZATION:
  Writes for the same (scope, year, month) are serialized by a keyed mutex,
  so two concurrent runs of the same period cannot interleave their
  look-up-then-write. Different keys never block each other.

FAILURES:
  Each write reports its own error. The caller counts successes and keeps
  going; one failed row never prevents its siblings from being attempted.
*/
package losses

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type writeKey struct {
	Scope  Scope
	Period Period
}

// keyLock is a per-key mutex with the number of writers holding or
// waiting on it. The entry is dropped when refs reaches zero.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Writer persists derived results.
type Writer struct {
	results ResultStore
	log     *zap.Logger

	mu    sync.Mutex
	locks map[writeKey]*keyLock
}

// NewWriter creates a writer over a result store.
func NewWriter(results ResultStore, log *zap.Logger) *Writer {
	return &Writer{
		results: results,
		log:     log.Named("writer"),
		locks:   make(map[writeKey]*keyLock),
	}
}

func (w *Writer) lock(k writeKey) func() {
	w.mu.Lock()
	l, ok := w.locks[k]
	if !ok {
		l = &keyLock{}
		w.locks[k] = l
	}
	l.refs++
	w.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		w.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(w.locks, k)
		}
		w.mu.Unlock()
	}
}

// heldLocks returns the number of keys currently locked or awaited.
func (w *Writer) heldLocks() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.locks)
}

// UpsertMunicipalityResult stores one municipal record.
func (w *Writer) UpsertMunicipalityResult(ctx context.Context, rec MunicipalityLossRecord, userID string) error {
	defer w.lock(writeKey{Scope: rec.Scope, Period: rec.Period})()

	created, err := w.results.SaveMunicipalityResult(ctx, rec, userID)
	if err != nil {
		w.log.Error("municipality result not saved",
			zap.Stringer("scope", rec.Scope), zap.Stringer("period", rec.Period), zap.Error(err))
		return fmt.Errorf("save result %s %s: %w", rec.Scope, rec.Period, err)
	}

	w.log.Debug("municipality result saved",
		zap.Stringer("scope", rec.Scope), zap.Stringer("period", rec.Period), zap.Bool("created", created))
	return nil
}

// UpsertProvincialResult stores the provincial summary row.
func (w *Writer) UpsertProvincialResult(ctx context.Context, summary ProvincialSummary, userID string) error {
	defer w.lock(writeKey{Scope: ProvinceScope, Period: summary.Period})()

	created, err := w.results.SaveProvincialResult(ctx, summary, userID)
	if err != nil {
		w.log.Error("provincial result not saved",
			zap.Stringer("period", summary.Period), zap.Error(err))
		return fmt.Errorf("save provincial result %s: %w", summary.Period, err)
	}

	w.log.Debug("provincial result saved",
		zap.Stringer("period", summary.Period), zap.Bool("created", created))
	return nil
}
