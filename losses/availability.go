package losses

import (
	"context"
	"fmt"
)

// Checker reports whether a period has enough base facts for a meaningful
// computation. It never writes and its answer may be stale immediately.
type Checker struct {
	facts FactReader
}

// NewChecker creates a checker over the given fact reader.
func NewChecker(facts FactReader) *Checker {
	return &Checker{facts: facts}
}

// Check counts the base facts of a period. Computation is possible when both
// energy and billing rows exist; plans are informational only.
func (c *Checker) Check(ctx context.Context, period Period) (Availability, error) {
	if err := period.Validate(); err != nil {
		return Availability{}, err
	}

	counts, err := c.facts.CountFacts(ctx, period)
	if err != nil {
		return Availability{}, fmt.Errorf("count facts %s: %w", period, err)
	}

	return Availability{
		Period:              period,
		EnergyPresent:       counts.Energy > 0,
		EnergyCount:         counts.Energy,
		BillingPresent:      counts.Billing > 0,
		BillingCount:        counts.Billing,
		PlanPresent:         counts.Plans > 0,
		PlanCount:           counts.Plans,
		ComputationPossible: counts.Energy > 0 && counts.Billing > 0,
	}, nil
}
