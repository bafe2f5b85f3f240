/*
errors.go - Error types for the loss engine

ERROR CATEGORIES:
  1. Input errors - year/month/percentage out of range (rejected before any
     computation or storage call)
  2. Plan conflicts - bulk year copy into a year that already has plans
  3. Persistence errors - a derived-row write affected no rows

MISSING FACTS ARE NOT ERRORS:
  An absent energy, billing or plan row reads as zero. Only the Checker
  reports aggregate absence, and only as advisory information.

USAGE:
  if errors.Is(err, losses.ErrPlanYearNotEmpty) {
      // decline the copy, nothing was written
  }
*/
package losses

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput is returned for out-of-range or malformed caller input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPlanYearNotEmpty is returned when copying plans into a year that
	// already has at least one plan row.
	ErrPlanYearNotEmpty = errors.New("destination year already has plans")

	// ErrPersistenceFailed is returned when a write affected no rows.
	ErrPersistenceFailed = errors.New("persistence failed")

	// ErrPlanNotFound is returned when deleting a plan that does not exist.
	ErrPlanNotFound = errors.New("plan not found")

	// ErrMunicipalityNotFound is returned for unknown municipality ids.
	ErrMunicipalityNotFound = errors.New("municipality not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidInputError describes which caller value was rejected.
type InvalidInputError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// PlanYearConflictError reports a declined year copy.
type PlanYearConflictError struct {
	FromYear      int
	ToYear        int
	ExistingPlans int
}

func (e *PlanYearConflictError) Error() string {
	return fmt.Sprintf("cannot copy plans %d -> %d: %d plans already exist in %d",
		e.FromYear, e.ToYear, e.ExistingPlans, e.ToYear)
}

func (e *PlanYearConflictError) Unwrap() error { return ErrPlanYearNotEmpty }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrPlanYearNotEmpty)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrMunicipalityNotFound)
}
