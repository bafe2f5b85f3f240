/*
store.go - Storage gateway interfaces

PURPOSE:
  Defines the typed boundary between the engine and storage. The engine
  never sees raw rows: implementations scan rows into facts and records.

KEY INTERFACES:
  FactReader:        Read-only access to energy and billing facts
  MunicipalityStore: Municipality registry
  PlanStore:         Plan rows (create-or-update, hard delete, year copy)
  ResultStore:       Derived rows (look up by key, update or insert)

ABSENT ROWS:
  Single-row lookups return (nil, nil) when the row does not exist.
  Callers treat that as zero.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - losses/store/memory.go: In-memory for testing
*/
package losses

import "context"

// FactReader loads the base facts for a scope.
type FactReader interface {
	// EnergyDelivered returns the energy row for scope+period, or nil.
	EnergyDelivered(ctx context.Context, scope Scope, period Period) (*EnergyDeliveredFact, error)

	// Billing returns the billing row for scope+period, or nil.
	Billing(ctx context.Context, scope Scope, period Period) (*BillingFact, error)

	// EnergyDeliveredYTD returns energy rows for months 1..period.Month of period.Year.
	EnergyDeliveredYTD(ctx context.Context, scope Scope, period Period) ([]EnergyDeliveredFact, error)

	// BillingYTD returns billing rows for months 1..period.Month of period.Year.
	BillingYTD(ctx context.Context, scope Scope, period Period) ([]BillingFact, error)

	// CountFacts counts energy, billing and plan rows for a period across all scopes.
	CountFacts(ctx context.Context, period Period) (FactCounts, error)
}

// MunicipalityStore is the municipality registry.
type MunicipalityStore interface {
	ActiveMunicipalities(ctx context.Context) ([]Municipality, error)
}

// PlanStore persists plan rows keyed by (scope, year, month).
type PlanStore interface {
	// GetPlan returns the plan for scope+period, or nil.
	GetPlan(ctx context.Context, scope Scope, period Period) (*PlanFact, error)

	// PlansYTD returns plan rows for months 1..period.Month of period.Year.
	PlansYTD(ctx context.Context, scope Scope, period Period) ([]PlanFact, error)

	// ListPlans returns every plan row of a year, all scopes.
	ListPlans(ctx context.Context, year int) ([]PlanFact, error)

	// SavePlan updates the row with the same (scope, year, month) in place,
	// or inserts a new one. Returns true when a row was created.
	SavePlan(ctx context.Context, plan PlanFact) (bool, error)

	// DeletePlan hard-deletes a plan row. Returns ErrPlanNotFound if absent.
	DeletePlan(ctx context.Context, scope Scope, period Period) error

	// CopyPlanYear copies every plan row of fromYear into toYear atomically.
	// Returns ErrPlanYearNotEmpty (nothing written) if toYear has any row.
	CopyPlanYear(ctx context.Context, fromYear, toYear int, userID string) (int, error)
}

// ResultStore persists derived loss rows keyed by (scope, year, month).
type ResultStore interface {
	// SaveMunicipalityResult overwrites the existing row for the record's key
	// or inserts one. Returns true when a row was created.
	SaveMunicipalityResult(ctx context.Context, rec MunicipalityLossRecord, userID string) (bool, error)

	// SaveProvincialResult does the same for the provincial row.
	SaveProvincialResult(ctx context.Context, summary ProvincialSummary, userID string) (bool, error)

	// MunicipalityResults returns the persisted municipal rows of a period.
	MunicipalityResults(ctx context.Context, period Period) ([]MunicipalityLossRecord, error)

	// ProvincialResult returns the persisted provincial row of a period, or nil.
	ProvincialResult(ctx context.Context, period Period) (*ProvincialSummary, error)
}

// Gateway is everything the engine needs from storage.
type Gateway interface {
	FactReader
	MunicipalityStore
	PlanStore
	ResultStore
}
