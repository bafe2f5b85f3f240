/*
Package losses provides the distribution loss computation engine.

PURPOSE:
  Given a (year, month) period, the engine loads the base facts for every
  active municipality (energy delivered at bus bar, energy billed, planned
  loss), computes monthly and year-to-date loss figures, folds them into a
  provincial summary and persists the derived rows idempotently.

KEY CONCEPTS IN THIS FILE (types.go):
  - Period: (year, month) partition key used everywhere
  - Scope: a municipality, or the provincial aggregate (ProvinceScope)
  - Facts: EnergyDeliveredFact, BillingFact, PlanFact (authoritative inputs)
  - Derived: MunicipalityLossRecord, ProvincialSummary (recomputed, cached)

UNITS:
  Energy delivered is stored in MWh. Billing is stored in kW and MUST be
  divided by 1000 before it is combined with energy delivered. Every
  percentage downstream depends on this conversion.

PRECISION:
  All quantities are decimal.Decimal. Sums across municipalities and
  year-to-date ranges never accumulate float error.

SEE ALSO:
  - calculator.go: Per-municipality loss arithmetic
  - aggregator.go: Provincial fold
  - plan.go: Plan lookup and bulk plan operations
  - engine.go: compute-and-persist use case
*/
package losses

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PERIOD
// =============================================================================

const (
	MinYear = 2000
	MaxYear = 2100
)

// Period is a calendar month. It is the primary partition key for facts,
// plans and derived results.
type Period struct {
	Year  int
	Month int
}

// NewPeriod validates and returns a period.
func NewPeriod(year, month int) (Period, error) {
	p := Period{Year: year, Month: month}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// Validate rejects years outside [MinYear, MaxYear] and months outside [1, 12].
func (p Period) Validate() error {
	if err := ValidateYear(p.Year); err != nil {
		return err
	}
	if p.Month < 1 || p.Month > 12 {
		return &InvalidInputError{Field: "month", Value: fmt.Sprint(p.Month), Reason: "must be between 1 and 12"}
	}
	return nil
}

// ValidateYear checks a year on its own (used by year-wide plan operations).
func ValidateYear(year int) error {
	if year < MinYear || year > MaxYear {
		return &InvalidInputError{
			Field:  "year",
			Value:  fmt.Sprint(year),
			Reason: fmt.Sprintf("must be between %d and %d", MinYear, MaxYear),
		}
	}
	return nil
}

// YearStart returns January of the same year.
func (p Period) YearStart() Period { return Period{Year: p.Year, Month: 1} }

// Previous returns the preceding month, crossing year boundaries.
func (p Period) Previous() Period {
	if p.Month == 1 {
		return Period{Year: p.Year - 1, Month: 12}
	}
	return Period{Year: p.Year, Month: p.Month - 1}
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month())}
}

func (p Period) String() string { return fmt.Sprintf("%04d-%02d", p.Year, p.Month) }

// =============================================================================
// SCOPE
// =============================================================================

// MunicipalityID identifies a municipality.
type MunicipalityID string

// Scope is either a single municipality or the provincial aggregate.
// The province is the absence of a municipality (NULL in storage), never a
// magic string id.
type Scope struct {
	Municipality MunicipalityID
}

// ProvinceScope is the provincial aggregate scope.
var ProvinceScope = Scope{}

// MunicipalityScope returns the scope for a single municipality.
func MunicipalityScope(id MunicipalityID) Scope { return Scope{Municipality: id} }

// IsProvince reports whether s is the provincial aggregate.
func (s Scope) IsProvince() bool { return s.Municipality == "" }

func (s Scope) String() string {
	if s.IsProvince() {
		return "province"
	}
	return "municipality:" + string(s.Municipality)
}

// Municipality is an entry of the municipality registry.
type Municipality struct {
	ID     MunicipalityID
	Name   string
	Active bool
}

// =============================================================================
// BASE FACTS (authoritative inputs)
// =============================================================================

// EnergyDeliveredFact is the energy metered at bus bar for a scope and period, in MWh.
type EnergyDeliveredFact struct {
	Scope  Scope
	Period Period
	MWh    decimal.Decimal
}

// BillingFact holds the two billing channels for a scope and period, in kW.
type BillingFact struct {
	Scope   Scope
	Period  Period
	MajorKW decimal.Decimal // commercial / industrial
	MinorKW decimal.Decimal // residential
}

// PlanFact is the planned loss percentage for a scope and period.
type PlanFact struct {
	ID         string
	Scope      Scope
	Period     Period
	Percentage decimal.Decimal
	Note       string
	UserID     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// =============================================================================
// DERIVED RECORDS
// =============================================================================

// LossFigures are the quantities shared by municipal and provincial results.
// Energy values are MWh, percentages are 0-100.
type LossFigures struct {
	EnergyDelivered decimal.Decimal
	BilledMajor     decimal.Decimal
	BilledMinor     decimal.Decimal
	TotalSales      decimal.Decimal
	Loss            decimal.Decimal // may be negative: billed more than delivered
	LossPct         decimal.Decimal
	PlanPct         decimal.Decimal

	YTDEnergyDelivered decimal.Decimal
	YTDTotalSales      decimal.Decimal
	YTDLoss            decimal.Decimal
	YTDLossPct         decimal.Decimal
	YTDPlanPct         decimal.Decimal
}

// Deviation is the monthly loss percentage minus the monthly plan.
// Positive means losses above target.
func (f LossFigures) Deviation() decimal.Decimal { return f.LossPct.Sub(f.PlanPct) }

// YTDDeviation is the cumulative loss percentage minus the cumulative plan.
func (f LossFigures) YTDDeviation() decimal.Decimal { return f.YTDLossPct.Sub(f.YTDPlanPct) }

// MunicipalityLossRecord is the derived loss result of one municipality for one period.
// It is recomputed from base facts on every request; persisted copies are history only.
type MunicipalityLossRecord struct {
	Scope            Scope
	Period           Period
	MunicipalityName string
	LossFigures
}

// ProvincialSummary folds every active municipality for one period.
type ProvincialSummary struct {
	Period Period
	LossFigures
	Municipalities []MunicipalityLossRecord
}

// Availability reports whether a period has enough base facts to compute.
type Availability struct {
	Period              Period
	EnergyPresent       bool
	EnergyCount         int
	BillingPresent      bool
	BillingCount        int
	PlanPresent         bool
	PlanCount           int
	ComputationPossible bool
}

// FactCounts is the raw row count per fact table for one period.
type FactCounts struct {
	Energy  int
	Billing int
	Plans   int
}

// =============================================================================
// HELPERS
// =============================================================================

var (
	hundred  = decimal.NewFromInt(100)
	thousand = decimal.NewFromInt(1000)
)

// KWToMWh converts a billing value from kW to MWh.
func KWToMWh(kw decimal.Decimal) decimal.Decimal { return kw.Div(thousand) }

// Percent returns part / whole * 100, or zero when whole is not positive.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}

// ValidatePercentage rejects plan percentages outside [0, 100].
func ValidatePercentage(pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return &InvalidInputError{Field: "percentage", Value: pct.String(), Reason: "must be between 0 and 100"}
	}
	return nil
}
