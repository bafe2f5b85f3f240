// Package store provides in-memory gateway implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/loss-engine/losses"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type key struct {
	Scope  losses.Scope
	Period losses.Period
}

// Memory implements losses.Gateway with maps keyed by (scope, year, month).
type Memory struct {
	mu             sync.RWMutex
	municipalities map[losses.MunicipalityID]losses.Municipality
	energy         map[key]losses.EnergyDeliveredFact
	billing        map[key]losses.BillingFact
	plans          map[key]losses.PlanFact
	results        map[key]losses.MunicipalityLossRecord
	provincial     map[losses.Period]losses.ProvincialSummary

	// FailResults makes result writes for these scopes fail (write-failure tests).
	FailResults map[losses.Scope]bool
	// FailPlans does the same for plan writes.
	FailPlans map[losses.Scope]bool

	now func() time.Time
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		municipalities: make(map[losses.MunicipalityID]losses.Municipality),
		energy:         make(map[key]losses.EnergyDeliveredFact),
		billing:        make(map[key]losses.BillingFact),
		plans:          make(map[key]losses.PlanFact),
		results:        make(map[key]losses.MunicipalityLossRecord),
		provincial:     make(map[losses.Period]losses.ProvincialSummary),
		FailResults:    make(map[losses.Scope]bool),
		FailPlans:      make(map[losses.Scope]bool),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// SEEDING
// =============================================================================

// AddMunicipality registers a municipality.
func (m *Memory) AddMunicipality(mun losses.Municipality) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.municipalities[mun.ID] = mun
}

// SetEnergy stores an energy fact (create-or-update).
func (m *Memory) SetEnergy(scope losses.Scope, period losses.Period, mwh decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.energy[key{scope, period}] = losses.EnergyDeliveredFact{Scope: scope, Period: period, MWh: mwh}
}

// SetBilling stores a billing fact in kW (create-or-update).
func (m *Memory) SetBilling(scope losses.Scope, period losses.Period, majorKW, minorKW decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.billing[key{scope, period}] = losses.BillingFact{Scope: scope, Period: period, MajorKW: majorKW, MinorKW: minorKW}
}

// ResultCount returns the number of stored municipal and provincial rows.
func (m *Memory) ResultCount() (municipal, provincial int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.results), len(m.provincial)
}

// =============================================================================
// FACT READER
// =============================================================================

func (m *Memory) EnergyDelivered(_ context.Context, scope losses.Scope, period losses.Period) (*losses.EnergyDeliveredFact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.energy[key{scope, period}]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (m *Memory) Billing(_ context.Context, scope losses.Scope, period losses.Period) (*losses.BillingFact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.billing[key{scope, period}]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (m *Memory) EnergyDeliveredYTD(_ context.Context, scope losses.Scope, period losses.Period) ([]losses.EnergyDeliveredFact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []losses.EnergyDeliveredFact
	for month := 1; month <= period.Month; month++ {
		if f, ok := m.energy[key{scope, losses.Period{Year: period.Year, Month: month}}]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *Memory) BillingYTD(_ context.Context, scope losses.Scope, period losses.Period) ([]losses.BillingFact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []losses.BillingFact
	for month := 1; month <= period.Month; month++ {
		if f, ok := m.billing[key{scope, losses.Period{Year: period.Year, Month: month}}]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *Memory) CountFacts(_ context.Context, period losses.Period) (losses.FactCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var c losses.FactCounts
	for k := range m.energy {
		if k.Period == period {
			c.Energy++
		}
	}
	for k := range m.billing {
		if k.Period == period {
			c.Billing++
		}
	}
	for k := range m.plans {
		if k.Period == period {
			c.Plans++
		}
	}
	return c, nil
}

// =============================================================================
// MUNICIPALITIES
// =============================================================================

func (m *Memory) ActiveMunicipalities(_ context.Context) ([]losses.Municipality, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []losses.Municipality
	for _, mun := range m.municipalities {
		if mun.Active {
			out = append(out, mun)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// =============================================================================
// PLANS
// =============================================================================

func (m *Memory) GetPlan(_ context.Context, scope losses.Scope, period losses.Period) (*losses.PlanFact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plans[key{scope, period}]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) PlansYTD(_ context.Context, scope losses.Scope, period losses.Period) ([]losses.PlanFact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []losses.PlanFact
	for month := 1; month <= period.Month; month++ {
		if p, ok := m.plans[key{scope, losses.Period{Year: period.Year, Month: month}}]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Memory) ListPlans(_ context.Context, year int) ([]losses.PlanFact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.plansOfYearLocked(year), nil
}

func (m *Memory) plansOfYearLocked(year int) []losses.PlanFact {
	var out []losses.PlanFact
	for k, p := range m.plans {
		if k.Period.Year == year {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Scope.Municipality != out[j].Scope.Municipality {
			return out[i].Scope.Municipality < out[j].Scope.Municipality
		}
		return out[i].Period.Month < out[j].Period.Month
	})
	return out
}

func (m *Memory) SavePlan(_ context.Context, plan losses.PlanFact) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPlans[plan.Scope] {
		return false, losses.ErrPersistenceFailed
	}
	return m.savePlanLocked(plan), nil
}

func (m *Memory) savePlanLocked(plan losses.PlanFact) bool {
	k := key{plan.Scope, plan.Period}
	now := m.now()
	if existing, ok := m.plans[k]; ok {
		existing.Percentage = plan.Percentage
		existing.Note = plan.Note
		existing.UserID = plan.UserID
		existing.UpdatedAt = now
		m.plans[k] = existing
		return false
	}
	plan.CreatedAt = now
	plan.UpdatedAt = now
	m.plans[k] = plan
	return true
}

func (m *Memory) DeletePlan(_ context.Context, scope losses.Scope, period losses.Period) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{scope, period}
	if _, ok := m.plans[k]; !ok {
		return losses.ErrPlanNotFound
	}
	delete(m.plans, k)
	return nil
}

func (m *Memory) CopyPlanYear(_ context.Context, fromYear, toYear int, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing := m.plansOfYearLocked(toYear); len(existing) > 0 {
		return 0, &losses.PlanYearConflictError{FromYear: fromYear, ToYear: toYear, ExistingPlans: len(existing)}
	}

	source := m.plansOfYearLocked(fromYear)
	for _, p := range source {
		p.ID = p.ID + "-" + losses.Period{Year: toYear, Month: p.Period.Month}.String()
		p.Period.Year = toYear
		p.UserID = userID
		m.savePlanLocked(p)
	}
	return len(source), nil
}

// =============================================================================
// RESULTS
// =============================================================================

func (m *Memory) SaveMunicipalityResult(_ context.Context, rec losses.MunicipalityLossRecord, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailResults[rec.Scope] {
		return false, losses.ErrPersistenceFailed
	}
	k := key{rec.Scope, rec.Period}
	_, existed := m.results[k]
	m.results[k] = rec
	return !existed, nil
}

func (m *Memory) SaveProvincialResult(_ context.Context, summary losses.ProvincialSummary, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailResults[losses.ProvinceScope] {
		return false, losses.ErrPersistenceFailed
	}
	_, existed := m.provincial[summary.Period]
	summary.Municipalities = nil
	m.provincial[summary.Period] = summary
	return !existed, nil
}

func (m *Memory) MunicipalityResults(_ context.Context, period losses.Period) ([]losses.MunicipalityLossRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []losses.MunicipalityLossRecord
	for k, r := range m.results {
		if k.Period == period {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MunicipalityName < out[j].MunicipalityName })
	return out, nil
}

func (m *Memory) ProvincialResult(_ context.Context, period losses.Period) (*losses.ProvincialSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.provincial[period]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

var _ losses.Gateway = (*Memory)(nil)
