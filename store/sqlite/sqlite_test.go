package sqlite_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/loss-engine/losses"
	"github.com/warp/loss-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var (
	jan2024 = losses.Period{Year: 2024, Month: 1}
	feb2024 = losses.Period{Year: 2024, Month: 2}
	scopeA  = losses.MunicipalityScope("A")
	scopeB  = losses.MunicipalityScope("B")
)

func seed(t *testing.T, store *sqlite.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.SaveMunicipality(ctx, losses.Municipality{ID: "A", Name: "Alpha", Active: true}))
	require.NoError(t, store.SaveMunicipality(ctx, losses.Municipality{ID: "B", Name: "Beta", Active: true}))

	_, err := store.SaveEnergyDelivered(ctx, losses.EnergyDeliveredFact{Scope: scopeA, Period: jan2024, MWh: d("1000")})
	require.NoError(t, err)
	_, err = store.SaveBilling(ctx, losses.BillingFact{Scope: scopeA, Period: jan2024, MajorKW: d("300000"), MinorKW: d("200000")})
	require.NoError(t, err)
	_, err = store.SaveEnergyDelivered(ctx, losses.EnergyDeliveredFact{Scope: scopeB, Period: jan2024, MWh: d("3000")})
	require.NoError(t, err)
	_, err = store.SaveBilling(ctx, losses.BillingFact{Scope: scopeB, Period: jan2024, MajorKW: d("2000000"), MinorKW: d("700000")})
	require.NoError(t, err)
}

// =============================================================================
// MUNICIPALITIES
// =============================================================================

func TestMunicipalities(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveMunicipality(ctx, losses.Municipality{ID: "B", Name: "Beta", Active: true}))
	require.NoError(t, store.SaveMunicipality(ctx, losses.Municipality{ID: "A", Name: "Alpha", Active: true}))
	require.NoError(t, store.SaveMunicipality(ctx, losses.Municipality{ID: "C", Name: "Gamma", Active: false}))

	active, err := store.ActiveMunicipalities(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "Alpha", active[0].Name)

	all, err := store.ListMunicipalities(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	m, err := store.GetMunicipality(ctx, "C")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.False(t, m.Active)

	missing, err := store.GetMunicipality(ctx, "Z")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

// =============================================================================
// FACTS
// =============================================================================

func TestFacts_CreateOrUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.SaveEnergyDelivered(ctx, losses.EnergyDeliveredFact{Scope: scopeA, Period: jan2024, MWh: d("10.125")})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.SaveEnergyDelivered(ctx, losses.EnergyDeliveredFact{Scope: scopeA, Period: jan2024, MWh: d("20.5")})
	require.NoError(t, err)
	assert.False(t, created)

	f, err := store.EnergyDelivered(ctx, scopeA, jan2024)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.True(t, d("20.5").Equal(f.MWh))

	counts, err := store.CountFacts(ctx, jan2024)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Energy)
}

func TestFacts_BillingCreateThenUpdate(t *testing.T) {
	// GIVEN: an empty store
	store := newTestStore(t)
	ctx := context.Background()

	// WHEN: billing is saved, then saved again for the same scope and month
	created, err := store.SaveBilling(ctx, losses.BillingFact{Scope: scopeA, Period: jan2024, MajorKW: d("300000"), MinorKW: d("200000")})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.SaveBilling(ctx, losses.BillingFact{Scope: scopeA, Period: jan2024, MajorKW: d("310000.5"), MinorKW: d("190000")})
	require.NoError(t, err)
	assert.False(t, created)

	// THEN: one row holds the second values
	b, err := store.Billing(ctx, scopeA, jan2024)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.True(t, d("310000.5").Equal(b.MajorKW))
	assert.True(t, d("190000").Equal(b.MinorKW))

	counts, err := store.CountFacts(ctx, jan2024)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Billing)
	assert.Equal(t, 0, counts.Energy)
}

func TestFacts_DistinctScopesInsertSeparateRows(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	ctx := context.Background()

	_, err := store.SaveBilling(ctx, losses.BillingFact{Scope: losses.ProvinceScope, Period: jan2024, MajorKW: d("1"), MinorKW: d("2")})
	require.NoError(t, err)

	counts, err := store.CountFacts(ctx, jan2024)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Energy)
	assert.Equal(t, 3, counts.Billing)

	b, err := store.Billing(ctx, scopeB, jan2024)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.True(t, d("700000").Equal(b.MinorKW))
}

func TestFacts_AbsentRowIsNil(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e, err := store.EnergyDelivered(ctx, scopeA, jan2024)
	require.NoError(t, err)
	assert.Nil(t, e)

	b, err := store.Billing(ctx, scopeA, jan2024)
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestFacts_ProvinceAndMunicipalityAreDistinct(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.SaveEnergyDelivered(ctx, losses.EnergyDeliveredFact{Scope: losses.ProvinceScope, Period: jan2024, MWh: d("9999")})
	require.NoError(t, err)
	_, err = store.SaveEnergyDelivered(ctx, losses.EnergyDeliveredFact{Scope: scopeA, Period: jan2024, MWh: d("1")})
	require.NoError(t, err)
	created, err := store.SaveEnergyDelivered(ctx, losses.EnergyDeliveredFact{Scope: losses.ProvinceScope, Period: jan2024, MWh: d("8888")})
	require.NoError(t, err)
	assert.False(t, created, "second province row updates the first")

	p, err := store.EnergyDelivered(ctx, losses.ProvinceScope, jan2024)
	require.NoError(t, err)
	assert.True(t, d("8888").Equal(p.MWh))

	a, err := store.EnergyDelivered(ctx, scopeA, jan2024)
	require.NoError(t, err)
	assert.True(t, d("1").Equal(a.MWh))
}

func TestFacts_YearToDate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, p := range []losses.Period{{Year: 2023, Month: 12}, jan2024, feb2024, {Year: 2024, Month: 3}} {
		_, err := store.SaveEnergyDelivered(ctx, losses.EnergyDeliveredFact{Scope: scopeA, Period: p, MWh: d("100")})
		require.NoError(t, err)
		_, err = store.SaveBilling(ctx, losses.BillingFact{Scope: scopeA, Period: p, MajorKW: d("1000"), MinorKW: d("500")})
		require.NoError(t, err)
	}

	energy, err := store.EnergyDeliveredYTD(ctx, scopeA, feb2024)
	require.NoError(t, err)
	assert.Len(t, energy, 2)
	assert.True(t, d("200").Equal(losses.SumEnergy(energy)))

	billing, err := store.BillingYTD(ctx, scopeA, feb2024)
	require.NoError(t, err)
	major, minor := losses.SumBilling(billing)
	assert.True(t, d("2000").Equal(major))
	assert.True(t, d("1000").Equal(minor))
}

// =============================================================================
// PLANS
// =============================================================================

func TestPlans_SaveUpdatesInPlace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.SavePlan(ctx, losses.PlanFact{Scope: scopeA, Period: jan2024, Percentage: d("8"), UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, created)

	first, err := store.GetPlan(ctx, scopeA, jan2024)
	require.NoError(t, err)
	require.NotNil(t, first)

	created, err = store.SavePlan(ctx, losses.PlanFact{Scope: scopeA, Period: jan2024, Percentage: d("9"), Note: "revised", UserID: "u2"})
	require.NoError(t, err)
	assert.False(t, created)

	second, err := store.GetPlan(ctx, scopeA, jan2024)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "same row")
	assert.True(t, d("9").Equal(second.Percentage))
	assert.Equal(t, "revised", second.Note)
	assert.Equal(t, "u2", second.UserID)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt) || second.UpdatedAt.Equal(first.UpdatedAt))
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	plans, err := store.ListPlans(ctx, 2024)
	require.NoError(t, err)
	assert.Len(t, plans, 1)
}

func TestPlans_ProvinceScopeMatchesOnlyProvince(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.SavePlan(ctx, losses.PlanFact{Scope: losses.ProvinceScope, Period: jan2024, Percentage: d("7")})
	require.NoError(t, err)
	created, err := store.SavePlan(ctx, losses.PlanFact{Scope: losses.ProvinceScope, Period: jan2024, Percentage: d("6")})
	require.NoError(t, err)
	assert.False(t, created, "province duplicates are detected")

	p, err := store.GetPlan(ctx, losses.ProvinceScope, jan2024)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, p.Scope.IsProvince())
	assert.True(t, d("6").Equal(p.Percentage))

	a, err := store.GetPlan(ctx, scopeA, jan2024)
	require.NoError(t, err)
	assert.Nil(t, a)

	counts, err := store.CountFacts(ctx, jan2024)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Plans)
}

func TestPlans_YTDAndDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for month, pct := range map[int]string{1: "8", 3: "10", 5: "50"} {
		_, err := store.SavePlan(ctx, losses.PlanFact{Scope: scopeA, Period: losses.Period{Year: 2024, Month: month}, Percentage: d(pct)})
		require.NoError(t, err)
	}

	plans, err := store.PlansYTD(ctx, scopeA, losses.Period{Year: 2024, Month: 4})
	require.NoError(t, err)
	assert.Len(t, plans, 2)
	assert.True(t, d("9").Equal(losses.MeanPlan(plans)))

	require.NoError(t, store.DeletePlan(ctx, scopeA, jan2024))
	assert.ErrorIs(t, store.DeletePlan(ctx, scopeA, jan2024), losses.ErrPlanNotFound)
}

func TestPlans_CopyYear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.SavePlan(ctx, losses.PlanFact{Scope: scopeA, Period: jan2024, Percentage: d("8"), Note: "base"})
	require.NoError(t, err)
	_, err = store.SavePlan(ctx, losses.PlanFact{Scope: losses.ProvinceScope, Period: feb2024, Percentage: d("6")})
	require.NoError(t, err)

	n, err := store.CopyPlanYear(ctx, 2024, 2025, "admin")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	p, err := store.GetPlan(ctx, losses.ProvinceScope, losses.Period{Year: 2025, Month: 2})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, d("6").Equal(p.Percentage))
	assert.Equal(t, "admin", p.UserID)

	a, err := store.GetPlan(ctx, scopeA, losses.Period{Year: 2025, Month: 1})
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "base", a.Note)
}

func TestPlans_CopyYearIntoNonEmptyYearLeavesItUnchanged(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.SavePlan(ctx, losses.PlanFact{Scope: scopeA, Period: jan2024, Percentage: d("8")})
	require.NoError(t, err)
	_, err = store.SavePlan(ctx, losses.PlanFact{Scope: scopeB, Period: jan2024, Percentage: d("8")})
	require.NoError(t, err)
	_, err = store.SavePlan(ctx, losses.PlanFact{Scope: scopeA, Period: losses.Period{Year: 2025, Month: 6}, Percentage: d("2")})
	require.NoError(t, err)

	before, err := store.ListPlans(ctx, 2025)
	require.NoError(t, err)

	n, err := store.CopyPlanYear(ctx, 2024, 2025, "admin")
	assert.ErrorIs(t, err, losses.ErrPlanYearNotEmpty)
	assert.Zero(t, n)

	after, err := store.ListPlans(ctx, 2025)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

// =============================================================================
// RESULTS
// =============================================================================

func TestResults_MunicipalityUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store)

	rec := losses.MunicipalityLossRecord{
		Scope:  scopeA,
		Period: jan2024,
		LossFigures: losses.LossFigures{
			EnergyDelivered: d("1000"), TotalSales: d("500"), Loss: d("500"), LossPct: d("50"),
		},
	}
	created, err := store.SaveMunicipalityResult(ctx, rec, "u1")
	require.NoError(t, err)
	assert.True(t, created)

	rec.LossPct = d("40")
	created, err = store.SaveMunicipalityResult(ctx, rec, "u1")
	require.NoError(t, err)
	assert.False(t, created)

	results, err := store.MunicipalityResults(ctx, jan2024)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Alpha", results[0].MunicipalityName)
	assert.Equal(t, scopeA, results[0].Scope)
	assert.True(t, d("40").Equal(results[0].LossPct))
	assert.True(t, results[0].BilledMajor.IsZero())
}

func TestResults_MunicipalityResultNeedsMunicipality(t *testing.T) {
	store := newTestStore(t)

	_, err := store.SaveMunicipalityResult(context.Background(), losses.MunicipalityLossRecord{Period: jan2024}, "u1")
	assert.ErrorIs(t, err, losses.ErrInvalidInput)
}

func TestResults_ProvincialUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	none, err := store.ProvincialResult(ctx, jan2024)
	require.NoError(t, err)
	assert.Nil(t, none)

	summary := losses.ProvincialSummary{Period: jan2024, LossFigures: losses.LossFigures{LossPct: d("20"), PlanPct: d("7")}}
	created, err := store.SaveProvincialResult(ctx, summary, "u1")
	require.NoError(t, err)
	assert.True(t, created)

	summary.LossPct = d("21")
	created, err = store.SaveProvincialResult(ctx, summary, "u1")
	require.NoError(t, err)
	assert.False(t, created)

	got, err := store.ProvincialResult(ctx, jan2024)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, d("21").Equal(got.LossPct))
	assert.True(t, d("7").Equal(got.PlanPct))
}

func TestResults_ProvincialRowsKeyedByPeriod(t *testing.T) {
	// GIVEN: provincial and municipal results for two months
	store := newTestStore(t)
	seed(t, store)
	ctx := context.Background()

	for i, p := range []losses.Period{jan2024, feb2024} {
		pct := decimal.NewFromInt(int64(10 + i))
		created, err := store.SaveProvincialResult(ctx, losses.ProvincialSummary{Period: p, LossFigures: losses.LossFigures{LossPct: pct}}, "u1")
		require.NoError(t, err)
		assert.True(t, created)
		created, err = store.SaveMunicipalityResult(ctx, losses.MunicipalityLossRecord{Scope: scopeA, Period: p, LossFigures: losses.LossFigures{LossPct: pct.Neg()}}, "u1")
		require.NoError(t, err)
		assert.True(t, created)
	}

	// WHEN: January's provincial row is saved again
	created, err := store.SaveProvincialResult(ctx, losses.ProvincialSummary{Period: jan2024, LossFigures: losses.LossFigures{LossPct: d("12.5")}}, "u2")
	require.NoError(t, err)

	// THEN: only January's provincial row changes
	assert.False(t, created)

	jan, err := store.ProvincialResult(ctx, jan2024)
	require.NoError(t, err)
	require.NotNil(t, jan)
	assert.True(t, d("12.5").Equal(jan.LossPct))

	feb, err := store.ProvincialResult(ctx, feb2024)
	require.NoError(t, err)
	require.NotNil(t, feb)
	assert.True(t, d("11").Equal(feb.LossPct))

	records, err := store.MunicipalityResults(ctx, jan2024)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, d("-10").Equal(records[0].LossPct))
}

// =============================================================================
// ENGINE OVER SQLITE
// =============================================================================

func TestEngineOverSQLite_IdempotentComputeAndPersist(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store)
	_, err := store.SavePlan(ctx, losses.PlanFact{Scope: scopeA, Period: jan2024, Percentage: d("8")})
	require.NoError(t, err)

	engine := losses.NewEngine(store, zap.NewNop())

	summary, report, err := engine.ComputeAndPersist(ctx, jan2024, "user-1")
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, 3, report.Saved)
	assert.True(t, d("20").Equal(summary.LossPct))

	first, err := engine.PersistedResults(ctx, jan2024)
	require.NoError(t, err)

	_, report, err = engine.ComputeAndPersist(ctx, jan2024, "user-1")
	require.NoError(t, err)
	assert.True(t, report.Complete())

	second, err := engine.PersistedResults(ctx, jan2024)
	require.NoError(t, err)
	require.Len(t, second.Municipalities, 2)
	for i := range first.Municipalities {
		assert.True(t, first.Municipalities[i].LossPct.Equal(second.Municipalities[i].LossPct))
		assert.True(t, first.Municipalities[i].Loss.Equal(second.Municipalities[i].Loss))
	}
	assert.True(t, first.LossPct.Equal(second.LossPct))

	alpha := second.Municipalities[0]
	assert.Equal(t, "Alpha", alpha.MunicipalityName)
	assert.True(t, d("500").Equal(alpha.TotalSales))
	assert.True(t, d("50").Equal(alpha.LossPct))
	assert.True(t, d("8").Equal(alpha.PlanPct))
}

func TestStore_Reset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store)

	require.NoError(t, store.Reset(ctx))

	all, err := store.ListMunicipalities(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	counts, err := store.CountFacts(ctx, jan2024)
	require.NoError(t, err)
	assert.Zero(t, counts.Energy)
}
