package losses_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/loss-engine/losses"
)

var importMunicipalities = []losses.Municipality{
	{ID: "m1", Name: "San Pedro", Active: true},
	{ID: "m2", Name: "San Pedro Norte", Active: true},
	{ID: "m3", Name: "Villa Clara", Active: true},
}

func TestResolveScope(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    losses.Scope
		wantErr error
	}{
		{"province english", "Province", losses.ProvinceScope, nil},
		{"province spanish", " PROVINCIA ", losses.ProvinceScope, nil},
		{"exact beats substring", "san pedro", scopeOf("m1"), nil},
		{"id match", "M3", scopeOf("m3"), nil},
		{"single substring", "clara", scopeOf("m3"), nil},
		{"ambiguous substring", "pedro", losses.Scope{}, losses.ErrInvalidInput},
		{"unknown", "Atlantis", losses.Scope{}, losses.ErrMunicipalityNotFound},
		{"empty", "  ", losses.Scope{}, losses.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := losses.ResolveScope(tt.input, importMunicipalities)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlanResolver_Import(t *testing.T) {
	// GIVEN: two municipalities and an existing plan for Alpha in January
	engine, mem := newTestEngine(t)
	ctx := context.Background()
	mem.AddMunicipality(losses.Municipality{ID: "A", Name: "Alpha", Active: true})
	mem.AddMunicipality(losses.Municipality{ID: "B", Name: "Beta", Active: true})
	_, err := engine.Plans.Save(ctx, losses.SavePlanRequest{Scope: scopeOf("A"), Period: jan2024, Percentage: d("4")})
	require.NoError(t, err)

	// WHEN: importing a mix of good and bad rows
	report, err := engine.Plans.Import(ctx, []losses.PlanImportRow{
		{ScopeName: "alpha", Period: jan2024, Percentage: d("9")},
		{ScopeName: "Beta", Period: jan2024, Percentage: d("11")},
		{ScopeName: "Provincia", Period: jan2024, Percentage: d("10")},
		{ScopeName: "Gamma", Period: jan2024, Percentage: d("5")},
		{ScopeName: "Beta", Period: losses.Period{Year: 2024, Month: 13}, Percentage: d("5")},
		{ScopeName: "Beta", Period: jan2024.Previous(), Percentage: d("120")},
	}, "importer")

	// THEN: valid rows are written, the rest reported with their row number
	require.NoError(t, err)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 1, report.Updated)
	require.Len(t, report.Rejected, 3)
	assert.Equal(t, 4, report.Rejected[0].Row)
	assert.Equal(t, "Gamma", report.Rejected[0].Scope)
	assert.Equal(t, 5, report.Rejected[1].Row)
	assert.Equal(t, 6, report.Rejected[2].Row)

	pct, _, err := engine.Plans.PlanFor(ctx, scopeOf("A"), jan2024)
	require.NoError(t, err)
	assertDecimal(t, "9", pct, "imported over existing plan")

	pct, ok, err := engine.Plans.PlanFor(ctx, losses.ProvinceScope, jan2024)
	require.NoError(t, err)
	assert.True(t, ok)
	assertDecimal(t, "10", pct, "province plan")
}

func TestPlanResolver_ImportStorageFailureKeepsPartialReport(t *testing.T) {
	// GIVEN: plan writes for Beta fail at the storage layer
	engine, mem := newTestEngine(t)
	ctx := context.Background()
	mem.AddMunicipality(losses.Municipality{ID: "A", Name: "Alpha", Active: true})
	mem.AddMunicipality(losses.Municipality{ID: "B", Name: "Beta", Active: true})
	mem.FailPlans[scopeOf("B")] = true

	// WHEN: importing Alpha, an unknown name, then Beta, then Provincia
	report, err := engine.Plans.Import(ctx, []losses.PlanImportRow{
		{ScopeName: "Alpha", Period: jan2024, Percentage: d("9")},
		{ScopeName: "Gamma", Period: jan2024, Percentage: d("5")},
		{ScopeName: "Beta", Period: jan2024, Percentage: d("11")},
		{ScopeName: "Provincia", Period: jan2024, Percentage: d("10")},
	}, "importer")

	// THEN: the import stops at Beta, reporting what was done before it
	require.Error(t, err)
	assert.ErrorIs(t, err, losses.ErrPersistenceFailed)
	assert.Contains(t, err.Error(), "row 3")
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 0, report.Updated)
	require.Len(t, report.Rejected, 1)
	assert.Equal(t, 2, report.Rejected[0].Row)

	_, ok, err := engine.Plans.PlanFor(ctx, losses.ProvinceScope, jan2024)
	require.NoError(t, err)
	assert.False(t, ok, "rows after the failure are not attempted")
}
