/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	municipality registries, base facts and plans. Each scenario shows one
	behavior of the loss engine.

AVAILABLE SCENARIOS:

	reference-month:  Two municipalities, one month, hand-checkable numbers
	province-year:    Five municipalities, a full year of facts and plans
	missing-billing:  Energy present but no billing (insufficient data)

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Register municipalities
 3. Store energy delivered and billing facts
 4. Store plans (municipal and provincial)

Loading does not compute anything; call POST /api/losses/compute afterwards.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "province-year"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Compute and plan endpoints
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/loss-engine/losses"
)

// DemoYear is the year every scenario writes its facts into.
const DemoYear = 2024

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "reference-month",
		Name:        "Reference Month",
		Description: "Two municipalities in January: 50% and 10% loss, 20% provincial",
	},
	{
		ID:          "province-year",
		Name:        "Province Year",
		Description: "Five municipalities with twelve months of facts and plans",
	},
	{
		ID:          "missing-billing",
		Name:        "Missing Billing",
		Description: "Energy delivered recorded but no billing: computation not possible",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var load func(context.Context) error
	switch req.ScenarioID {
	case "reference-month":
		load = h.loadReferenceMonthScenario
	case "province-year":
		load = h.loadProvinceYearScenario
	case "missing-billing":
		load = h.loadMissingBillingScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	if err := load(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.currentScenario = req.ScenarioID
	h.log.Info("scenario loaded", zap.String("scenario", req.ScenarioID))

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
	})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	h.log.Warn("database reset")

	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

type demoMunicipality struct {
	id   losses.MunicipalityID
	name string
	// monthly MWh delivered and the share of it billed (major, minor)
	mwh          int64
	major, minor string
	planPct      string
}

func (h *Handler) seedMunicipality(ctx context.Context, m demoMunicipality, months ...int) error {
	if err := h.Store.SaveMunicipality(ctx, losses.Municipality{ID: m.id, Name: m.name, Active: true}); err != nil {
		return err
	}
	scope := losses.MunicipalityScope(m.id)
	delivered := decimal.NewFromInt(m.mwh)
	kwPerMWh := decimal.NewFromInt(1000)

	for _, month := range months {
		period := losses.Period{Year: DemoYear, Month: month}
		// small seasonal swing so months differ
		swing := decimal.NewFromInt(int64(100 + (month%4)*5)).Div(decimal.NewFromInt(100))
		mwh := delivered.Mul(swing)

		if _, err := h.Store.SaveEnergyDelivered(ctx, losses.EnergyDeliveredFact{Scope: scope, Period: period, MWh: mwh}); err != nil {
			return err
		}
		if _, err := h.Store.SaveBilling(ctx, losses.BillingFact{
			Scope:   scope,
			Period:  period,
			MajorKW: mwh.Mul(decimal.RequireFromString(m.major)).Mul(kwPerMWh),
			MinorKW: mwh.Mul(decimal.RequireFromString(m.minor)).Mul(kwPerMWh),
		}); err != nil {
			return err
		}
		if m.planPct == "" {
			continue
		}
		if _, err := h.Engine.Plans.Save(ctx, losses.SavePlanRequest{
			Scope:      scope,
			Period:     period,
			Percentage: decimal.RequireFromString(m.planPct),
			Note:       "demo",
			UserID:     "demo",
		}); err != nil {
			return err
		}
	}
	return nil
}

// loadReferenceMonthScenario: A delivers 1000 MWh and bills 500 (50% loss),
// B delivers 3000 MWh and bills 2700 (10% loss). Province: 800 of 4000 = 20%.
func (h *Handler) loadReferenceMonthScenario(ctx context.Context) error {
	jan := losses.Period{Year: DemoYear, Month: 1}
	facts := []struct {
		m            losses.Municipality
		mwh          string
		major, minor string
	}{
		{losses.Municipality{ID: "A", Name: "Alpha", Active: true}, "1000", "300000", "200000"},
		{losses.Municipality{ID: "B", Name: "Beta", Active: true}, "3000", "2000000", "700000"},
	}

	for _, f := range facts {
		if err := h.Store.SaveMunicipality(ctx, f.m); err != nil {
			return err
		}
		scope := losses.MunicipalityScope(f.m.ID)
		if _, err := h.Store.SaveEnergyDelivered(ctx, losses.EnergyDeliveredFact{
			Scope: scope, Period: jan, MWh: decimal.RequireFromString(f.mwh),
		}); err != nil {
			return err
		}
		if _, err := h.Store.SaveBilling(ctx, losses.BillingFact{
			Scope: scope, Period: jan,
			MajorKW: decimal.RequireFromString(f.major),
			MinorKW: decimal.RequireFromString(f.minor),
		}); err != nil {
			return err
		}
	}

	_, err := h.Engine.Plans.Save(ctx, losses.SavePlanRequest{
		Scope: losses.MunicipalityScope("A"), Period: jan, Percentage: decimal.NewFromInt(8), UserID: "demo",
	})
	if err != nil {
		return err
	}
	_, err = h.Engine.Plans.Save(ctx, losses.SavePlanRequest{
		Scope: losses.ProvinceScope, Period: jan, Percentage: decimal.NewFromInt(7), UserID: "demo",
	})
	return err
}

func (h *Handler) loadProvinceYearScenario(ctx context.Context) error {
	municipalities := []demoMunicipality{
		{id: "capital", name: "Capital", mwh: 42000, major: "0.55", minor: "0.37", planPct: "8"},
		{id: "riverside", name: "Riverside", mwh: 9800, major: "0.40", minor: "0.47", planPct: "11"},
		{id: "hillcrest", name: "Hillcrest", mwh: 5100, major: "0.25", minor: "0.60", planPct: "12.5"},
		{id: "port", name: "Port Harbor", mwh: 17500, major: "0.70", minor: "0.21", planPct: "9"},
		{id: "valley", name: "Valley Springs", mwh: 3300, major: "0.15", minor: "0.65"},
	}
	months := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}

	for _, m := range municipalities {
		if err := h.seedMunicipality(ctx, m, months...); err != nil {
			return fmt.Errorf("seed %s: %w", m.id, err)
		}
	}
	// Valley Springs has no plans of its own; defaults fill its year and the province.
	_, err := h.Engine.Plans.GenerateDefaults(ctx, losses.GenerateDefaultsRequest{
		Year:            DemoYear,
		Percentage:      decimal.NewFromInt(10),
		IncludeProvince: true,
		UserID:          "demo",
	})
	return err
}

func (h *Handler) loadMissingBillingScenario(ctx context.Context) error {
	if err := h.Store.SaveMunicipality(ctx, losses.Municipality{ID: "A", Name: "Alpha", Active: true}); err != nil {
		return err
	}
	_, err := h.Store.SaveEnergyDelivered(ctx, losses.EnergyDeliveredFact{
		Scope:  losses.MunicipalityScope("A"),
		Period: losses.Period{Year: DemoYear, Month: 1},
		MWh:    decimal.NewFromInt(1000),
	})
	return err
}
