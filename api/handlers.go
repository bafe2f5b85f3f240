/*
handlers.go - HTTP API handlers for the loss engine

PURPOSE:
  Exposes the loss engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the losses package.

ENDPOINTS:
  Municipalities:
    GET    /api/municipalities          List registry
    POST   /api/municipalities          Create or update an entry

  Base facts:
    PUT    /api/facts/energy            Energy delivered (MWh)
    PUT    /api/facts/billing           Billing major/minor (kW)

  Losses:
    GET    /api/availability            Base-fact coverage of a month
    POST   /api/losses/compute          Compute and persist a month
    GET    /api/losses                  Persisted results of a month
    GET    /api/losses/export           Persisted results as CSV

  Plans:
    GET    /api/plans?year=             Plans of a year
    PUT    /api/plans                   Create or update one plan
    DELETE /api/plans                   Hard delete one plan
    POST   /api/plans/copy              Copy a year (all or nothing)
    POST   /api/plans/defaults          Fill a year with one percentage
    POST   /api/plans/import            Import plans by scope name

ARCHITECTURE:
  Handler holds the SQLite store (registry, facts, reset) and the engine
  built over the same store (plans, computation, persisted results).

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid year, month, percentage or body
  - 404: Unknown municipality or plan. Fact and plan writes naming a
         municipality_id missing from the registry are refused here.
  - 409: Plan year copy into a year that already has plans
  - 500: Storage errors

SECURITY NOTE:
  No authentication. user_id is taken from request bodies as given.

SEE ALSO:
  - dto.go: Request/response data structures
  - export.go: CSV export
  - scenarios.go: Demo data loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/warp/loss-engine/losses"
	"github.com/warp/loss-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  *sqlite.Store
	Engine *losses.Engine

	log *zap.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler with an engine over the given store.
func NewHandler(store *sqlite.Store, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Store:  store,
		Engine: losses.NewEngine(store, log),
		log:    log.Named("api"),
	}
}

// =============================================================================
// MUNICIPALITY HANDLERS
// =============================================================================

// ListMunicipalities returns the whole registry.
func (h *Handler) ListMunicipalities(w http.ResponseWriter, r *http.Request) {
	list, err := h.Store.ListMunicipalities(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list municipalities", err)
		return
	}

	dtos := make([]MunicipalityDTO, len(list))
	for i, m := range list {
		dtos[i] = MunicipalityDTO{ID: string(m.ID), Name: m.Name, Active: m.Active}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateMunicipality creates or updates a registry entry. Active defaults to true.
func (h *Handler) CreateMunicipality(w http.ResponseWriter, r *http.Request) {
	var req CreateMunicipalityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	req.Name = strings.TrimSpace(req.Name)
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	m := losses.Municipality{ID: losses.MunicipalityID(req.ID), Name: req.Name, Active: true}
	if req.Active != nil {
		m.Active = *req.Active
	}
	if err := h.Store.SaveMunicipality(r.Context(), m); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save municipality", err)
		return
	}

	writeJSON(w, http.StatusCreated, MunicipalityDTO{ID: string(m.ID), Name: m.Name, Active: m.Active})
}

// =============================================================================
// BASE FACT HANDLERS
// =============================================================================

// PutEnergyFact creates or updates the energy delivered of a scope and month.
func (h *Handler) PutEnergyFact(w http.ResponseWriter, r *http.Request) {
	var req EnergyFactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	period, err := losses.NewPeriod(req.Year, req.Month)
	if err != nil {
		writeDomainError(w, "Invalid period", err)
		return
	}
	if req.MWh.IsNegative() {
		writeError(w, http.StatusBadRequest, "mwh must not be negative", nil)
		return
	}
	scope := scopeFromPtr(req.MunicipalityID)
	if err := h.requireScope(r.Context(), scope); err != nil {
		writeDomainError(w, "Failed to save energy fact", err)
		return
	}

	created, err := h.Store.SaveEnergyDelivered(r.Context(), losses.EnergyDeliveredFact{
		Scope:  scope,
		Period: period,
		MWh:    req.MWh,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save energy fact", err)
		return
	}
	writeJSON(w, http.StatusOK, FactSavedResponse{Created: created})
}

// PutBillingFact creates or updates the billing of a scope and month.
func (h *Handler) PutBillingFact(w http.ResponseWriter, r *http.Request) {
	var req BillingFactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	period, err := losses.NewPeriod(req.Year, req.Month)
	if err != nil {
		writeDomainError(w, "Invalid period", err)
		return
	}
	if req.MajorKW.IsNegative() || req.MinorKW.IsNegative() {
		writeError(w, http.StatusBadRequest, "billed kW must not be negative", nil)
		return
	}
	scope := scopeFromPtr(req.MunicipalityID)
	if err := h.requireScope(r.Context(), scope); err != nil {
		writeDomainError(w, "Failed to save billing fact", err)
		return
	}

	created, err := h.Store.SaveBilling(r.Context(), losses.BillingFact{
		Scope:   scope,
		Period:  period,
		MajorKW: req.MajorKW,
		MinorKW: req.MinorKW,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save billing fact", err)
		return
	}
	writeJSON(w, http.StatusOK, FactSavedResponse{Created: created})
}

// =============================================================================
// LOSS HANDLERS
// =============================================================================

// GetAvailability reports whether a month can be computed.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	period, err := periodFromQuery(r)
	if err != nil {
		writeDomainError(w, "Invalid period", err)
		return
	}

	avail, err := h.Engine.CheckAvailability(r.Context(), period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to check availability", err)
		return
	}
	writeJSON(w, http.StatusOK, toAvailabilityDTO(avail))
}

// ComputeLosses computes a month and persists every derived row.
func (h *Handler) ComputeLosses(w http.ResponseWriter, r *http.Request) {
	var req ComputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	period, err := losses.NewPeriod(req.Year, req.Month)
	if err != nil {
		writeDomainError(w, "Invalid period", err)
		return
	}

	summary, report, err := h.Engine.ComputeAndPersist(r.Context(), period, req.UserID)
	if err != nil {
		writeDomainError(w, "Failed to compute losses", err)
		return
	}

	resp := ComputeResponse{
		Summary:   toSummaryDTO(summary),
		Attempted: report.Attempted,
		Saved:     report.Saved,
	}
	for _, s := range report.Failed {
		resp.Failed = append(resp.Failed, s.String())
	}
	switch {
	case summary == nil:
		resp.Message = "insufficient data for " + period.String()
	case report.Complete():
		resp.Message = "all records saved"
	default:
		resp.Message = strconv.Itoa(report.Saved) + " of " + strconv.Itoa(report.Attempted) + " records saved"
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetLosses returns the persisted results of a month, or null if never computed.
func (h *Handler) GetLosses(w http.ResponseWriter, r *http.Request) {
	period, err := periodFromQuery(r)
	if err != nil {
		writeDomainError(w, "Invalid period", err)
		return
	}

	summary, err := h.Engine.PersistedResults(r.Context(), period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load results", err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(summary))
}

// =============================================================================
// PLAN HANDLERS
// =============================================================================

// ListPlans returns every plan of a year, province first.
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	year, err := intQuery(r, "year")
	if err != nil {
		writeDomainError(w, "Invalid year", err)
		return
	}

	plans, err := h.Engine.Plans.ListPlans(r.Context(), year)
	if err != nil {
		writeDomainError(w, "Failed to list plans", err)
		return
	}

	dtos := make([]PlanDTO, len(plans))
	for i, p := range plans {
		dtos[i] = toPlanDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SavePlan creates or updates the plan of a scope and month.
func (h *Handler) SavePlan(w http.ResponseWriter, r *http.Request) {
	var req SavePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	scope := scopeFromPtr(req.MunicipalityID)
	if err := h.requireScope(r.Context(), scope); err != nil {
		writeDomainError(w, "Failed to save plan", err)
		return
	}

	created, err := h.Engine.Plans.Save(r.Context(), losses.SavePlanRequest{
		Scope:      scope,
		Period:     losses.Period{Year: req.Year, Month: req.Month},
		Percentage: req.Percentage,
		Note:       req.Note,
		UserID:     req.UserID,
	})
	if err != nil {
		writeDomainError(w, "Failed to save plan", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, FactSavedResponse{Created: created})
}

// DeletePlan hard-deletes one plan. An absent municipality_id selects the province.
func (h *Handler) DeletePlan(w http.ResponseWriter, r *http.Request) {
	period, err := periodFromQuery(r)
	if err != nil {
		writeDomainError(w, "Invalid period", err)
		return
	}
	scope := losses.ProvinceScope
	if id := r.URL.Query().Get("municipality_id"); id != "" {
		scope = losses.MunicipalityScope(losses.MunicipalityID(id))
	}

	if err := h.Engine.Plans.Delete(r.Context(), scope, period); err != nil {
		writeDomainError(w, "Failed to delete plan", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CopyPlans copies a whole plan year. Declined with 409 when the
// destination year already has plans.
func (h *Handler) CopyPlans(w http.ResponseWriter, r *http.Request) {
	var req CopyPlansRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	n, err := h.Engine.Plans.CopyYear(r.Context(), req.FromYear, req.ToYear, req.UserID)
	if err != nil {
		writeDomainError(w, "Failed to copy plans", err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// GenerateDefaultPlans fills the gaps of a year with one percentage.
func (h *Handler) GenerateDefaultPlans(w http.ResponseWriter, r *http.Request) {
	var req DefaultPlansRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	n, err := h.Engine.Plans.GenerateDefaults(r.Context(), losses.GenerateDefaultsRequest{
		Year:            req.Year,
		Percentage:      req.Percentage,
		IncludeProvince: req.IncludeProvince,
		UserID:          req.UserID,
	})
	if err != nil {
		writeDomainError(w, "Failed to generate plans", err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// ImportPlans writes plans keyed by scope name. Unresolved rows are
// reported in the response and do not fail the request. A storage error
// answers 500 with the counts of the rows written before it.
func (h *Handler) ImportPlans(w http.ResponseWriter, r *http.Request) {
	var req ImportPlansRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rows := make([]losses.PlanImportRow, len(req.Rows))
	for i, row := range req.Rows {
		rows[i] = losses.PlanImportRow{
			ScopeName:  row.Scope,
			Period:     losses.Period{Year: row.Year, Month: row.Month},
			Percentage: row.Percentage,
		}
	}

	report, err := h.Engine.Plans.Import(r.Context(), rows, req.UserID)
	if err != nil {
		// Rows before the failure are already written; report them.
		resp := toImportResponse(report)
		resp.Error = "Failed to import plans"
		resp.Details = err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, http.StatusOK, toImportResponse(report))
}

// =============================================================================
// HELPERS
// =============================================================================

// requireScope checks that a municipal scope names a registered municipality.
func (h *Handler) requireScope(ctx context.Context, scope losses.Scope) error {
	if scope.IsProvince() {
		return nil
	}
	m, err := h.Store.GetMunicipality(ctx, scope.Municipality)
	if err != nil {
		return fmt.Errorf("failed to look up municipality: %w", err)
	}
	if m == nil {
		return fmt.Errorf("%w: %s", losses.ErrMunicipalityNotFound, scope.Municipality)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps loss engine errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, losses.ErrPlanYearNotEmpty):
		writeError(w, http.StatusConflict, message, err)
	case losses.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case losses.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func intQuery(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &losses.InvalidInputError{Field: name, Value: raw, Reason: "not an integer"}
	}
	return v, nil
}

func periodFromQuery(r *http.Request) (losses.Period, error) {
	year, err := intQuery(r, "year")
	if err != nil {
		return losses.Period{}, err
	}
	month, err := intQuery(r, "month")
	if err != nil {
		return losses.Period{}, err
	}
	return losses.NewPeriod(year, month)
}
