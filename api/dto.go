/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the loss
  engine's types from the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

DECIMALS:
  Energy and percentage values are shopspring decimals and serialize as JSON
  strings ("500.25"), so clients never see float rounding.

SCOPES:
  A null or empty municipality_id means the provincial scope.

VALIDATION:
  Validation is done in handlers and the losses package, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
  - losses/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/loss-engine/losses"
)

// =============================================================================
// MUNICIPALITIES
// =============================================================================

// MunicipalityDTO represents a registry entry.
type MunicipalityDTO struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// CreateMunicipalityRequest creates or updates a registry entry.
type CreateMunicipalityRequest struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active *bool  `json:"active,omitempty"`
}

// =============================================================================
// BASE FACTS
// =============================================================================

// EnergyFactRequest records energy delivered in MWh.
type EnergyFactRequest struct {
	MunicipalityID *string         `json:"municipality_id"`
	Year           int             `json:"year"`
	Month          int             `json:"month"`
	MWh            decimal.Decimal `json:"mwh"`
}

// BillingFactRequest records both billing channels in kW.
type BillingFactRequest struct {
	MunicipalityID *string         `json:"municipality_id"`
	Year           int             `json:"year"`
	Month          int             `json:"month"`
	MajorKW        decimal.Decimal `json:"major_kw"`
	MinorKW        decimal.Decimal `json:"minor_kw"`
}

// FactSavedResponse tells the client whether the row was new.
type FactSavedResponse struct {
	Created bool `json:"created"`
}

// =============================================================================
// AVAILABILITY
// =============================================================================

// AvailabilityDTO reports base-fact coverage for a period.
type AvailabilityDTO struct {
	Year                int  `json:"year"`
	Month               int  `json:"month"`
	EnergyPresent       bool `json:"energy_present"`
	EnergyCount         int  `json:"energy_count"`
	BillingPresent      bool `json:"billing_present"`
	BillingCount        int  `json:"billing_count"`
	PlanPresent         bool `json:"plan_present"`
	PlanCount           int  `json:"plan_count"`
	ComputationPossible bool `json:"computation_possible"`
}

func toAvailabilityDTO(a losses.Availability) AvailabilityDTO {
	return AvailabilityDTO{
		Year:                a.Period.Year,
		Month:               a.Period.Month,
		EnergyPresent:       a.EnergyPresent,
		EnergyCount:         a.EnergyCount,
		BillingPresent:      a.BillingPresent,
		BillingCount:        a.BillingCount,
		PlanPresent:         a.PlanPresent,
		PlanCount:           a.PlanCount,
		ComputationPossible: a.ComputationPossible,
	}
}

// =============================================================================
// LOSS RESULTS
// =============================================================================

// LossFiguresDTO carries monthly and cumulative figures. Energy in MWh.
type LossFiguresDTO struct {
	EnergyDelivered decimal.Decimal `json:"energy_delivered_mwh"`
	BilledMajor     decimal.Decimal `json:"billed_major_mwh"`
	BilledMinor     decimal.Decimal `json:"billed_minor_mwh"`
	TotalSales      decimal.Decimal `json:"total_sales_mwh"`
	Loss            decimal.Decimal `json:"loss_mwh"`
	LossPct         decimal.Decimal `json:"loss_pct"`
	PlanPct         decimal.Decimal `json:"plan_pct"`
	Deviation       decimal.Decimal `json:"deviation_pct"`

	YTDEnergyDelivered decimal.Decimal `json:"ytd_energy_delivered_mwh"`
	YTDTotalSales      decimal.Decimal `json:"ytd_total_sales_mwh"`
	YTDLoss            decimal.Decimal `json:"ytd_loss_mwh"`
	YTDLossPct         decimal.Decimal `json:"ytd_loss_pct"`
	YTDPlanPct         decimal.Decimal `json:"ytd_plan_pct"`
	YTDDeviation       decimal.Decimal `json:"ytd_deviation_pct"`
}

func toLossFiguresDTO(f losses.LossFigures) LossFiguresDTO {
	return LossFiguresDTO{
		EnergyDelivered:    f.EnergyDelivered,
		BilledMajor:        f.BilledMajor,
		BilledMinor:        f.BilledMinor,
		TotalSales:         f.TotalSales,
		Loss:               f.Loss,
		LossPct:            f.LossPct,
		PlanPct:            f.PlanPct,
		Deviation:          f.Deviation(),
		YTDEnergyDelivered: f.YTDEnergyDelivered,
		YTDTotalSales:      f.YTDTotalSales,
		YTDLoss:            f.YTDLoss,
		YTDLossPct:         f.YTDLossPct,
		YTDPlanPct:         f.YTDPlanPct,
		YTDDeviation:       f.YTDDeviation(),
	}
}

// MunicipalityLossDTO is one municipal row.
type MunicipalityLossDTO struct {
	MunicipalityID   string `json:"municipality_id"`
	MunicipalityName string `json:"municipality_name"`
	LossFiguresDTO
}

// ProvincialSummaryDTO is the provincial row plus its municipal rows.
type ProvincialSummaryDTO struct {
	Year           int                   `json:"year"`
	Month          int                   `json:"month"`
	Province       LossFiguresDTO        `json:"province"`
	Municipalities []MunicipalityLossDTO `json:"municipalities"`
}

func toSummaryDTO(s *losses.ProvincialSummary) *ProvincialSummaryDTO {
	if s == nil {
		return nil
	}
	dto := &ProvincialSummaryDTO{
		Year:           s.Period.Year,
		Month:          s.Period.Month,
		Province:       toLossFiguresDTO(s.LossFigures),
		Municipalities: make([]MunicipalityLossDTO, len(s.Municipalities)),
	}
	for i, rec := range s.Municipalities {
		dto.Municipalities[i] = MunicipalityLossDTO{
			MunicipalityID:   string(rec.Scope.Municipality),
			MunicipalityName: rec.MunicipalityName,
			LossFiguresDTO:   toLossFiguresDTO(rec.LossFigures),
		}
	}
	return dto
}

// ComputeRequest triggers compute-and-persist for one period.
type ComputeRequest struct {
	Year   int    `json:"year"`
	Month  int    `json:"month"`
	UserID string `json:"user_id"`
}

// ComputeResponse reports the outcome of a run.
//
// A null summary means insufficient data for the period. Saved < Attempted
// means some rows failed to persist; the summary is still the computed one.
type ComputeResponse struct {
	Summary   *ProvincialSummaryDTO `json:"summary"`
	Message   string                `json:"message"`
	Attempted int                   `json:"attempted"`
	Saved     int                   `json:"saved"`
	Failed    []string              `json:"failed,omitempty"`
}

// =============================================================================
// PLANS
// =============================================================================

// PlanDTO is one planned loss percentage.
type PlanDTO struct {
	ID             string          `json:"id"`
	MunicipalityID *string         `json:"municipality_id"`
	Year           int             `json:"year"`
	Month          int             `json:"month"`
	Percentage     decimal.Decimal `json:"percentage"`
	Note           string          `json:"note,omitempty"`
	UserID         string          `json:"user_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func toPlanDTO(p losses.PlanFact) PlanDTO {
	return PlanDTO{
		ID:             p.ID,
		MunicipalityID: scopeToPtr(p.Scope),
		Year:           p.Period.Year,
		Month:          p.Period.Month,
		Percentage:     p.Percentage,
		Note:           p.Note,
		UserID:         p.UserID,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

// SavePlanRequest creates or updates one plan.
type SavePlanRequest struct {
	MunicipalityID *string         `json:"municipality_id"`
	Year           int             `json:"year"`
	Month          int             `json:"month"`
	Percentage     decimal.Decimal `json:"percentage"`
	Note           string          `json:"note"`
	UserID         string          `json:"user_id"`
}

// CopyPlansRequest duplicates every plan of one year into another.
type CopyPlansRequest struct {
	FromYear int    `json:"from_year"`
	ToYear   int    `json:"to_year"`
	UserID   string `json:"user_id"`
}

// DefaultPlansRequest fills a year with one percentage.
type DefaultPlansRequest struct {
	Year            int             `json:"year"`
	Percentage      decimal.Decimal `json:"percentage"`
	IncludeProvince bool            `json:"include_province"`
	UserID          string          `json:"user_id"`
}

// ImportPlansRequest loads plans keyed by scope name.
type ImportPlansRequest struct {
	UserID string          `json:"user_id"`
	Rows   []PlanImportRow `json:"rows"`
}

// PlanImportRow names its scope the way a spreadsheet would.
type PlanImportRow struct {
	Scope      string          `json:"scope"`
	Year       int             `json:"year"`
	Month      int             `json:"month"`
	Percentage decimal.Decimal `json:"percentage"`
}

// ImportPlansResponse summarizes an import. Rejected rows were not written.
// Error and Details are set when storage failed partway; the counts then
// cover the rows written before the failure.
type ImportPlansResponse struct {
	Created  int                 `json:"created"`
	Updated  int                 `json:"updated"`
	Rejected []RejectedImportRow `json:"rejected"`
	Error    string              `json:"error,omitempty"`
	Details  string              `json:"details,omitempty"`
}

func toImportResponse(report losses.ImportReport) ImportPlansResponse {
	resp := ImportPlansResponse{
		Created:  report.Created,
		Updated:  report.Updated,
		Rejected: make([]RejectedImportRow, len(report.Rejected)),
	}
	for i, rej := range report.Rejected {
		resp.Rejected[i] = RejectedImportRow{Row: rej.Row, Scope: rej.Scope, Reason: rej.Reason}
	}
	return resp
}

// RejectedImportRow explains why a row was skipped.
type RejectedImportRow struct {
	Row    int    `json:"row"`
	Scope  string `json:"scope"`
	Reason string `json:"reason"`
}

// CountResponse reports how many rows a bulk operation wrote.
type CountResponse struct {
	Count int `json:"count"`
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// SCOPE HELPERS
// =============================================================================

func scopeFromPtr(id *string) losses.Scope {
	if id == nil {
		return losses.ProvinceScope
	}
	return losses.MunicipalityScope(losses.MunicipalityID(*id))
}

func scopeToPtr(s losses.Scope) *string {
	if s.IsProvince() {
		return nil
	}
	id := string(s.Municipality)
	return &id
}
