/*
plan.go - Plan resolver and plan maintenance

PURPOSE:
  Resolves the planned loss percentage for a scope and period, and owns
  every plan write: single create-or-update, hard delete, year copy and
  default generation.

LOOKUP:
  PlanFor            -> plan row percentage, or (zero, false) when absent
  CumulativePlanFor  -> mean of existing monthly plans for months 1..M, or 0

SCOPE MATCHING:
  The province is its own scope value (NULL municipality). A province plan
  never matches a municipality plan and vice versa.

BULK OPERATIONS:
  CopyYear          all-or-nothing: declined when the destination year has
                    any plan row, nothing is written in that case
  GenerateDefaults  one percentage for every month x active municipality,
                    plus the province when requested; months that already
                    have a plan keep it
*/
package losses

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PlanResolver reads and writes plans.
type PlanResolver struct {
	plans          PlanStore
	municipalities MunicipalityStore
	log            *zap.Logger
}

// NewPlanResolver creates a resolver over the given stores.
func NewPlanResolver(plans PlanStore, municipalities MunicipalityStore, log *zap.Logger) *PlanResolver {
	return &PlanResolver{plans: plans, municipalities: municipalities, log: log.Named("plans")}
}

// PlanFor returns the plan percentage for scope+period. ok is false when
// no plan row exists.
func (r *PlanResolver) PlanFor(ctx context.Context, scope Scope, period Period) (pct decimal.Decimal, ok bool, err error) {
	plan, err := r.plans.GetPlan(ctx, scope, period)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("load plan %s %s: %w", scope, period, err)
	}
	if plan == nil {
		return decimal.Zero, false, nil
	}
	return plan.Percentage, true, nil
}

// CumulativePlanFor returns the mean of the monthly plans for months
// 1..period.Month, skipping months without a plan.
func (r *PlanResolver) CumulativePlanFor(ctx context.Context, scope Scope, period Period) (decimal.Decimal, error) {
	plans, err := r.plans.PlansYTD(ctx, scope, period)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load cumulative plans %s %s: %w", scope, period, err)
	}
	return MeanPlan(plans), nil
}

// ListPlans returns every plan of a year.
func (r *PlanResolver) ListPlans(ctx context.Context, year int) ([]PlanFact, error) {
	if err := ValidateYear(year); err != nil {
		return nil, err
	}
	return r.plans.ListPlans(ctx, year)
}

// SavePlanRequest is a single create-or-update.
type SavePlanRequest struct {
	Scope      Scope
	Period     Period
	Percentage decimal.Decimal
	Note       string
	UserID     string
}

// Save creates the plan or updates the existing row for the same
// (scope, year, month). Returns true when a row was created.
func (r *PlanResolver) Save(ctx context.Context, req SavePlanRequest) (bool, error) {
	if err := req.Period.Validate(); err != nil {
		return false, err
	}
	if err := ValidatePercentage(req.Percentage); err != nil {
		return false, err
	}

	created, err := r.plans.SavePlan(ctx, PlanFact{
		ID:         uuid.NewString(),
		Scope:      req.Scope,
		Period:     req.Period,
		Percentage: req.Percentage,
		Note:       strings.TrimSpace(req.Note),
		UserID:     req.UserID,
	})
	if err != nil {
		return false, fmt.Errorf("save plan %s %s: %w", req.Scope, req.Period, err)
	}

	r.log.Debug("plan saved",
		zap.Stringer("scope", req.Scope),
		zap.Stringer("period", req.Period),
		zap.Stringer("percentage", req.Percentage),
		zap.Bool("created", created))
	return created, nil
}

// Delete hard-deletes a plan row.
func (r *PlanResolver) Delete(ctx context.Context, scope Scope, period Period) error {
	if err := period.Validate(); err != nil {
		return err
	}
	return r.plans.DeletePlan(ctx, scope, period)
}

// CopyYear copies every plan of fromYear into toYear. The copy is declined
// as a whole when toYear already has a plan.
func (r *PlanResolver) CopyYear(ctx context.Context, fromYear, toYear int, userID string) (int, error) {
	if err := ValidateYear(fromYear); err != nil {
		return 0, err
	}
	if err := ValidateYear(toYear); err != nil {
		return 0, err
	}
	if fromYear == toYear {
		return 0, &InvalidInputError{Field: "to_year", Value: fmt.Sprint(toYear), Reason: "must differ from from_year"}
	}

	n, err := r.plans.CopyPlanYear(ctx, fromYear, toYear, userID)
	if err != nil {
		r.log.Warn("plan year copy declined",
			zap.Int("from_year", fromYear), zap.Int("to_year", toYear), zap.Error(err))
		return 0, err
	}

	r.log.Info("plan year copied",
		zap.Int("from_year", fromYear), zap.Int("to_year", toYear), zap.Int("plans", n))
	return n, nil
}

// GenerateDefaultsRequest fills a year with a single percentage.
type GenerateDefaultsRequest struct {
	Year            int
	Percentage      decimal.Decimal
	IncludeProvince bool
	UserID          string
}

// GenerateDefaults creates a plan for every month of the year for each
// active municipality (and the province if requested). Existing plans are
// left untouched. Returns the number of rows created.
func (r *PlanResolver) GenerateDefaults(ctx context.Context, req GenerateDefaultsRequest) (int, error) {
	if err := ValidateYear(req.Year); err != nil {
		return 0, err
	}
	if err := ValidatePercentage(req.Percentage); err != nil {
		return 0, err
	}

	municipalities, err := r.municipalities.ActiveMunicipalities(ctx)
	if err != nil {
		return 0, fmt.Errorf("list municipalities: %w", err)
	}

	scopes := make([]Scope, 0, len(municipalities)+1)
	for _, m := range municipalities {
		scopes = append(scopes, MunicipalityScope(m.ID))
	}
	if req.IncludeProvince {
		scopes = append(scopes, ProvinceScope)
	}

	created := 0
	for _, scope := range scopes {
		for month := 1; month <= 12; month++ {
			period := Period{Year: req.Year, Month: month}
			existing, err := r.plans.GetPlan(ctx, scope, period)
			if err != nil {
				return created, fmt.Errorf("load plan %s %s: %w", scope, period, err)
			}
			if existing != nil {
				continue
			}
			if _, err := r.plans.SavePlan(ctx, PlanFact{
				ID:         uuid.NewString(),
				Scope:      scope,
				Period:     period,
				Percentage: req.Percentage,
				Note:       "default plan",
				UserID:     req.UserID,
			}); err != nil {
				return created, fmt.Errorf("save default plan %s %s: %w", scope, period, err)
			}
			created++
		}
	}

	r.log.Info("default plans generated",
		zap.Int("year", req.Year), zap.Int("scopes", len(scopes)), zap.Int("created", created))
	return created, nil
}
