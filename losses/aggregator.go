/*
aggregator.go - Provincial aggregation

PURPOSE:
  Runs the calculator once per active municipality and folds the results
  into a ProvincialSummary. This is the ONLY place provincial percentages
  are computed.

FOLD RULES:
  Summed:      energy delivered, billed major, billed minor, total sales,
               loss, YTD energy delivered, YTD total sales, YTD loss
  Recomputed:  loss % = sum(loss) / sum(energy delivered) * 100
               YTD loss % likewise, with the same zero guard
  Resolved:    monthly and YTD plan % come from the Plan Resolver using the
               province scope. Municipal plans are never averaged.

EMPTY PROVINCE:
  No active municipalities returns (nil, nil). Callers treat it exactly like
  insufficient data.

CANCELLATION:
  The context is checked before each municipality. A cancelled run finishes
  the current municipality and returns the context error with no summary.
*/
package losses

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Aggregator computes provincial summaries.
type Aggregator struct {
	facts          FactReader
	municipalities MunicipalityStore
	plans          *PlanResolver
	log            *zap.Logger
}

// NewAggregator creates an aggregator.
func NewAggregator(facts FactReader, municipalities MunicipalityStore, plans *PlanResolver, log *zap.Logger) *Aggregator {
	return &Aggregator{
		facts:          facts,
		municipalities: municipalities,
		plans:          plans,
		log:            log.Named("aggregator"),
	}
}

// Compute returns the provincial summary for a period, or nil when there is
// no active municipality.
func (a *Aggregator) Compute(ctx context.Context, period Period) (*ProvincialSummary, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}

	municipalities, err := a.municipalities.ActiveMunicipalities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list municipalities: %w", err)
	}
	if len(municipalities) == 0 {
		a.log.Info("no active municipalities", zap.Stringer("period", period))
		return nil, nil
	}

	records := make([]MunicipalityLossRecord, 0, len(municipalities))
	for _, m := range municipalities {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := a.ComputeMunicipality(ctx, m, period)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	planPct, _, err := a.plans.PlanFor(ctx, ProvinceScope, period)
	if err != nil {
		return nil, err
	}
	ytdPlanPct, err := a.plans.CumulativePlanFor(ctx, ProvinceScope, period)
	if err != nil {
		return nil, err
	}

	return Fold(period, records, planPct, ytdPlanPct), nil
}

// ComputeMunicipality loads the base facts of one municipality and runs the calculator.
func (a *Aggregator) ComputeMunicipality(ctx context.Context, m Municipality, period Period) (MunicipalityLossRecord, error) {
	scope := MunicipalityScope(m.ID)
	in := CalculationInput{
		Scope:            scope,
		Period:           period,
		MunicipalityName: m.Name,
	}

	energy, err := a.facts.EnergyDelivered(ctx, scope, period)
	if err != nil {
		return MunicipalityLossRecord{}, fmt.Errorf("load energy %s %s: %w", scope, period, err)
	}
	if energy != nil {
		in.EnergyDeliveredMWh = energy.MWh
	}

	billing, err := a.facts.Billing(ctx, scope, period)
	if err != nil {
		return MunicipalityLossRecord{}, fmt.Errorf("load billing %s %s: %w", scope, period, err)
	}
	if billing != nil {
		in.BilledMajorKW = billing.MajorKW
		in.BilledMinorKW = billing.MinorKW
	}

	if in.PlanPct, _, err = a.plans.PlanFor(ctx, scope, period); err != nil {
		return MunicipalityLossRecord{}, err
	}

	ytdEnergy, err := a.facts.EnergyDeliveredYTD(ctx, scope, period)
	if err != nil {
		return MunicipalityLossRecord{}, fmt.Errorf("load cumulative energy %s %s: %w", scope, period, err)
	}
	in.YTDEnergyDeliveredMWh = SumEnergy(ytdEnergy)

	ytdBilling, err := a.facts.BillingYTD(ctx, scope, period)
	if err != nil {
		return MunicipalityLossRecord{}, fmt.Errorf("load cumulative billing %s %s: %w", scope, period, err)
	}
	in.YTDBilledMajorKW, in.YTDBilledMinorKW = SumBilling(ytdBilling)

	if in.YTDPlanPct, err = a.plans.CumulativePlanFor(ctx, scope, period); err != nil {
		return MunicipalityLossRecord{}, err
	}

	return Calculate(in), nil
}

// Fold sums municipal records into a provincial summary and recomputes the
// percentages from the sums. Returns nil for an empty slice.
func Fold(period Period, records []MunicipalityLossRecord, planPct, ytdPlanPct decimal.Decimal) *ProvincialSummary {
	if len(records) == 0 {
		return nil
	}

	var f LossFigures
	f.EnergyDelivered = decimal.Zero
	f.BilledMajor = decimal.Zero
	f.BilledMinor = decimal.Zero
	f.TotalSales = decimal.Zero
	f.Loss = decimal.Zero
	f.YTDEnergyDelivered = decimal.Zero
	f.YTDTotalSales = decimal.Zero
	f.YTDLoss = decimal.Zero

	for _, r := range records {
		f.EnergyDelivered = f.EnergyDelivered.Add(r.EnergyDelivered)
		f.BilledMajor = f.BilledMajor.Add(r.BilledMajor)
		f.BilledMinor = f.BilledMinor.Add(r.BilledMinor)
		f.TotalSales = f.TotalSales.Add(r.TotalSales)
		f.Loss = f.Loss.Add(r.Loss)
		f.YTDEnergyDelivered = f.YTDEnergyDelivered.Add(r.YTDEnergyDelivered)
		f.YTDTotalSales = f.YTDTotalSales.Add(r.YTDTotalSales)
		f.YTDLoss = f.YTDLoss.Add(r.YTDLoss)
	}

	f.LossPct = Percent(f.Loss, f.EnergyDelivered)
	f.YTDLossPct = Percent(f.YTDLoss, f.YTDEnergyDelivered)
	f.PlanPct = planPct
	f.YTDPlanPct = ytdPlanPct

	municipalities := make([]MunicipalityLossRecord, len(records))
	copy(municipalities, records)

	return &ProvincialSummary{
		Period:         period,
		LossFigures:    f,
		Municipalities: municipalities,
	}
}
