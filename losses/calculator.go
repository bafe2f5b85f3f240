/*
calculator.go - Per-municipality loss arithmetic

ALGORITHM (monthly):
  1. billed_major_mwh = billed_major_kw / 1000 (same for minor)
  2. total_sales      = billed_major_mwh + billed_minor_mwh
  3. loss             = energy_delivered_mwh - total_sales   (no floor)
  4. loss_pct         = loss / energy_delivered_mwh * 100, or 0 if delivered is 0

ALGORITHM (year-to-date):
  Same steps using sums over months 1..M. The cumulative plan is the mean
  of the monthly plans that exist for months 1..M; months without a plan
  row are left out of the mean, and no rows at all gives 0.

The calculation never fails. Absent inputs are zero.
*/
package losses

import "github.com/shopspring/decimal"

// CalculationInput carries the base facts for one scope and period.
// Billing values are in kW exactly as stored.
type CalculationInput struct {
	Scope            Scope
	Period           Period
	MunicipalityName string

	EnergyDeliveredMWh decimal.Decimal
	BilledMajorKW      decimal.Decimal
	BilledMinorKW      decimal.Decimal
	PlanPct            decimal.Decimal

	YTDEnergyDeliveredMWh decimal.Decimal
	YTDBilledMajorKW      decimal.Decimal
	YTDBilledMinorKW      decimal.Decimal
	YTDPlanPct            decimal.Decimal
}

// Calculate turns base facts into a MunicipalityLossRecord.
func Calculate(in CalculationInput) MunicipalityLossRecord {
	major := KWToMWh(in.BilledMajorKW)
	minor := KWToMWh(in.BilledMinorKW)
	sales := major.Add(minor)
	loss := in.EnergyDeliveredMWh.Sub(sales)

	ytdSales := KWToMWh(in.YTDBilledMajorKW).Add(KWToMWh(in.YTDBilledMinorKW))
	ytdLoss := in.YTDEnergyDeliveredMWh.Sub(ytdSales)

	return MunicipalityLossRecord{
		Scope:            in.Scope,
		Period:           in.Period,
		MunicipalityName: in.MunicipalityName,
		LossFigures: LossFigures{
			EnergyDelivered: in.EnergyDeliveredMWh,
			BilledMajor:     major,
			BilledMinor:     minor,
			TotalSales:      sales,
			Loss:            loss,
			LossPct:         Percent(loss, in.EnergyDeliveredMWh),
			PlanPct:         in.PlanPct,

			YTDEnergyDelivered: in.YTDEnergyDeliveredMWh,
			YTDTotalSales:      ytdSales,
			YTDLoss:            ytdLoss,
			YTDLossPct:         Percent(ytdLoss, in.YTDEnergyDeliveredMWh),
			YTDPlanPct:         in.YTDPlanPct,
		},
	}
}

// MeanPlan averages the given plan percentages. Zero plans gives zero.
func MeanPlan(plans []PlanFact) decimal.Decimal {
	if len(plans) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, p := range plans {
		sum = sum.Add(p.Percentage)
	}
	return sum.Div(decimal.NewFromInt(int64(len(plans))))
}

// SumEnergy totals energy rows.
func SumEnergy(facts []EnergyDeliveredFact) decimal.Decimal {
	sum := decimal.Zero
	for _, f := range facts {
		sum = sum.Add(f.MWh)
	}
	return sum
}

// SumBilling totals billing rows per channel, in kW.
func SumBilling(facts []BillingFact) (major, minor decimal.Decimal) {
	major, minor = decimal.Zero, decimal.Zero
	for _, f := range facts {
		major = major.Add(f.MajorKW)
		minor = minor.Add(f.MinorKW)
	}
	return major, minor
}
