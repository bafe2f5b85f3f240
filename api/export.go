package api

import (
	"encoding/csv"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/warp/loss-engine/losses"
)

var exportHeader = []string{
	"scope", "name",
	"energy_delivered_mwh", "billed_major_mwh", "billed_minor_mwh", "total_sales_mwh",
	"loss_mwh", "loss_pct", "plan_pct", "deviation_pct",
	"ytd_energy_delivered_mwh", "ytd_total_sales_mwh", "ytd_loss_mwh",
	"ytd_loss_pct", "ytd_plan_pct", "ytd_deviation_pct",
}

// ExportLosses writes the persisted results of a month as CSV: one row per
// municipality followed by the provincial row. Nothing is recomputed.
func (h *Handler) ExportLosses(w http.ResponseWriter, r *http.Request) {
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
	if summary == nil {
		writeError(w, http.StatusNotFound, "No results for "+period.String(), nil)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="losses-%s.csv"`, period))

	cw := csv.NewWriter(w)
	cw.Write(exportHeader)
	for _, rec := range summary.Municipalities {
		cw.Write(exportRow(string(rec.Scope.Municipality), rec.MunicipalityName, rec.LossFigures))
	}
	cw.Write(exportRow("province", "", summary.LossFigures))
	cw.Flush()

	if err := cw.Error(); err != nil {
		h.log.Error("csv export failed", zap.Stringer("period", period), zap.Error(err))
	}
}

func exportRow(scope, name string, f losses.LossFigures) []string {
	return []string{
		scope, name,
		f.EnergyDelivered.StringFixed(3), f.BilledMajor.StringFixed(3), f.BilledMinor.StringFixed(3),
		f.TotalSales.StringFixed(3), f.Loss.StringFixed(3),
		f.LossPct.StringFixed(2), f.PlanPct.StringFixed(2), f.Deviation().StringFixed(2),
		f.YTDEnergyDelivered.StringFixed(3), f.YTDTotalSales.StringFixed(3), f.YTDLoss.StringFixed(3),
		f.YTDLossPct.StringFixed(2), f.YTDPlanPct.StringFixed(2), f.YTDDeviation().StringFixed(2),
	}
}
