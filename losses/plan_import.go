package losses

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// provinceNames are the scope names that select the provincial plan.
var provinceNames = []string{"province", "provincia"}

// PlanImportRow is one spreadsheet line: a scope by name plus a plan.
type PlanImportRow struct {
	ScopeName  string
	Period     Period
	Percentage decimal.Decimal
}

// RejectedRow is an import line that was not written. Row is 1-based.
type RejectedRow struct {
	Row    int
	Scope  string
	Reason string
}

// ImportReport summarizes a plan import.
type ImportReport struct {
	Created  int
	Updated  int
	Rejected []RejectedRow
}

// ResolveScope maps a scope name to a scope. Names match active
// municipalities case-insensitively: an exact match wins, otherwise a single
// substring match is accepted. Several substring matches are ambiguous.
func ResolveScope(name string, municipalities []Municipality) (Scope, error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return Scope{}, &InvalidInputError{Field: "scope", Value: name, Reason: "empty name"}
	}
	for _, p := range provinceNames {
		if needle == p {
			return ProvinceScope, nil
		}
	}

	for _, m := range municipalities {
		if strings.ToLower(m.Name) == needle || strings.ToLower(string(m.ID)) == needle {
			return MunicipalityScope(m.ID), nil
		}
	}

	var matches []Municipality
	for _, m := range municipalities {
		if strings.Contains(strings.ToLower(m.Name), needle) {
			matches = append(matches, m)
		}
	}
	switch len(matches) {
	case 1:
		return MunicipalityScope(matches[0].ID), nil
	case 0:
		return Scope{}, fmt.Errorf("%w: no municipality named %q", ErrMunicipalityNotFound, name)
	default:
		return Scope{}, &InvalidInputError{Field: "scope", Value: name,
			Reason: fmt.Sprintf("matches %d municipalities", len(matches))}
	}
}

// Import writes each row through Save. Rows that cannot be resolved or
// validated are reported and skipped; storage errors abort the import.
func (r *PlanResolver) Import(ctx context.Context, rows []PlanImportRow, userID string) (ImportReport, error) {
	municipalities, err := r.municipalities.ActiveMunicipalities(ctx)
	if err != nil {
		return ImportReport{}, fmt.Errorf("list municipalities: %w", err)
	}

	var report ImportReport
	for i, row := range rows {
		reject := func(err error) {
			report.Rejected = append(report.Rejected, RejectedRow{Row: i + 1, Scope: row.ScopeName, Reason: err.Error()})
		}

		scope, err := ResolveScope(row.ScopeName, municipalities)
		if err != nil {
			reject(err)
			continue
		}

		created, err := r.Save(ctx, SavePlanRequest{
			Scope:      scope,
			Period:     row.Period,
			Percentage: row.Percentage,
			Note:       "imported",
			UserID:     userID,
		})
		if IsClientError(err) {
			reject(err)
			continue
		}
		if err != nil {
			r.log.Error("plan import stopped",
				zap.Int("row", i+1), zap.Int("created", report.Created), zap.Int("updated", report.Updated), zap.Error(err))
			return report, fmt.Errorf("import row %d: %w", i+1, err)
		}
		if created {
			report.Created++
		} else {
			report.Updated++
		}
	}

	r.log.Info("plans imported",
		zap.Int("rows", len(rows)),
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("rejected", len(report.Rejected)))
	return report, nil
}
