/*
Package sqlite provides a SQLite-backed implementation of losses.Gateway.

INTERFACES IMPLEMENTED:
  losses.FactReader:        Energy and billing facts
  losses.MunicipalityStore: Municipality registry
  losses.PlanStore:         Plan rows
  losses.ResultStore:       Derived municipal and provincial rows

KEY TABLES:
  municipalities:       Registry (id, name, active)
  energy_delivered:     Energy at bus bar per scope+period, MWh
  billing:              Billed energy per scope+period, kW (major/minor)
  loss_plans:           Planned loss percentage per scope+period
  municipality_losses:  Derived municipal results (history cache)
  provincial_losses:    Derived provincial results (history cache)

SCOPE KEYS:
  The province is a NULL municipality_id. Uniqueness on (scope, year, month)
  uses IFNULL(municipality_id, '') so NULL rows collide with each other, and
  lookups compare with "municipality_id IS ?" so NULL matches NULL only.

DECIMALS:
  Quantities are stored as TEXT and bound/scanned as decimal.Decimal, which
  implements driver.Valuer and sql.Scanner. No float ever touches a value.

WRITES:
  Every keyed write is look-up-then-update-or-insert inside one SQL
  transaction. A write affecting zero rows returns losses.ErrPersistenceFailed.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, like the rest of the storage layer.

USAGE:
  store, err := sqlite.New("./data/losses.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := losses.NewEngine(store, logger)
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/loss-engine/losses"
)

// Store implements losses.Gateway using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	now func() time.Time
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS municipalities (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_municipalities_name
		ON municipalities(name);

	-- Base facts. NULL municipality_id is the province.
	CREATE TABLE IF NOT EXISTS energy_delivered (
		id TEXT PRIMARY KEY,
		municipality_id TEXT,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		mwh TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_energy_scope_period
		ON energy_delivered(IFNULL(municipality_id, ''), year, month);

	CREATE TABLE IF NOT EXISTS billing (
		id TEXT PRIMARY KEY,
		municipality_id TEXT,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		major_kw TEXT NOT NULL,
		minor_kw TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_billing_scope_period
		ON billing(IFNULL(municipality_id, ''), year, month);

	-- Plans (create-or-update, hard delete)
	CREATE TABLE IF NOT EXISTS loss_plans (
		id TEXT PRIMARY KEY,
		municipality_id TEXT,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		percentage TEXT NOT NULL,
		note TEXT,
		user_id TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_plans_scope_period
		ON loss_plans(IFNULL(municipality_id, ''), year, month);
	CREATE INDEX IF NOT EXISTS idx_plans_year
		ON loss_plans(year);

	-- Derived results
	CREATE TABLE IF NOT EXISTS municipality_losses (
		id TEXT PRIMARY KEY,
		municipality_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		energy_delivered TEXT NOT NULL,
		billed_major TEXT NOT NULL,
		billed_minor TEXT NOT NULL,
		total_sales TEXT NOT NULL,
		loss TEXT NOT NULL,
		loss_pct TEXT NOT NULL,
		plan_pct TEXT NOT NULL,
		ytd_energy_delivered TEXT NOT NULL,
		ytd_total_sales TEXT NOT NULL,
		ytd_loss TEXT NOT NULL,
		ytd_loss_pct TEXT NOT NULL,
		ytd_plan_pct TEXT NOT NULL,
		user_id TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(municipality_id, year, month)
	);

	-- Same (scope, year, month) key as the other tables; scope is always the province.
	CREATE TABLE IF NOT EXISTS provincial_losses (
		id TEXT PRIMARY KEY,
		municipality_id TEXT CHECK (municipality_id IS NULL),
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		energy_delivered TEXT NOT NULL,
		billed_major TEXT NOT NULL,
		billed_minor TEXT NOT NULL,
		total_sales TEXT NOT NULL,
		loss TEXT NOT NULL,
		loss_pct TEXT NOT NULL,
		plan_pct TEXT NOT NULL,
		ytd_energy_delivered TEXT NOT NULL,
		ytd_total_sales TEXT NOT NULL,
		ytd_loss TEXT NOT NULL,
		ytd_loss_pct TEXT NOT NULL,
		ytd_plan_pct TEXT NOT NULL,
		user_id TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_provincial_scope_period
		ON provincial_losses(IFNULL(municipality_id, ''), year, month);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// MUNICIPALITY STORE
// =============================================================================

// SaveMunicipality creates or updates a municipality.
func (s *Store) SaveMunicipality(ctx context.Context, m losses.Municipality) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO municipalities (id, name, active, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			active = excluded.active
	`

	_, err := s.db.ExecContext(ctx, query, string(m.ID), m.Name, m.Active, s.timestamp())
	if err != nil {
		return fmt.Errorf("failed to save municipality: %w", err)
	}
	return nil
}

// GetMunicipality retrieves a municipality by ID, or nil.
func (s *Store) GetMunicipality(ctx context.Context, id losses.MunicipalityID) (*losses.Municipality, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var m losses.Municipality
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, active FROM municipalities WHERE id = ?", string(id),
	).Scan(&m.ID, &m.Name, &m.Active)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMunicipalities returns every municipality, active or not, ordered by name.
func (s *Store) ListMunicipalities(ctx context.Context) ([]losses.Municipality, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryMunicipalities(ctx, "SELECT id, name, active FROM municipalities ORDER BY name")
}

// ActiveMunicipalities returns active municipalities ordered by name.
func (s *Store) ActiveMunicipalities(ctx context.Context) ([]losses.Municipality, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryMunicipalities(ctx, "SELECT id, name, active FROM municipalities WHERE active ORDER BY name")
}

func (s *Store) queryMunicipalities(ctx context.Context, query string) ([]losses.Municipality, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query municipalities: %w", err)
	}
	defer rows.Close()

	var out []losses.Municipality
	for rows.Next() {
		var m losses.Municipality
		if err := rows.Scan(&m.ID, &m.Name, &m.Active); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// =============================================================================
// FACT STORE (losses.FactReader + writes for data entry)
// =============================================================================

// SaveEnergyDelivered creates or updates the energy row of a scope+period.
func (s *Store) SaveEnergyDelivered(ctx context.Context, f losses.EnergyDeliveredFact) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.timestamp()
	return s.upsert(ctx, "energy_delivered", f.Scope, f.Period,
		`UPDATE energy_delivered SET mwh = ?, updated_at = ? WHERE id = ?`,
		[]any{f.MWh, now},
		`INSERT INTO energy_delivered (id, municipality_id, year, month, mwh, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		[]any{uuid.NewString(), scopeArg(f.Scope), f.Period.Year, f.Period.Month, f.MWh, now, now},
	)
}

// SaveBilling creates or updates the billing row of a scope+period.
func (s *Store) SaveBilling(ctx context.Context, f losses.BillingFact) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.timestamp()
	return s.upsert(ctx, "billing", f.Scope, f.Period,
		`UPDATE billing SET major_kw = ?, minor_kw = ?, updated_at = ? WHERE id = ?`,
		[]any{f.MajorKW, f.MinorKW, now},
		`INSERT INTO billing (id, municipality_id, year, month, major_kw, minor_kw, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		[]any{uuid.NewString(), scopeArg(f.Scope), f.Period.Year, f.Period.Month, f.MajorKW, f.MinorKW, now, now},
	)
}

// EnergyDelivered returns the energy row for scope+period, or nil.
func (s *Store) EnergyDelivered(ctx context.Context, scope losses.Scope, period losses.Period) (*losses.EnergyDeliveredFact, error) {
	facts, err := s.energyRange(ctx, scope, period.Year, period.Month, period.Month)
	if err != nil || len(facts) == 0 {
		return nil, err
	}
	return &facts[0], nil
}

// EnergyDeliveredYTD returns energy rows for months 1..period.Month.
func (s *Store) EnergyDeliveredYTD(ctx context.Context, scope losses.Scope, period losses.Period) ([]losses.EnergyDeliveredFact, error) {
	return s.energyRange(ctx, scope, period.Year, 1, period.Month)
}

func (s *Store) energyRange(ctx context.Context, scope losses.Scope, year, fromMonth, toMonth int) ([]losses.EnergyDeliveredFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT year, month, mwh FROM energy_delivered
		WHERE municipality_id IS ? AND year = ? AND month >= ? AND month <= ?
		ORDER BY month ASC`,
		scopeArg(scope), year, fromMonth, toMonth)
	if err != nil {
		return nil, fmt.Errorf("failed to query energy: %w", err)
	}
	defer rows.Close()

	var out []losses.EnergyDeliveredFact
	for rows.Next() {
		f := losses.EnergyDeliveredFact{Scope: scope}
		if err := rows.Scan(&f.Period.Year, &f.Period.Month, &f.MWh); err != nil {
			return nil, fmt.Errorf("failed to scan energy: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Billing returns the billing row for scope+period, or nil.
func (s *Store) Billing(ctx context.Context, scope losses.Scope, period losses.Period) (*losses.BillingFact, error) {
	facts, err := s.billingRange(ctx, scope, period.Year, period.Month, period.Month)
	if err != nil || len(facts) == 0 {
		return nil, err
	}
	return &facts[0], nil
}

// BillingYTD returns billing rows for months 1..period.Month.
func (s *Store) BillingYTD(ctx context.Context, scope losses.Scope, period losses.Period) ([]losses.BillingFact, error) {
	return s.billingRange(ctx, scope, period.Year, 1, period.Month)
}

func (s *Store) billingRange(ctx context.Context, scope losses.Scope, year, fromMonth, toMonth int) ([]losses.BillingFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT year, month, major_kw, minor_kw FROM billing
		WHERE municipality_id IS ? AND year = ? AND month >= ? AND month <= ?
		ORDER BY month ASC`,
		scopeArg(scope), year, fromMonth, toMonth)
	if err != nil {
		return nil, fmt.Errorf("failed to query billing: %w", err)
	}
	defer rows.Close()

	var out []losses.BillingFact
	for rows.Next() {
		f := losses.BillingFact{Scope: scope}
		if err := rows.Scan(&f.Period.Year, &f.Period.Month, &f.MajorKW, &f.MinorKW); err != nil {
			return nil, fmt.Errorf("failed to scan billing: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// CountFacts counts energy, billing and plan rows of a period across all scopes.
func (s *Store) CountFacts(ctx context.Context, period losses.Period) (losses.FactCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c losses.FactCounts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM energy_delivered WHERE year = ? AND month = ?),
			(SELECT COUNT(*) FROM billing WHERE year = ? AND month = ?),
			(SELECT COUNT(*) FROM loss_plans WHERE year = ? AND month = ?)`,
		period.Year, period.Month, period.Year, period.Month, period.Year, period.Month,
	).Scan(&c.Energy, &c.Billing, &c.Plans)
	if err != nil {
		return losses.FactCounts{}, fmt.Errorf("failed to count facts: %w", err)
	}
	return c, nil
}

// =============================================================================
// PLAN STORE (losses.PlanStore)
// =============================================================================

const planColumns = `id, municipality_id, year, month, percentage, note, user_id, created_at, updated_at`

// GetPlan returns the plan row for scope+period, or nil.
func (s *Store) GetPlan(ctx context.Context, scope losses.Scope, period losses.Period) (*losses.PlanFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plans, err := s.queryPlans(ctx,
		"SELECT "+planColumns+" FROM loss_plans WHERE municipality_id IS ? AND year = ? AND month = ?",
		scopeArg(scope), period.Year, period.Month)
	if err != nil || len(plans) == 0 {
		return nil, err
	}
	return &plans[0], nil
}

// PlansYTD returns plan rows for months 1..period.Month of one scope.
func (s *Store) PlansYTD(ctx context.Context, scope losses.Scope, period losses.Period) ([]losses.PlanFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryPlans(ctx,
		"SELECT "+planColumns+" FROM loss_plans WHERE municipality_id IS ? AND year = ? AND month <= ? ORDER BY month",
		scopeArg(scope), period.Year, period.Month)
}

// ListPlans returns every plan of a year. Province rows come first.
func (s *Store) ListPlans(ctx context.Context, year int) ([]losses.PlanFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryPlans(ctx,
		"SELECT "+planColumns+" FROM loss_plans WHERE year = ? ORDER BY IFNULL(municipality_id, ''), month",
		year)
}

func (s *Store) queryPlans(ctx context.Context, query string, args ...any) ([]losses.PlanFact, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	var plans []losses.PlanFact
	for rows.Next() {
		var (
			p                    losses.PlanFact
			municipalityID       sql.NullString
			note, userID         sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&p.ID, &municipalityID, &p.Period.Year, &p.Period.Month,
			&p.Percentage, &note, &userID, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		p.Scope = scopeFromNull(municipalityID)
		p.Note = note.String
		p.UserID = userID.String
		p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// SavePlan updates the plan with the same (scope, year, month) or inserts it.
func (s *Store) SavePlan(ctx context.Context, p losses.PlanFact) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.savePlan(ctx, p)
}

func (s *Store) savePlan(ctx context.Context, p losses.PlanFact) (bool, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := s.timestamp()
	return s.upsert(ctx, "loss_plans", p.Scope, p.Period,
		`UPDATE loss_plans SET percentage = ?, note = ?, user_id = ?, updated_at = ? WHERE id = ?`,
		[]any{p.Percentage, nullString(p.Note), nullString(p.UserID), now},
		`INSERT INTO loss_plans (`+planColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		[]any{p.ID, scopeArg(p.Scope), p.Period.Year, p.Period.Month, p.Percentage,
			nullString(p.Note), nullString(p.UserID), now, now},
	)
}

// DeletePlan hard-deletes the plan of scope+period.
func (s *Store) DeletePlan(ctx context.Context, scope losses.Scope, period losses.Period) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM loss_plans WHERE municipality_id IS ? AND year = ? AND month = ?",
		scopeArg(scope), period.Year, period.Month)
	if err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return losses.ErrPlanNotFound
	}
	return nil
}

// CopyPlanYear copies every plan of fromYear into toYear in one transaction.
// Nothing is written when toYear already has a plan.
func (s *Store) CopyPlanYear(ctx context.Context, fromYear, toYear int, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM loss_plans WHERE year = ?", toYear).Scan(&existing); err != nil {
		return 0, fmt.Errorf("failed to count plans: %w", err)
	}
	if existing > 0 {
		return 0, &losses.PlanYearConflictError{FromYear: fromYear, ToYear: toYear, ExistingPlans: existing}
	}

	rows, err := tx.QueryContext(ctx,
		"SELECT municipality_id, month, percentage, note FROM loss_plans WHERE year = ?", fromYear)
	if err != nil {
		return 0, fmt.Errorf("failed to query plans: %w", err)
	}

	type source struct {
		municipalityID sql.NullString
		month          int
		percentage     decimal.Decimal
		note           sql.NullString
	}
	var sources []source
	for rows.Next() {
		var src source
		if err := rows.Scan(&src.municipalityID, &src.month, &src.percentage, &src.note); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan plan: %w", err)
		}
		sources = append(sources, src)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	now := s.timestamp()
	for _, src := range sources {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO loss_plans (`+planColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), src.municipalityID, toYear, src.month, src.percentage,
			src.note, nullString(userID), now, now)
		if err != nil {
			return 0, fmt.Errorf("failed to copy plan: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit plan copy: %w", err)
	}
	return len(sources), nil
}

// =============================================================================
// RESULT STORE (losses.ResultStore)
// =============================================================================

const resultColumns = `energy_delivered, billed_major, billed_minor, total_sales, loss, loss_pct, plan_pct,
	ytd_energy_delivered, ytd_total_sales, ytd_loss, ytd_loss_pct, ytd_plan_pct`

func figureArgs(f losses.LossFigures) []any {
	return []any{
		f.EnergyDelivered, f.BilledMajor, f.BilledMinor, f.TotalSales, f.Loss, f.LossPct, f.PlanPct,
		f.YTDEnergyDelivered, f.YTDTotalSales, f.YTDLoss, f.YTDLossPct, f.YTDPlanPct,
	}
}

func figureDest(f *losses.LossFigures) []any {
	return []any{
		&f.EnergyDelivered, &f.BilledMajor, &f.BilledMinor, &f.TotalSales, &f.Loss, &f.LossPct, &f.PlanPct,
		&f.YTDEnergyDelivered, &f.YTDTotalSales, &f.YTDLoss, &f.YTDLossPct, &f.YTDPlanPct,
	}
}

const figureAssignments = `energy_delivered = ?, billed_major = ?, billed_minor = ?, total_sales = ?,
	loss = ?, loss_pct = ?, plan_pct = ?, ytd_energy_delivered = ?, ytd_total_sales = ?,
	ytd_loss = ?, ytd_loss_pct = ?, ytd_plan_pct = ?, user_id = ?, updated_at = ?`

// SaveMunicipalityResult overwrites or inserts the municipal row of rec's key.
func (s *Store) SaveMunicipalityResult(ctx context.Context, rec losses.MunicipalityLossRecord, userID string) (bool, error) {
	if rec.Scope.IsProvince() {
		return false, fmt.Errorf("municipal result without municipality: %w", losses.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.timestamp()
	figures := figureArgs(rec.LossFigures)

	insertArgs := append([]any{uuid.NewString(), string(rec.Scope.Municipality), rec.Period.Year, rec.Period.Month}, figures...)
	insertArgs = append(insertArgs, nullString(userID), now, now)

	return s.upsert(ctx, "municipality_losses", rec.Scope, rec.Period,
		`UPDATE municipality_losses SET `+figureAssignments+` WHERE id = ?`,
		append(figures, nullString(userID), now),
		`INSERT INTO municipality_losses (id, municipality_id, year, month, `+resultColumns+`, user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		insertArgs,
	)
}

// SaveProvincialResult overwrites or inserts the provincial row of a period.
func (s *Store) SaveProvincialResult(ctx context.Context, summary losses.ProvincialSummary, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.timestamp()
	figures := figureArgs(summary.LossFigures)

	insertArgs := append([]any{uuid.NewString(), scopeArg(losses.ProvinceScope), summary.Period.Year, summary.Period.Month}, figures...)
	insertArgs = append(insertArgs, nullString(userID), now, now)

	return s.upsert(ctx, "provincial_losses", losses.ProvinceScope, summary.Period,
		`UPDATE provincial_losses SET `+figureAssignments+` WHERE id = ?`,
		append(figures, nullString(userID), now),
		`INSERT INTO provincial_losses (id, municipality_id, year, month, `+resultColumns+`, user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		insertArgs,
	)
}

// MunicipalityResults returns the persisted municipal rows of a period,
// ordered by municipality name.
func (s *Store) MunicipalityResults(ctx context.Context, period losses.Period) ([]losses.MunicipalityLossRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.municipality_id, IFNULL(m.name, ''), `+prefixed("r.", resultColumns)+`
		FROM municipality_losses r
		LEFT JOIN municipalities m ON m.id = r.municipality_id
		WHERE r.year = ? AND r.month = ?
		ORDER BY IFNULL(m.name, r.municipality_id)`,
		period.Year, period.Month)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var out []losses.MunicipalityLossRecord
	for rows.Next() {
		rec := losses.MunicipalityLossRecord{Period: period}
		var id string
		dest := append([]any{&id, &rec.MunicipalityName}, figureDest(&rec.LossFigures)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		rec.Scope = losses.MunicipalityScope(losses.MunicipalityID(id))
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ProvincialResult returns the persisted provincial row of a period, or nil.
func (s *Store) ProvincialResult(ctx context.Context, period losses.Period) (*losses.ProvincialSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := losses.ProvincialSummary{Period: period}
	err := s.db.QueryRowContext(ctx,
		"SELECT "+resultColumns+" FROM provincial_losses WHERE municipality_id IS NULL AND year = ? AND month = ?",
		period.Year, period.Month,
	).Scan(figureDest(&summary.LossFigures)...)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query provincial result: %w", err)
	}
	return &summary, nil
}

// =============================================================================
// KEYED UPSERT
// =============================================================================

// upsert looks up the row of (scope, year, month) in table and runs the
// update (with the row id appended to updateArgs) or the insert, in one
// transaction. Returns true when a row was inserted.
func (s *Store) upsert(ctx context.Context, table string, scope losses.Scope, period losses.Period,
	updateSQL string, updateArgs []any, insertSQL string, insertArgs []any) (bool, error) {

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	lookup := "SELECT id FROM " + table + " WHERE municipality_id IS ? AND year = ? AND month = ?"
	var id string
	err = tx.QueryRowContext(ctx, lookup, scopeArg(scope), period.Year, period.Month).Scan(&id)
	created := errors.Is(err, sql.ErrNoRows)
	if err != nil && !created {
		return false, fmt.Errorf("failed to look up %s row: %w", table, err)
	}

	var res sql.Result
	if created {
		res, err = tx.ExecContext(ctx, insertSQL, insertArgs...)
	} else {
		res, err = tx.ExecContext(ctx, updateSQL, append(updateArgs, id)...)
	}
	if err != nil {
		return false, fmt.Errorf("failed to write %s row: %w", table, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, fmt.Errorf("%s %s %s: %w", table, scope, period, losses.ErrPersistenceFailed)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit %s row: %w", table, err)
	}
	return created, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"municipality_losses", "provincial_losses", "loss_plans", "billing", "energy_delivered", "municipalities"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) timestamp() string {
	return s.now().Format(time.RFC3339Nano)
}

func scopeArg(scope losses.Scope) any {
	if scope.IsProvince() {
		return nil
	}
	return string(scope.Municipality)
}

func scopeFromNull(ns sql.NullString) losses.Scope {
	if !ns.Valid {
		return losses.ProvinceScope
	}
	return losses.MunicipalityScope(losses.MunicipalityID(ns.String))
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func prefixed(prefix, columns string) string {
	out := make([]byte, 0, len(columns)+64)
	start := true
	for i := 0; i < len(columns); i++ {
		c := columns[i]
		if start && c != ' ' && c != '\t' && c != '\n' {
			out = append(out, prefix...)
			start = false
		}
		out = append(out, c)
		if c == ',' {
			start = true
		}
	}
	return string(out)
}

var _ losses.Gateway = (*Store)(nil)
