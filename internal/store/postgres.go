// Package store provides the persistence backends of the import engine:
// a PostgreSQL store used by the server and CLI, and an in-memory store
// used for dry runs and tests.
package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/painelportos/ingest/internal/domain"
	"github.com/painelportos/ingest/internal/engine"
)

//go:embed schema.sql
var schemaSQL string

// lookupTables maps a lookup kind to its table. Kinds outside this map
// are programming errors, not data errors.
var lookupTables = map[domain.LookupKind]string{
	domain.LookupPortZone:    "port_zones",
	domain.LookupServiceType: "service_types",
	domain.LookupRiskType:    "risk_types",
	domain.LookupSituation:   "situations",
}

// Postgres implements engine.Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema applies the embedded schema. All statements are
// idempotent, so running it on every start is safe.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// WithTx runs fn inside a single transaction, committing only when fn
// returns nil.
func (s *Postgres) WithTx(ctx context.Context, fn func(tx engine.Tx) error) error {
	pgtx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer pgtx.Rollback(ctx)

	if err := fn(&pgTx{tx: pgtx}); err != nil {
		return err
	}

	if err := pgtx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// pgTx implements engine.Tx on one pgx transaction. Upserts use
// INSERT ... ON CONFLICT DO UPDATE RETURNING id, (xmax = 0): xmax is zero
// only for rows created by the current transaction's insert, which is how
// created is told apart from updated.
type pgTx struct {
	tx pgx.Tx
}

// setClause builds the DO UPDATE SET list: the always columns plus every
// updatable column the workbook carried. Columns absent from this import
// keep their stored values. updatable is a fixed slice so the generated
// SQL is deterministic.
func setClause(cols engine.FieldSet, updatable []string, always ...string) string {
	parts := make([]string, 0, len(always)+len(updatable))
	for _, c := range always {
		parts = append(parts, c+" = EXCLUDED."+c)
	}
	for _, c := range updatable {
		if cols[c] {
			parts = append(parts, c+" = EXCLUDED."+c)
		}
	}
	return strings.Join(parts, ", ")
}

func (t *pgTx) FindLookup(ctx context.Context, kind domain.LookupKind, key string) (int64, bool, error) {
	table, ok := lookupTables[kind]
	if !ok {
		return 0, false, fmt.Errorf("unknown lookup kind: %s", kind)
	}

	var id int64
	err := t.tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE name_key = $1`, table), key).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (t *pgTx) CreateLookup(ctx context.Context, kind domain.LookupKind, name, extra string) (int64, error) {
	key := engine.NormalizeKey(name)

	if kind == domain.LookupPortZone {
		var id int64
		err := t.tx.QueryRow(ctx, `
			INSERT INTO port_zones (name, state_code, name_key)
			VALUES ($1, $2, $3)
			ON CONFLICT (name_key) DO UPDATE SET state_code = EXCLUDED.state_code
			RETURNING id`,
			name, extra, key).Scan(&id)
		return id, err
	}

	table, ok := lookupTables[kind]
	if !ok {
		return 0, fmt.Errorf("unknown lookup kind: %s", kind)
	}

	var id int64
	err := t.tx.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO %s (name, name_key)
		VALUES ($1, $2)
		ON CONFLICT (name_key) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, table),
		name, key).Scan(&id)
	return id, err
}

var processUpdatable = []string{"protocol_date", "license", "situation_id"}

func (t *pgTx) UpsertProcess(ctx context.Context, p *domain.Process, cols engine.FieldSet) (int64, bool, error) {
	var created bool
	err := t.tx.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO processes (number, number_key, protocol_date, license, situation_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (number_key) DO UPDATE SET %s
		RETURNING id, (xmax = 0)`,
		setClause(cols, processUpdatable, "number")),
		p.Number, engine.NormalizeKey(p.Number), p.ProtocolDate, p.License, p.SituationID).
		Scan(&p.ID, &created)
	return p.ID, created, err
}

func (t *pgTx) UpsertGoal(ctx context.Context, g *domain.Goal) (int64, bool, error) {
	var created bool
	err := t.tx.QueryRow(ctx, `
		INSERT INTO goals (process_id, year)
		VALUES ($1, $2)
		ON CONFLICT (process_id, year) DO UPDATE SET year = EXCLUDED.year
		RETURNING id, (xmax = 0)`,
		g.ProcessID, g.Year).
		Scan(&g.ID, &created)
	return g.ID, created, err
}

var indicatorUpdatable = []string{
	"financial_planned", "financial_executed", "km_planned", "km_executed", "extension_km",
}

func (t *pgTx) UpsertIndicator(ctx context.Context, ind *domain.Indicator, cols engine.FieldSet) (int64, bool, error) {
	var created bool
	err := t.tx.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO indicators (goal_id, intervention_type, intervention_key,
			financial_planned, financial_executed, km_planned, km_executed, extension_km)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (goal_id, intervention_key) DO UPDATE SET %s
		RETURNING id, (xmax = 0)`,
		setClause(cols, indicatorUpdatable, "intervention_type")),
		ind.GoalID, ind.InterventionType, engine.NormalizeKey(ind.InterventionType),
		ind.FinancialPlanned, ind.FinancialExecuted, ind.KmPlanned, ind.KmExecuted, ind.ExtensionKm).
		Scan(&ind.ID, &created)
	return ind.ID, created, err
}

func (t *pgTx) FindConcession(ctx context.Context, objectKey string) (*domain.Concession, error) {
	var c domain.Concession
	err := t.tx.QueryRow(ctx, `
		SELECT id, port_zone_id, object, type, capex_total, signing_date,
		       description, coord_e, coord_s, utm_zone
		FROM concessions
		WHERE object_key = $1
		ORDER BY id
		LIMIT 1`,
		objectKey).
		Scan(&c.ID, &c.PortZoneID, &c.ConcessionObject, &c.Type, &c.CapexTotal,
			&c.SigningDate, &c.Description, &c.CoordE, &c.CoordS, &c.UTMZone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

var concessionUpdatable = []string{
	"capex_total", "signing_date", "description", "coord_e", "coord_s", "utm_zone",
}

func (t *pgTx) UpsertConcession(ctx context.Context, c *domain.Concession, cols engine.FieldSet) (int64, bool, error) {
	var created bool
	err := t.tx.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO concessions (port_zone_id, object, object_key, type, capex_total,
			signing_date, description, coord_e, coord_s, utm_zone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (port_zone_id, object_key, type) DO UPDATE SET %s
		RETURNING id, (xmax = 0)`,
		setClause(cols, concessionUpdatable, "object")),
		c.PortZoneID, c.ConcessionObject, engine.NormalizeKey(c.ConcessionObject), string(c.Type),
		c.CapexTotal, c.SigningDate, c.Description, c.CoordE, c.CoordS, c.UTMZone).
		Scan(&c.ID, &created)
	return c.ID, created, err
}

func (t *pgTx) FindService(ctx context.Context, concessionID int64, nameKey string) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		SELECT id FROM services WHERE concession_id = $1 AND name_key = $2`,
		concessionID, nameKey).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

var serviceUpdatable = []string{
	"service_type_id", "phase", "description", "start_lead_years", "start_date",
	"end_lead_years", "end_date", "lead_source", "capex_percent", "capex_amount",
	"percent_source",
}

func (t *pgTx) UpsertService(ctx context.Context, s *domain.Service, cols engine.FieldSet) (int64, bool, error) {
	var created bool
	err := t.tx.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO services (concession_id, service_type_id, phase, name, name_key,
			description, start_lead_years, start_date, end_lead_years, end_date,
			lead_source, capex_percent, capex_amount, percent_source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (concession_id, name_key) DO UPDATE SET %s
		RETURNING id, (xmax = 0)`,
		setClause(cols, serviceUpdatable, "name")),
		s.ConcessionID, s.ServiceTypeID, s.Phase, s.Name, engine.NormalizeKey(s.Name),
		s.Description, s.StartLeadYears, s.StartDate, s.EndLeadYears, s.EndDate,
		s.LeadSource, s.CapexPercent, s.CapexAmount, s.PercentSource).
		Scan(&s.ID, &created)
	return s.ID, created, err
}

var trackingUpdatable = []string{
	"percent_executed", "capex_adjusted", "value_executed", "role", "department",
}

func (t *pgTx) UpsertTracking(ctx context.Context, tr *domain.TrackingRecord, cols engine.FieldSet) (int64, bool, error) {
	var created bool
	err := t.tx.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO tracking_records (service_id, percent_executed, capex_adjusted,
			value_executed, update_date, responsible, responsible_key, role, department)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (service_id, update_date, responsible_key) DO UPDATE SET %s
		RETURNING id, (xmax = 0)`,
		setClause(cols, trackingUpdatable, "responsible")),
		tr.ServiceID, tr.PercentExecuted, tr.CapexAdjusted, tr.ValueExecuted,
		tr.UpdateDate, tr.Responsible, engine.NormalizeKey(tr.Responsible),
		tr.Role, tr.Department).
		Scan(&tr.ID, &created)
	if err != nil {
		return 0, false, err
	}

	// Risk associations are replaced wholesale, but only when the workbook
	// carried the risk column at all.
	if cols["risks"] {
		if _, err := t.tx.Exec(ctx,
			`DELETE FROM tracking_risks WHERE tracking_id = $1`, tr.ID); err != nil {
			return 0, false, err
		}
		for _, risk := range tr.Risks {
			if _, err := t.tx.Exec(ctx, `
				INSERT INTO tracking_risks (tracking_id, risk_type_id, description)
				VALUES ($1, $2, $3)`,
				tr.ID, risk.RiskTypeID, risk.Description); err != nil {
				return 0, false, err
			}
		}
	}

	return tr.ID, created, err
}
