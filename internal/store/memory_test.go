package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/painelportos/ingest/internal/domain"
	"github.com/painelportos/ingest/internal/engine"
)

func TestMemory_UpsertCreatedFlag(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	err := mem.WithTx(ctx, func(tx engine.Tx) error {
		p := &domain.Process{Number: "50300.001/2023"}
		id1, created, err := tx.UpsertProcess(ctx, p, engine.FieldSet{"license": true})
		if err != nil {
			return err
		}
		if !created {
			t.Error("first upsert: created = false, want true")
		}

		// Case and whitespace variants hit the same natural key.
		p2 := &domain.Process{Number: "  50300.001/2023 ", License: "LO-9"}
		id2, created, err := tx.UpsertProcess(ctx, p2, engine.FieldSet{"license": true})
		if err != nil {
			return err
		}
		if created {
			t.Error("second upsert: created = true, want false")
		}
		if id1 != id2 {
			t.Errorf("ids diverged: %d vs %d", id1, id2)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}

	procs := mem.Processes()
	if len(procs) != 1 {
		t.Fatalf("processes = %d, want 1", len(procs))
	}
	if procs[0].License != "LO-9" {
		t.Errorf("update did not stick: %+v", procs[0])
	}
}

func TestMemory_UpsertScopedColumns(t *testing.T) {
	// A re-import that did not carry a column must leave the stored value
	// alone; columns it did carry are overwritten.
	mem := NewMemory()
	ctx := context.Background()

	signed := time.Date(2023, 5, 2, 0, 0, 0, 0, time.UTC)
	err := mem.WithTx(ctx, func(tx engine.Tx) error {
		c := &domain.Concession{
			PortZoneID:       1,
			ConcessionObject: "TECON 10",
			Type:             domain.TypeLease,
			CapexTotal:       decimal.NewFromInt(1000000),
			SigningDate:      &signed,
			Description:      "terminal de contêineres",
		}
		full := engine.FieldSet{"capex_total": true, "signing_date": true, "description": true}
		if _, _, err := tx.UpsertConcession(ctx, c, full); err != nil {
			return err
		}

		again := &domain.Concession{
			PortZoneID:       1,
			ConcessionObject: "TECON 10",
			Type:             domain.TypeLease,
			CapexTotal:       decimal.NewFromInt(2000000),
		}
		_, created, err := tx.UpsertConcession(ctx, again, engine.FieldSet{"capex_total": true})
		if err != nil {
			return err
		}
		if created {
			t.Error("second upsert: created = true, want false")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}

	concs := mem.Concessions()
	if len(concs) != 1 {
		t.Fatalf("concessions = %d, want 1", len(concs))
	}
	if !concs[0].CapexTotal.Equal(decimal.NewFromInt(2000000)) {
		t.Errorf("capex = %s, want 2000000 (carried column must overwrite)", concs[0].CapexTotal)
	}
	if concs[0].Description != "terminal de contêineres" {
		t.Errorf("description = %q, want untouched", concs[0].Description)
	}
	if concs[0].SigningDate == nil || !concs[0].SigningDate.Equal(signed) {
		t.Errorf("signing date = %v, want untouched", concs[0].SigningDate)
	}
}

func TestMemory_TrackingRisksKeptWithoutRiskColumn(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	date := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	err := mem.WithTx(ctx, func(tx engine.Tx) error {
		tr := &domain.TrackingRecord{
			ServiceID:       3,
			PercentExecuted: decimal.NewFromInt(35),
			UpdateDate:      &date,
			Responsible:     "Maria Souza",
			Risks:           []domain.Risk{{RiskTypeID: 9, Description: "licenciamento pendente"}},
		}
		cols := engine.FieldSet{"percent_executed": true, "risks": true}
		if _, _, err := tx.UpsertTracking(ctx, tr, cols); err != nil {
			return err
		}

		again := &domain.TrackingRecord{
			ServiceID:       3,
			PercentExecuted: decimal.NewFromInt(50),
			UpdateDate:      &date,
			Responsible:     "Maria Souza",
		}
		_, _, err := tx.UpsertTracking(ctx, again, engine.FieldSet{"percent_executed": true})
		return err
	})
	if err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}

	tracks := mem.Trackings()
	if len(tracks) != 1 {
		t.Fatalf("trackings = %d, want 1", len(tracks))
	}
	if !tracks[0].PercentExecuted.Equal(decimal.NewFromInt(50)) {
		t.Errorf("percent executed = %s, want 50", tracks[0].PercentExecuted)
	}
	if len(tracks[0].Risks) != 1 {
		t.Errorf("risks = %+v, want the original association kept", tracks[0].Risks)
	}
}

func TestMemory_RollbackOnError(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	sentinel := errors.New("boom")
	err := mem.WithTx(ctx, func(tx engine.Tx) error {
		if _, err := tx.CreateLookup(ctx, domain.LookupPortZone, "Porto de Santos", "SP"); err != nil {
			return err
		}
		if _, _, err := tx.UpsertProcess(ctx, &domain.Process{Number: "x"}, nil); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("WithTx() error = %v, want sentinel", err)
	}

	for name, n := range mem.Counts() {
		if n != 0 {
			t.Errorf("%s = %d after rollback, want 0", name, n)
		}
	}
}

func TestMemory_FindConcession(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	err := mem.WithTx(ctx, func(tx engine.Tx) error {
		c := &domain.Concession{
			PortZoneID:       1,
			ConcessionObject: "TECON 10",
			Type:             domain.TypeLease,
			CapexTotal:       decimal.NewFromInt(1000000),
		}
		if _, _, err := tx.UpsertConcession(ctx, c, nil); err != nil {
			return err
		}

		found, err := tx.FindConcession(ctx, engine.NormalizeKey("  Tecon 10 "))
		if err != nil {
			return err
		}
		if found == nil {
			t.Fatal("FindConcession() = nil, want match")
		}
		if !found.CapexTotal.Equal(c.CapexTotal) {
			t.Errorf("capex = %s", found.CapexTotal)
		}

		missing, err := tx.FindConcession(ctx, "tecon 99")
		if err != nil {
			return err
		}
		if missing != nil {
			t.Errorf("FindConcession(tecon 99) = %+v, want nil", missing)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}
}

func TestMemory_FindService(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	err := mem.WithTx(ctx, func(tx engine.Tx) error {
		s := &domain.Service{ConcessionID: 7, ServiceTypeID: 1, Name: "Dragagem de Aprofundamento"}
		id, _, err := tx.UpsertService(ctx, s, nil)
		if err != nil {
			return err
		}

		got, found, err := tx.FindService(ctx, 7, engine.NormalizeKey("DRAGAGEM DE APROFUNDAMENTO"))
		if err != nil {
			return err
		}
		if !found || got != id {
			t.Errorf("FindService() = %d, %v; want %d, true", got, found, id)
		}

		_, found, err = tx.FindService(ctx, 8, engine.NormalizeKey("Dragagem de Aprofundamento"))
		if err != nil {
			return err
		}
		if found {
			t.Error("FindService() with wrong concession should miss")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}
}
