package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Options tunes one Importer.
type Options struct {
	// Timeout bounds the import transaction. Zero means no deadline
	// beyond the caller's context.
	Timeout time.Duration

	// CapexTolerance is the relative tolerance of the service capex
	// consistency check, e.g. 0.01 for one percent.
	CapexTolerance decimal.Decimal
}

// Importer runs import profiles against a store.
type Importer struct {
	store Store
	opts  Options
	log   *slog.Logger
}

// New creates an Importer.
func New(store Store, opts Options, log *slog.Logger) *Importer {
	if log == nil {
		log = slog.Default()
	}
	return &Importer{store: store, opts: opts, log: log}
}

// Run executes one import: parse the workbook, validate and build
// candidates, then persist everything in a single transaction. Row-level
// problems are collected in the report; structural problems and store
// failures abort the run with an error and nothing persisted.
func (imp *Importer) Run(ctx context.Context, profileKey string, data []byte) (*Report, error) {
	prof, ok := Get(profileKey)
	if !ok {
		return nil, fmt.Errorf("unknown import profile: %s", profileKey)
	}

	runID := uuid.New().String()
	log := imp.log.With("run_id", runID, "profile", prof.Key)
	started := time.Now()

	report := newReport(runID, prof.Key)

	blocks, err := ReadWorkbook(data, prof)
	if err != nil {
		return nil, err
	}
	log.Info("workbook parsed", "tables", len(blocks))

	cands, err := imp.buildCandidates(prof, blocks, report)
	if err != nil {
		return nil, err
	}

	ordered := BuildGraph(prof, cands)
	log.Info("candidates built", "count", len(ordered))

	if imp.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, imp.opts.Timeout)
		defer cancel()
	}

	err = imp.store.WithTx(ctx, func(tx Tx) error {
		return imp.persistAll(ctx, tx, prof, ordered, report)
	})
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", prof.Key, err)
	}

	report.Finalize(prof, time.Since(started))
	log.Info("import finished",
		"created", report.TotalCreated,
		"updated", report.TotalUpdated,
		"rejected", report.TotalRejected,
		"duration", report.Duration)
	return report, nil
}

// buildCandidates runs the pure half of the pipeline: header mapping,
// row validation and candidate construction. Header problems are fatal;
// bad rows are rejected and skipped.
func (imp *Importer) buildCandidates(prof *Profile, blocks []TableBlock, report *Report) ([]*Candidate, error) {
	var cands []*Candidate

	for _, block := range blocks {
		table, ok := prof.Table(block.Table)
		if !ok {
			return nil, &UnexpectedLayoutError{Profile: prof.Key, Detail: fmt.Sprintf("unknown table %q", block.Table)}
		}

		idx, err := MapHeaders(block.Header, table, block.Sheet)
		if err != nil {
			return nil, err
		}
		validator := NewRowValidator(table, idx)

		for i, raw := range block.Rows {
			if isEmptyRow(raw) {
				continue
			}
			rowIndex := block.HeaderRow + 1 + i
			report.Touch(table.Kind, rowIndex, raw)

			row, rerr := validator.ValidateRow(rowIndex, raw)
			if rerr != nil {
				report.Reject(table.Kind, rowIndex, raw, rerr)
				continue
			}

			built, err := table.Build(row, block.Context)
			if err != nil {
				if re := AsRowError(err); re != nil {
					report.Reject(table.Kind, rowIndex, raw, re)
					continue
				}
				return nil, fmt.Errorf("build %s row %d: %w", table.Kind, rowIndex, err)
			}
			for _, c := range built {
				c.Table = table.Kind
				c.RowIndex = rowIndex
				c.Raw = raw
				c.Mapped = row.Mapped
			}
			cands = append(cands, built...)
		}
	}

	return cands, nil
}

// persistAll writes the ordered candidates inside the run transaction.
// A *RowError from a persist func rejects the row and skips its remaining
// candidates; any other error aborts the transaction.
func (imp *Importer) persistAll(ctx context.Context, tx Tx, prof *Profile, ordered []*Candidate, report *Report) error {
	run := NewRunState(prof, imp.opts.CapexTolerance)

	for _, cand := range ordered {
		if run.rowRejected(cand.Table, cand.RowIndex) {
			continue
		}

		out, err := prof.Persist[cand.Kind](ctx, tx, run, cand)
		if err != nil {
			if re := AsRowError(err); re != nil {
				run.rejectRow(cand.Table, cand.RowIndex)
				report.Reject(cand.Table, cand.RowIndex, cand.Raw, re)
				continue
			}
			return fmt.Errorf("persist %s %q: %w", cand.Kind, cand.Key, err)
		}
		report.Record(cand.Table, cand.RowIndex, out)
	}

	return nil
}
