package engine

import (
	"time"
)

// Outcome is the result of persisting a single candidate.
type Outcome int

const (
	OutcomeCreated Outcome = iota
	OutcomeUpdated
)

// OutcomeOf translates an upsert's created flag into an Outcome.
func OutcomeOf(created bool) Outcome {
	if created {
		return OutcomeCreated
	}
	return OutcomeUpdated
}

// RowStatus is the final status of one source row.
type RowStatus string

const (
	StatusCreated  RowStatus = "created"
	StatusUpdated  RowStatus = "updated"
	StatusSkipped  RowStatus = "skipped"
	StatusRejected RowStatus = "rejected"
)

// RowOutcome describes one row in the final report. Raw carries the
// original cell values so a rejected row can be located and fixed in the
// source workbook.
type RowOutcome struct {
	Table    string    `json:"table"`
	RowIndex int       `json:"rowIndex"`
	Status   RowStatus `json:"status"`
	Reason   string    `json:"reason,omitempty"`
	Detail   string    `json:"detail,omitempty"`
	Raw      []string  `json:"raw,omitempty"`
}

// TableSummary aggregates row statuses for one table.
type TableSummary struct {
	Table    string `json:"table"`
	Label    string `json:"label"`
	Rows     int    `json:"rows"`
	Created  int    `json:"created"`
	Updated  int    `json:"updated"`
	Skipped  int    `json:"skipped"`
	Rejected int    `json:"rejected"`
}

// Report is the outcome of one import run.
type Report struct {
	RunID         string         `json:"runId"`
	Profile       string         `json:"profile"`
	StartedAt     time.Time      `json:"startedAt"`
	Duration      time.Duration  `json:"duration"`
	Tables        []TableSummary `json:"tables"`
	TotalCreated  int            `json:"totalCreated"`
	TotalUpdated  int            `json:"totalUpdated"`
	TotalSkipped  int            `json:"totalSkipped"`
	TotalRejected int            `json:"totalRejected"`
	Rejections    []RowOutcome   `json:"rejections,omitempty"`

	rows  map[rowRef]*rowState
	order []rowRef
}

type rowRef struct {
	Table string
	Index int
}

type rowState struct {
	created  bool
	updated  bool
	rejected bool
	reason   string
	detail   string
	raw      []string
}

func newReport(runID, profile string) *Report {
	return &Report{
		RunID:     runID,
		Profile:   profile,
		StartedAt: time.Now(),
		rows:      make(map[rowRef]*rowState),
	}
}

func (r *Report) row(table string, index int) *rowState {
	ref := rowRef{Table: table, Index: index}
	st, ok := r.rows[ref]
	if !ok {
		st = &rowState{}
		r.rows[ref] = st
		r.order = append(r.order, ref)
	}
	return st
}

// Touch registers a data row before its candidates are persisted. A
// touched row that never records an outcome ends up skipped.
func (r *Report) Touch(table string, index int, raw []string) {
	st := r.row(table, index)
	if st.raw == nil {
		st.raw = raw
	}
}

// Record registers one persisted candidate for a row.
func (r *Report) Record(table string, index int, out Outcome) {
	st := r.row(table, index)
	switch out {
	case OutcomeCreated:
		st.created = true
	case OutcomeUpdated:
		st.updated = true
	}
}

// Reject marks a row as rejected. Rejection wins over any outcome
// already recorded for the same row.
func (r *Report) Reject(table string, index int, raw []string, re *RowError) {
	st := r.row(table, index)
	st.rejected = true
	st.reason = re.Reason
	st.detail = re.Detail
	if st.raw == nil {
		st.raw = raw
	}
}

func (st *rowState) status() RowStatus {
	switch {
	case st.rejected:
		return StatusRejected
	case st.created:
		return StatusCreated
	case st.updated:
		return StatusUpdated
	default:
		return StatusSkipped
	}
}

// Finalize computes the per-table summaries and totals. Row order in
// Rejections follows source order within each table.
func (r *Report) Finalize(prof *Profile, elapsed time.Duration) {
	r.Duration = elapsed

	summaries := make(map[string]*TableSummary)
	for _, t := range prof.Tables {
		summaries[string(t.Kind)] = &TableSummary{Table: string(t.Kind), Label: t.Label}
	}

	for _, ref := range r.order {
		st := r.rows[ref]
		sum, ok := summaries[ref.Table]
		if !ok {
			sum = &TableSummary{Table: ref.Table}
			summaries[ref.Table] = sum
		}
		sum.Rows++
		switch st.status() {
		case StatusCreated:
			sum.Created++
			r.TotalCreated++
		case StatusUpdated:
			sum.Updated++
			r.TotalUpdated++
		case StatusSkipped:
			sum.Skipped++
			r.TotalSkipped++
		case StatusRejected:
			sum.Rejected++
			r.TotalRejected++
			r.Rejections = append(r.Rejections, RowOutcome{
				Table:    ref.Table,
				RowIndex: ref.Index,
				Status:   StatusRejected,
				Reason:   st.reason,
				Detail:   st.detail,
				Raw:      st.raw,
			})
		}
	}

	for _, t := range prof.Tables {
		if sum := summaries[string(t.Kind)]; sum.Rows > 0 {
			r.Tables = append(r.Tables, *sum)
		}
	}
}
