package engine

import (
	"github.com/shopspring/decimal"

	"github.com/painelportos/ingest/internal/domain"
)

// RunState carries the mutable state of one import transaction: the
// run-scoped lookup resolver, the natural-key index of entities already
// persisted in this run, and the rows rejected so far.
type RunState struct {
	Resolver *Resolver

	// IDs maps candidate natural keys to persisted row ids.
	IDs map[string]int64

	// Concessions holds concessions persisted or fetched in this run,
	// keyed by candidate key. Service persistence reads the parent's
	// CapexTotal from here.
	Concessions map[string]*domain.Concession

	// CapexTolerance is the relative tolerance for the service capex
	// consistency check.
	CapexTolerance decimal.Decimal

	rejected map[rowRef]bool
}

// NewRunState creates the state for one transaction.
func NewRunState(prof *Profile, tolerance decimal.Decimal) *RunState {
	return &RunState{
		Resolver:       NewResolver(prof.AutoCreate),
		IDs:            make(map[string]int64),
		Concessions:    make(map[string]*domain.Concession),
		CapexTolerance: tolerance,
		rejected:       make(map[rowRef]bool),
	}
}

func (rs *RunState) rejectRow(table string, index int) {
	rs.rejected[rowRef{Table: table, Index: index}] = true
}

func (rs *RunState) rowRejected(table string, index int) bool {
	return rs.rejected[rowRef{Table: table, Index: index}]
}

// BuildGraph orders candidates for persistence: parents before children
// per the profile's Order, source order within each kind. Candidates
// repeating an earlier natural key are dropped; later rows reference the
// first occurrence through RunState.IDs.
func BuildGraph(prof *Profile, cands []*Candidate) []*Candidate {
	byKind := make(map[EntityKind][]*Candidate)
	seen := make(map[string]bool)

	for _, c := range cands {
		if c.Key != "" && seen[c.Key] {
			continue
		}
		seen[c.Key] = true
		byKind[c.Kind] = append(byKind[c.Kind], c)
	}

	ordered := make([]*Candidate, 0, len(cands))
	for _, kind := range prof.Order {
		ordered = append(ordered, byKind[kind]...)
	}
	return ordered
}
