package engine

import (
	"context"
	"fmt"

	"github.com/painelportos/ingest/internal/domain"
)

// Resolver resolves lookup references against the store, creating new
// lookup rows when the profile marks the kind as auto-creatable.
type Resolver struct {
	auto  map[domain.LookupKind]bool
	cache map[string]int64
}

// NewResolver creates a run-scoped resolver with the given auto-create
// policy.
func NewResolver(auto map[domain.LookupKind]bool) *Resolver {
	return &Resolver{auto: auto, cache: make(map[string]int64)}
}

// Resolve binds a reference value to a lookup id. An unknown value of a
// non-auto-creatable kind is a row-level problem, returned as *RowError.
func (r *Resolver) Resolve(ctx context.Context, tx Tx, kind domain.LookupKind, name, extra string) (int64, error) {
	key := NormalizeKey(name)
	if key == "" {
		return 0, &RowError{Reason: ReasonMissingField, Detail: string(kind)}
	}

	cacheKey := string(kind) + "|" + key
	if id, ok := r.cache[cacheKey]; ok {
		return id, nil
	}

	id, found, err := tx.FindLookup(ctx, kind, key)
	if err != nil {
		return 0, fmt.Errorf("find %s %q: %w", kind, name, err)
	}
	if found {
		r.cache[cacheKey] = id
		return id, nil
	}

	if !r.auto[kind] {
		return 0, &RowError{Reason: ReasonUnknownLookup, Detail: fmt.Sprintf("%s %q", kind, CleanCell(name))}
	}

	id, err = tx.CreateLookup(ctx, kind, CleanCell(name), CleanCell(extra))
	if err != nil {
		return 0, fmt.Errorf("create %s %q: %w", kind, name, err)
	}
	r.cache[cacheKey] = id
	return id, nil
}
