// Package profile registers the import profiles with the engine registry.
// Import this package to ensure all profiles are registered.
package profile

import "github.com/painelportos/ingest/internal/engine"

// Each profile file uses init() to register its profile.

// colsFor translates the workbook fields a candidate's row carried into
// the store column names the upsert may mutate. Fields whose column was
// absent from the workbook are dropped, so the stored value survives.
func colsFor(cand *engine.Candidate, fieldCols map[string]string) engine.FieldSet {
	out := make(engine.FieldSet, len(fieldCols))
	for field, col := range fieldCols {
		if cand.Mapped[field] {
			out[col] = true
		}
	}
	return out
}
