package engine

import (
	"context"

	"github.com/painelportos/ingest/internal/domain"
)

// Store is the persistence boundary of the import engine. A single Run
// maps to a single WithTx call; any error returned from fn aborts the
// whole transaction.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// FieldSet names the store columns a workbook actually carried. Upserts
// update only these columns when the row already exists, so a re-import
// without some optional column leaves the stored value alone.
type FieldSet map[string]bool

// Tx exposes the per-run persistence operations. Find* methods take
// normalized keys (see NormalizeKey); FindConcession returns nil when no
// concession matches. Upsert* methods match on the entity's natural key,
// set the entity's ID field, and report whether a new row was created.
// On conflict only the columns in cols are mutated; the natural-key
// columns are always written.
type Tx interface {
	FindLookup(ctx context.Context, kind domain.LookupKind, key string) (int64, bool, error)
	CreateLookup(ctx context.Context, kind domain.LookupKind, name, extra string) (int64, error)

	UpsertProcess(ctx context.Context, p *domain.Process, cols FieldSet) (int64, bool, error)
	UpsertGoal(ctx context.Context, g *domain.Goal) (int64, bool, error)
	UpsertIndicator(ctx context.Context, ind *domain.Indicator, cols FieldSet) (int64, bool, error)

	FindConcession(ctx context.Context, objectKey string) (*domain.Concession, error)
	UpsertConcession(ctx context.Context, c *domain.Concession, cols FieldSet) (int64, bool, error)
	FindService(ctx context.Context, concessionID int64, nameKey string) (int64, bool, error)
	UpsertService(ctx context.Context, s *domain.Service, cols FieldSet) (int64, bool, error)
	UpsertTracking(ctx context.Context, t *domain.TrackingRecord, cols FieldSet) (int64, bool, error)
}
