package core

import (
	"context"

	"github.com/JonMunkholm/recon/internal/ingest"
)

// Finder looks up existing entities by composite key.
//
// FindExisting matches keys against CompositeKey over def.NaturalKey of each
// stored row and returns the matches keyed the same way. When several rows
// share a key the lowest id wins.
type Finder interface {
	FindExisting(ctx context.Context, def EntityDefinition, keys []string) (map[string]Entity, error)
}

// Writer persists one entity type in bulk.
type Writer interface {
	// BulkInsert inserts entities, silently ignoring unique conflicts, and
	// returns the number of rows actually inserted.
	BulkInsert(ctx context.Context, def EntityDefinition, entities []Entity) (int64, error)

	// BulkUpdate overwrites fields of entities matched by ID.
	BulkUpdate(ctx context.Context, def EntityDefinition, entities []Entity, fields []string) (int64, error)
}

// Tx is the transaction of one entity type's import.
type Tx interface {
	Finder
	Writer

	// CollapsePlaceholder keeps the lowest-id row whose PlaceholderField
	// equals def.Placeholder, re-points refs at it and deletes the others.
	// It returns the number of rows removed.
	CollapsePlaceholder(ctx context.Context, def EntityDefinition, refs []ReferenceOwner) (int64, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store opens entity transactions and keeps the run history.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	RecordRun(ctx context.Context, report *RunReport) error
}

// Source yields the concatenated extract of one directory across origins.
type Source interface {
	Load(ctx context.Context, directory string) (*ingest.Table, error)
}

// Archiver moves processed extracts aside.
type Archiver interface {
	Archive(directory string) error
}
