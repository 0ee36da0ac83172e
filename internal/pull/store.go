// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pull

import (
	"context"

	"github.com/pdiddy/watchcat/pkg/types"
)

// Store is the checkpoint datastore. Transactions are scoped to one source
// key; writers for the same key are serialized by the store.
type Store interface {
	// View runs fn in a read transaction.
	View(ctx context.Context, sourceID string, fn func(Tx) error) error

	// Update runs fn in a write transaction, committing when fn returns nil
	// and rolling back otherwise.
	Update(ctx context.Context, sourceID string, fn func(Tx) error) error
}

// Tx is the per-source view of the datastore inside a transaction.
type Tx interface {
	LoadCursor(ctx context.Context) (types.Cursor, error)
	SaveCursor(ctx context.Context, c types.Cursor) error
	LoadSeenIDs(ctx context.Context) ([]string, error)
	SaveSeenIDs(ctx context.Context, ids []string) error
	PersistRecords(ctx context.Context, records []types.Record) error
}

// Sink receives the records retained by a cycle. Deliver runs inside the
// commit transaction; an error rolls the whole commit back.
type Sink interface {
	Deliver(ctx context.Context, sourceID string, records []types.Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, sourceID string, records []types.Record) error

// Deliver implements Sink.
func (f SinkFunc) Deliver(ctx context.Context, sourceID string, records []types.Record) error {
	return f(ctx, sourceID, records)
}
