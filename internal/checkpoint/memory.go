// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package checkpoint

import (
	"context"
	"sync"

	"github.com/pdiddy/watchcat/internal/pull"
	"github.com/pdiddy/watchcat/pkg/types"
)

var _ pull.Store = (*MemoryStore)(nil)

// MemoryStore keeps checkpoints in process memory. Transactions work on a
// copy of the source state that replaces the original on commit.
type MemoryStore struct {
	mu      sync.Mutex
	sources map[string]*memState
	writers map[string]*sync.Mutex
}

type memState struct {
	cursor  types.Cursor
	seen    []string
	order   []string
	records map[string]map[string]string
}

func (s *memState) clone() *memState {
	c := &memState{
		cursor:  s.cursor,
		seen:    append([]string(nil), s.seen...),
		order:   append([]string(nil), s.order...),
		records: make(map[string]map[string]string, len(s.records)),
	}
	for id, flat := range s.records {
		c.records[id] = flat
	}
	return c
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sources: make(map[string]*memState),
		writers: make(map[string]*sync.Mutex),
	}
}

func (m *MemoryStore) snapshot(sourceID string) *memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sources[sourceID]
	if !ok {
		return &memState{records: map[string]map[string]string{}}
	}
	return st.clone()
}

func (m *MemoryStore) writer(sourceID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.writers[sourceID]
	if !ok {
		w = new(sync.Mutex)
		m.writers[sourceID] = w
	}
	return w
}

// View implements pull.Store.
func (m *MemoryStore) View(ctx context.Context, sourceID string, fn func(pull.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&memTx{st: m.snapshot(sourceID), readOnly: true})
}

// Update implements pull.Store. Writers for one source are serialized.
func (m *MemoryStore) Update(ctx context.Context, sourceID string, fn func(pull.Tx) error) error {
	w := m.writer(sourceID)
	w.Lock()
	defer w.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{st: m.snapshot(sourceID)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[sourceID] = tx.st
	return nil
}

// Records returns the persisted records of a source in first-persisted
// order.
func (m *MemoryStore) Records(_ context.Context, sourceID string) ([]types.Record, error) {
	st := m.snapshot(sourceID)
	out := make([]types.Record, 0, len(st.order))
	for _, id := range st.order {
		r, err := types.Unflatten(st.records[id])
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

type memTx struct {
	st       *memState
	readOnly bool
}

func (t *memTx) LoadCursor(context.Context) (types.Cursor, error) { return t.st.cursor, nil }

func (t *memTx) LoadSeenIDs(context.Context) ([]string, error) {
	return append([]string(nil), t.st.seen...), nil
}

func (t *memTx) SaveCursor(_ context.Context, c types.Cursor) error {
	if t.readOnly {
		return errReadOnly
	}
	t.st.cursor = c
	return nil
}

func (t *memTx) SaveSeenIDs(_ context.Context, ids []string) error {
	if t.readOnly {
		return errReadOnly
	}
	t.st.seen = append([]string(nil), ids...)
	return nil
}

func (t *memTx) PersistRecords(_ context.Context, records []types.Record) error {
	if t.readOnly {
		return errReadOnly
	}
	for _, r := range records {
		if _, ok := t.st.records[r.ID()]; !ok {
			t.st.order = append(t.st.order, r.ID())
		}
		t.st.records[r.ID()] = r.Flatten()
	}
	return nil
}
