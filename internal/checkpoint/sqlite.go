// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package checkpoint persists pull checkpoints: per-source cursors, the
// seen-ID window, and retained records. SQLiteStore is the durable store;
// MemoryStore serves tests and one-shot runs.
package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/watchcat/internal/pull"
	"github.com/pdiddy/watchcat/pkg/types"
)

// DefaultPath is the database file used when the config names none.
const DefaultPath = "watchcat.db"

var errReadOnly = errors.New("write in read transaction")

var _ pull.Store = (*SQLiteStore)(nil)

// SQLiteStore is a pull.Store backed by a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and creates the schema
// if it does not exist. Write transactions take the database lock when they
// begin, so concurrent cycles queue on the busy timeout instead of failing
// at commit.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		path = DefaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=10000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS cursors (
			source_id TEXT PRIMARY KEY,
			cursor TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS seen_ids (
			source_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			id TEXT NOT NULL,
			PRIMARY KEY (source_id, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_seen_ids_seq ON seen_ids(source_id, seq)`,
		`CREATE TABLE IF NOT EXISTS records (
			source_id TEXT NOT NULL,
			id TEXT NOT NULL,
			kind TEXT NOT NULL,
			published TEXT,
			pulled_at TEXT NOT NULL,
			data TEXT NOT NULL,
			PRIMARY KEY (source_id, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_kind ON records(kind)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// View implements pull.Store.
func (s *SQLiteStore) View(ctx context.Context, sourceID string, fn func(pull.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()
	return fn(&sqlTx{tx: tx, sourceID: sourceID, readOnly: true})
}

// Update implements pull.Store.
func (s *SQLiteStore) Update(ctx context.Context, sourceID string, fn func(pull.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{tx: tx, sourceID: sourceID}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

// Records returns the persisted records of a source in first-persisted
// order.
func (s *SQLiteStore) Records(ctx context.Context, sourceID string) ([]types.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data FROM records WHERE source_id = ? ORDER BY rowid`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var out []types.Record
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		var flat map[string]string
		if err := json.Unmarshal([]byte(data), &flat); err != nil {
			return nil, fmt.Errorf("decoding record %s: %w", id, err)
		}
		r, err := types.Unflatten(flat)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SourceStatus summarizes the checkpoint of one source.
type SourceStatus struct {
	SourceID  string
	Cursor    types.Cursor
	UpdatedAt time.Time
	Seen      int
	Records   int
}

// Status returns the checkpoint summary of every source with a cursor,
// seen IDs, or records, ordered by source id.
func (s *SQLiteStore) Status(ctx context.Context) ([]SourceStatus, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH ids AS (
			SELECT source_id FROM cursors
			UNION SELECT source_id FROM seen_ids
			UNION SELECT source_id FROM records
		)
		SELECT ids.source_id,
			COALESCE(c.cursor, ''),
			COALESCE(c.updated_at, ''),
			(SELECT count(*) FROM seen_ids s WHERE s.source_id = ids.source_id),
			(SELECT count(*) FROM records r WHERE r.source_id = ids.source_id)
		FROM ids LEFT JOIN cursors c ON c.source_id = ids.source_id
		ORDER BY ids.source_id`)
	if err != nil {
		return nil, fmt.Errorf("querying status: %w", err)
	}
	defer rows.Close()

	var out []SourceStatus
	for rows.Next() {
		var (
			st      SourceStatus
			cursor  string
			updated string
		)
		if err := rows.Scan(&st.SourceID, &cursor, &updated, &st.Seen, &st.Records); err != nil {
			return nil, fmt.Errorf("scanning status: %w", err)
		}
		st.Cursor = types.Cursor(cursor)
		if updated != "" {
			st.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

type sqlTx struct {
	tx       *sql.Tx
	sourceID string
	readOnly bool
}

func (t *sqlTx) LoadCursor(ctx context.Context) (types.Cursor, error) {
	var c string
	err := t.tx.QueryRowContext(ctx,
		`SELECT cursor FROM cursors WHERE source_id = ?`, t.sourceID,
	).Scan(&c)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading cursor: %w", err)
	}
	return types.Cursor(c), nil
}

func (t *sqlTx) SaveCursor(ctx context.Context, c types.Cursor) error {
	if t.readOnly {
		return errReadOnly
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO cursors (source_id, cursor, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(source_id) DO UPDATE SET cursor=excluded.cursor, updated_at=excluded.updated_at`,
		t.sourceID, string(c), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting cursor: %w", err)
	}
	return nil
}

func (t *sqlTx) LoadSeenIDs(ctx context.Context) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id FROM seen_ids WHERE source_id = ? ORDER BY seq`, t.sourceID)
	if err != nil {
		return nil, fmt.Errorf("querying seen ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning seen id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *sqlTx) SaveSeenIDs(ctx context.Context, ids []string) error {
	if t.readOnly {
		return errReadOnly
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM seen_ids WHERE source_id = ?`, t.sourceID); err != nil {
		return fmt.Errorf("clearing seen ids: %w", err)
	}

	stmt, err := t.tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO seen_ids (source_id, seq, id) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, id := range ids {
		if _, err := stmt.ExecContext(ctx, t.sourceID, i, id); err != nil {
			return fmt.Errorf("inserting seen id %s: %w", id, err)
		}
	}
	return nil
}

func (t *sqlTx) PersistRecords(ctx context.Context, records []types.Record) error {
	if t.readOnly {
		return errReadOnly
	}
	stmt, err := t.tx.PrepareContext(ctx,
		`INSERT INTO records (source_id, id, kind, published, pulled_at, data)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source_id, id) DO UPDATE SET
			kind=excluded.kind, published=excluded.published,
			pulled_at=excluded.pulled_at, data=excluded.data`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		data, err := json.Marshal(r.Flatten())
		if err != nil {
			return fmt.Errorf("encoding record %s: %w", r.ID(), err)
		}
		published := ""
		if !r.PublishedAt().IsZero() {
			published = r.PublishedAt().UTC().Format(time.RFC3339Nano)
		}
		_, err = stmt.ExecContext(ctx,
			t.sourceID, r.ID(), string(r.Kind()), published,
			r.PulledAt().UTC().Format(time.RFC3339Nano), string(data),
		)
		if err != nil {
			return fmt.Errorf("upserting record %s: %w", r.ID(), err)
		}
	}
	return nil
}
