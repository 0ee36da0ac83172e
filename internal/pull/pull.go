// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pull runs incremental pull cycles: connect, fetch within the
// cursor window, normalize, filter, deduplicate against the seen-ID window,
// and commit records, cursor, and seen IDs in one transaction.
package pull

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/watchcat/internal/filter"
	"github.com/pdiddy/watchcat/internal/logger"
	"github.com/pdiddy/watchcat/internal/source"
	"github.com/pdiddy/watchcat/pkg/types"
)

// ErrPullInProgress is returned when a cycle for the same source is already
// running.
var ErrPullInProgress = errors.New("pull already in progress")

// Source is one configured source: an adapter plus its pull settings.
type Source struct {
	Adapter source.Adapter

	// Filter selects the records to keep. Nil keeps everything.
	Filter filter.Expr

	// Lookback bounds the first pull when the filter has no lower date
	// bound. Zero uses source.DefaultLookback.
	Lookback time.Duration

	// SeenWindow is the number of identifiers remembered for dedup. Zero
	// uses DefaultSeenWindow.
	SeenWindow int
}

// ID returns the adapter's source id.
func (s Source) ID() string { return s.Adapter.ID() }

// Result summarizes one committed cycle.
type Result struct {
	RunID     string
	SourceID  string
	Query     string
	Window    source.Window
	Cursor    types.Cursor
	NewCursor types.Cursor

	// Fetched counts raw items returned by the adapter.
	Fetched int

	// Skipped counts items that failed normalization.
	Skipped int

	// Filtered counts records rejected by the residual filter.
	Filtered int

	// Duplicates counts records already seen.
	Duplicates int

	// Records holds the retained records in fetch order.
	Records []types.Record
}

// Options configures a Coordinator.
type Options struct {
	// Sink receives retained records inside the commit. Optional.
	Sink Sink

	// Observer receives every state transition. Optional.
	Observer Observer

	// Now is the clock; time.Now when nil.
	Now func() time.Time
}

// Coordinator runs pull cycles against a checkpoint store. It is safe for
// concurrent use; cycles for different sources run independently.
type Coordinator struct {
	store    Store
	sink     Sink
	observer Observer
	now      func() time.Time

	mu     sync.Mutex
	active map[string]struct{}
}

// New returns a coordinator persisting to store.
func New(store Store, opts Options) *Coordinator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		store:    store,
		sink:     opts.Sink,
		observer: opts.Observer,
		now:      now,
		active:   make(map[string]struct{}),
	}
}

func (c *Coordinator) acquire(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.active[id]; busy {
		return false
	}
	c.active[id] = struct{}{}
	return true
}

func (c *Coordinator) release(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, id)
}

// Pull runs one cycle for src. On any error before the commit succeeds the
// cursor and seen IDs are left unchanged.
func (c *Coordinator) Pull(ctx context.Context, src Source) (Result, error) {
	if src.Adapter == nil {
		return Result{}, types.ConfigError("", errors.New("source has no adapter"))
	}
	id := src.ID()
	if !c.acquire(id) {
		return Result{}, fmt.Errorf("%s: %w", id, ErrPullInProgress)
	}
	defer c.release(id)

	run := &cycle{
		c:   c,
		src: src,
		res: Result{RunID: uuid.NewString(), SourceID: id},
	}
	l := logger.Named("pull").With().Str("source", id).Str("run", run.res.RunID).Logger()
	run.log = &l

	err := run.exec(ctx)
	if err != nil {
		run.enter(Errored, err)
		run.log.Error().Err(err).Str("cursor", run.res.Cursor.String()).Msg("pull aborted")
		return run.res, err
	}
	run.enter(Idle, nil)
	run.log.Info().
		Int("fetched", run.res.Fetched).
		Int("skipped", run.res.Skipped).
		Int("filtered", run.res.Filtered).
		Int("duplicates", run.res.Duplicates).
		Int("retained", len(run.res.Records)).
		Str("cursor", run.res.NewCursor.String()).
		Msg("pull committed")
	return run.res, nil
}

// PullAll runs the cycles of srcs concurrently. Results are in srcs order;
// a failed source leaves a partial result and contributes to the joined
// error without affecting the others.
func (c *Coordinator) PullAll(ctx context.Context, srcs []Source) ([]Result, error) {
	results := make([]Result, len(srcs))
	errs := make([]error, len(srcs))

	var wg sync.WaitGroup
	for i, s := range srcs {
		wg.Add(1)
		go func(i int, s Source) {
			defer wg.Done()
			results[i], errs[i] = c.Pull(ctx, s)
			if errs[i] != nil && s.Adapter != nil {
				errs[i] = fmt.Errorf("pull %s: %w", s.ID(), errs[i])
			}
		}(i, s)
	}
	wg.Wait()

	return results, errors.Join(errs...)
}

// cycle is the state of one Pull call.
type cycle struct {
	c     *Coordinator
	src   Source
	res   Result
	state State
	log   *logger.Logger
}

func (r *cycle) enter(s State, err error) {
	from := r.state
	r.state = s
	r.log.Debug().Str("from", from.String()).Str("to", s.String()).Msg("state")
	if r.c.observer != nil {
		r.c.observer(Transition{SourceID: r.res.SourceID, RunID: r.res.RunID, From: from, To: s, Err: err})
	}
}

func (r *cycle) exec(ctx context.Context) error {
	a := r.src.Adapter
	id := r.res.SourceID

	var seenIDs []string
	err := r.c.store.View(ctx, id, func(tx Tx) error {
		var err error
		if r.res.Cursor, err = tx.LoadCursor(ctx); err != nil {
			return fmt.Errorf("loading cursor: %w", err)
		}
		if seenIDs, err = tx.LoadSeenIDs(ctx); err != nil {
			return fmt.Errorf("loading seen ids: %w", err)
		}
		return nil
	})
	if err != nil {
		return types.CommitError(id, r.res.Cursor, "load", err)
	}
	cursor := r.res.Cursor
	r.res.NewCursor = cursor

	plan := a.Compile(r.src.Filter)
	r.res.Query = plan.Query
	r.res.Window = source.ResolveWindow(r.src.Filter, cursor, r.src.Lookback, r.c.now())
	r.log.Info().
		Str("cursor", cursor.String()).
		Time("since", r.res.Window.Since).
		Str("query", plan.Query).
		Bool("residual_only", plan.FullyResidual()).
		Msg("pull started")

	r.enter(Connecting, nil)
	conn, err := a.Connect(ctx)
	if err != nil {
		return types.ConnectionError(id, cursor, "connect", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			r.log.Warn().Err(err).Msg("closing connection")
		}
	}()

	r.enter(Fetching, nil)
	raw, err := a.Fetch(ctx, conn, plan, r.res.Window)
	if err != nil {
		return types.ConnectionError(id, cursor, "fetch", err)
	}
	if err := ctx.Err(); err != nil {
		return types.ConnectionError(id, cursor, "fetch", err)
	}
	r.res.Fetched = len(raw)

	r.enter(Normalizing, nil)
	records, advance := r.normalize(raw)

	r.enter(Filtering, nil)
	kept := records[:0:0]
	for _, rec := range records {
		if plan.Keep(rec) {
			kept = append(kept, rec)
		} else {
			r.res.Filtered++
		}
	}

	r.enter(Deduplicating, nil)
	seen := NewSeenSet(seenIDs)
	for _, rec := range kept {
		if seen.Add(rec.ID()) {
			r.res.Records = append(r.res.Records, rec)
		} else {
			r.res.Duplicates++
		}
	}
	seen.Prune(r.src.SeenWindow)
	next := nextCursor(cursor, advance)

	r.enter(Committing, nil)
	err = r.c.store.Update(ctx, id, func(tx Tx) error {
		if len(r.res.Records) > 0 {
			if err := tx.PersistRecords(ctx, r.res.Records); err != nil {
				return fmt.Errorf("persisting records: %w", err)
			}
			if r.c.sink != nil {
				if err := r.c.sink.Deliver(ctx, id, r.res.Records); err != nil {
					return fmt.Errorf("delivering records: %w", err)
				}
			}
		}
		if next != cursor {
			if err := tx.SaveCursor(ctx, next); err != nil {
				return fmt.Errorf("saving cursor: %w", err)
			}
		}
		if err := tx.SaveSeenIDs(ctx, seen.IDs()); err != nil {
			return fmt.Errorf("saving seen ids: %w", err)
		}
		return nil
	})
	if err != nil {
		r.res.Records = nil
		return types.CommitError(id, cursor, "commit", err)
	}
	r.res.NewCursor = next
	return nil
}

// normalize converts raw items, skipping failures. It returns the records
// and the latest origin the cursor may advance to: the newest origin
// fetched, capped at the earliest origin of a failed item. A failed item
// with unknown origin blocks any advance (zero time).
func (r *cycle) normalize(raw []source.RawItem) ([]types.Record, time.Time) {
	var (
		out        []types.Record
		newest     time.Time
		failedAt   time.Time
		failedZero bool
	)
	for _, item := range raw {
		if item.Origin.After(newest) {
			newest = item.Origin
		}
		rec, err := r.src.Adapter.Normalize(item)
		if err != nil {
			r.res.Skipped++
			perr := types.NormalizationError(r.res.SourceID, item.ID, err)
			perr.Cursor = r.res.Cursor
			r.log.Warn().Err(perr).Str("item", item.ID).Str("cursor", r.res.Cursor.String()).Msg("skipping item")
			switch {
			case item.Origin.IsZero():
				failedZero = true
			case failedAt.IsZero() || item.Origin.Before(failedAt):
				failedAt = item.Origin
			}
			continue
		}
		out = append(out, rec)
	}

	switch {
	case failedZero:
		return out, time.Time{}
	case !failedAt.IsZero() && failedAt.Before(newest):
		return out, failedAt
	}
	return out, newest
}

// nextCursor moves cursor forward to advance. A cursor never moves back.
func nextCursor(cursor types.Cursor, advance time.Time) types.Cursor {
	if advance.IsZero() {
		return cursor
	}
	if at, ok := cursor.Time(); ok && !advance.After(at) {
		return cursor
	}
	return types.CursorAt(advance)
}
