// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Match them with errors.Is against any error returned by the
// pull core.
var (
	// ErrConfiguration is fatal and raised before any network I/O.
	ErrConfiguration = errors.New("configuration error")

	// ErrConnection is recoverable; the current cycle aborts and may be
	// retried with backoff.
	ErrConnection = errors.New("connection error")

	// ErrNormalization concerns one raw item, which is skipped.
	ErrNormalization = errors.New("normalization error")

	// ErrCommit reports a datastore or handoff failure. The cycle result is
	// discarded and the cursor is unmoved; the whole cycle is safe to retry.
	ErrCommit = errors.New("commit error")
)

// PullError carries the context a caller needs to decide on retry or
// alerting: the kind, the source, the last good cursor, and the raw item id
// when one is involved.
type PullError struct {
	Kind     error
	SourceID string
	Cursor   Cursor
	ItemID   string
	Op       string
	Err      error
}

// Error implements the error interface.
func (e *PullError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.SourceID != "" {
		fmt.Fprintf(&b, " [source=%s", e.SourceID)
		if e.Op != "" {
			fmt.Fprintf(&b, " op=%s", e.Op)
		}
		fmt.Fprintf(&b, " cursor=%s", e.Cursor)
		if e.ItemID != "" {
			fmt.Fprintf(&b, " item=%s", e.ItemID)
		}
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *PullError) Unwrap() error { return e.Err }

// Is matches the error kind sentinel.
func (e *PullError) Is(target error) bool { return target == e.Kind }

// Retryable reports whether retrying the whole cycle may succeed.
func (e *PullError) Retryable() bool {
	return e.Kind == ErrConnection || e.Kind == ErrCommit
}

// ConfigError builds a configuration error for a source.
func ConfigError(sourceID string, err error) *PullError {
	return &PullError{Kind: ErrConfiguration, SourceID: sourceID, Op: "configure", Err: err}
}

// ConnectionError builds a connection error for a source at a cursor.
func ConnectionError(sourceID string, cursor Cursor, op string, err error) *PullError {
	return &PullError{Kind: ErrConnection, SourceID: sourceID, Cursor: cursor, Op: op, Err: err}
}

// NormalizationError builds a per-item normalization error.
func NormalizationError(sourceID, itemID string, err error) *PullError {
	return &PullError{Kind: ErrNormalization, SourceID: sourceID, ItemID: itemID, Op: "normalize", Err: err}
}

// CommitError builds a commit error for a source at its last good cursor.
func CommitError(sourceID string, cursor Cursor, op string, err error) *PullError {
	return &PullError{Kind: ErrCommit, SourceID: sourceID, Cursor: cursor, Op: op, Err: err}
}

// AsPullError extracts a *PullError from err's chain.
func AsPullError(err error) (*PullError, bool) {
	var pe *PullError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
