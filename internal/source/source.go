// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package source defines the adapter contract every upstream protocol
// implements, and the protocol-independent half of the query compiler: the
// partitioning of a filter expression into a native part the upstream can
// evaluate and a residual part evaluated in memory.
package source

import (
	"context"
	"time"

	"github.com/pdiddy/watchcat/internal/filter"
	"github.com/pdiddy/watchcat/pkg/types"
)

// DefaultLookback bounds the first pull of a source that has no cursor and
// no explicit lower date bound.
const DefaultLookback = 30 * 24 * time.Hour

// Adapter retrieves raw items from one upstream protocol and normalizes them
// into canonical records. Each adapter (arXiv, mailbox) implements this
// interface per the Strategy pattern.
type Adapter interface {
	// ID returns the configured source id.
	ID() string

	// Kind returns the record variant the adapter produces.
	Kind() types.Kind

	// Connect opens a session. The caller must Close it.
	Connect(ctx context.Context) (Conn, error)

	// Compile splits expr into the native query sent upstream and the
	// residual evaluated after normalization.
	Compile(expr filter.Expr) Plan

	// Fetch retrieves raw items within the window that satisfy the plan's
	// native part, in ascending origin order when the upstream orders.
	Fetch(ctx context.Context, conn Conn, plan Plan, w Window) ([]RawItem, error)

	// Normalize converts one raw item into a record. It performs no I/O.
	Normalize(item RawItem) (types.Record, error)
}

// Conn is an open upstream session.
type Conn interface {
	Close() error
}

// NopConn is a session for stateless upstreams such as HTTP APIs.
type NopConn struct{}

// Close implements Conn.
func (NopConn) Close() error { return nil }

// RawItem is one upstream item before normalization.
type RawItem struct {
	// ID is the upstream identifier, used in logs and errors.
	ID string

	// Origin is the item's origin time when the upstream announces it;
	// zero when unknown.
	Origin time.Time

	// Fetched is the time the item was retrieved.
	Fetched time.Time

	// Data is the raw payload (an Atom entry, an RFC 5322 message).
	Data []byte
}

// Window bounds a fetch by origin time. A zero Until is open-ended.
type Window struct {
	Since time.Time
	Until time.Time
}

// Contains reports whether an item with origin t falls in the window. Items
// with an unknown origin are always kept.
func (w Window) Contains(t time.Time) bool {
	if t.IsZero() {
		return true
	}
	if !w.Since.IsZero() && t.Before(w.Since) {
		return false
	}
	if !w.Until.IsZero() && !t.Before(w.Until) {
		return false
	}
	return true
}

// Keep returns the items whose origin falls in the window, preserving order.
func (w Window) Keep(items []RawItem) []RawItem {
	out := items[:0:0]
	for _, it := range items {
		if w.Contains(it.Origin) {
			out = append(out, it)
		}
	}
	return out
}

// Plan is a compiled filter expression.
type Plan struct {
	// Expr is the expression the plan was compiled from.
	Expr filter.Expr

	// Native is the part rendered into the upstream query. Nil means the
	// fetch is unconstrained beyond the window.
	Native filter.Expr

	// Residual is evaluated in memory on normalized records. Nil is true.
	Residual filter.Expr

	// Query is the adapter's rendering of Native, for logs and requests.
	Query string
}

// FullyResidual reports whether nothing was pushed upstream.
func (p Plan) FullyResidual() bool { return p.Native == nil }

// Keep reports whether a normalized record satisfies the plan's residual.
// The kind bindings of the whole expression still apply.
func (p Plan) Keep(r types.Record) bool {
	if p.Expr != nil && !filter.AppliesTo(p.Expr, r.Kind()) {
		return false
	}
	return filter.Eval(p.Residual, r)
}
