// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"time"

	"github.com/pdiddy/watchcat/internal/filter"
	"github.com/pdiddy/watchcat/pkg/types"
)

// ResolveWindow picks the date range of a pull.
//
// Since is the cursor time. Without a time cursor it is the explicit lower
// bound of a top-level after(published) conjunct, or now minus lookback when
// there is none; a fetch is never unbounded. When both a cursor and an
// explicit bound exist, the later one wins. Until is the earliest top-level
// before(published) bound, or open.
func ResolveWindow(expr filter.Expr, cursor types.Cursor, lookback time.Duration, now time.Time) Window {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	lower, upper := explicitBounds(expr)

	var w Window
	if at, ok := cursor.Time(); ok {
		w.Since = at
		if lower.After(at) {
			w.Since = lower
		}
	} else if !lower.IsZero() {
		w.Since = lower
	} else {
		w.Since = now.Add(-lookback)
	}
	w.Until = upper
	return w
}

// explicitBounds scans the top-level conjuncts of expr for unbound
// after/before predicates on the published field. All conjuncts must hold,
// so the latest lower bound and the earliest upper bound apply.
func explicitBounds(expr filter.Expr) (lower, upper time.Time) {
	for _, c := range filter.TopLevel(expr) {
		p, ok := c.(filter.Predicate)
		if !ok || p.Field() != filter.FieldPublished || p.Kind() != "" {
			continue
		}
		switch p.Op() {
		case filter.OpAfter:
			if lower.IsZero() || p.Time().After(lower) {
				lower = p.Time()
			}
		case filter.OpBefore:
			if upper.IsZero() || p.Time().Before(upper) {
				upper = p.Time()
			}
		}
	}
	return lower, upper
}
