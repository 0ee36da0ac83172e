// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"github.com/pdiddy/watchcat/internal/filter"
	"github.com/pdiddy/watchcat/pkg/types"
)

// Translation grades how faithfully an upstream evaluates a predicate.
type Translation int

const (
	// Untranslatable predicates are evaluated only in memory.
	Untranslatable Translation = iota

	// Superset predicates are replaced upstream by a relaxation that
	// matches at least everything the original does. The original is
	// re-checked in memory.
	Superset

	// Exact predicates are evaluated upstream with identical semantics.
	Exact
)

func (t Translation) String() string {
	switch t {
	case Exact:
		return "exact"
	case Superset:
		return "superset"
	}
	return "untranslatable"
}

// Translator describes what an upstream query language can express.
type Translator interface {
	// Translate returns the predicate to send upstream in place of p and
	// how faithful it is. The returned predicate is ignored for
	// Untranslatable.
	Translate(p filter.Predicate) (filter.Predicate, Translation)

	// SupportsOr reports whether the query language has disjunction.
	SupportsOr() bool

	// SupportsNot reports whether the query language has negation.
	SupportsNot() bool
}

// Partition splits expr for an adapter producing records of kind k. The
// result satisfies, for every record r of kind k:
//
//	expr matches r  implies  Native matches r
//	expr matches r  iff      Native and Residual both match r
//
// A nil translator, or an expression bound to other kinds, yields a fully
// residual plan.
func Partition(expr filter.Expr, k types.Kind, tr Translator) Plan {
	if expr == nil {
		return Plan{}
	}
	if tr == nil || !filter.AppliesTo(expr, k) {
		return Plan{Expr: expr, Residual: expr}
	}
	p := partitioner{kind: k, tr: tr}
	native, residual, _ := p.split(expr)
	return Plan{Expr: expr, Native: native, Residual: residual}
}

type partitioner struct {
	kind types.Kind
	tr   Translator
}

// split returns the native and residual parts of e (nil meaning true) and
// whether the native part alone is equivalent to e.
func (p partitioner) split(e filter.Expr) (native, residual filter.Expr, exact bool) {
	switch n := e.(type) {
	case filter.Predicate:
		if n.Kind() != "" && n.Kind() != p.kind {
			return nil, n, false
		}
		q, t := p.tr.Translate(n)
		switch t {
		case Exact:
			return q, nil, true
		case Superset:
			return q, n, false
		}
		return nil, n, false

	case filter.AndExpr:
		ln, lr, lx := p.split(n.Left())
		rn, rr, rx := p.split(n.Right())
		return filter.And(ln, rn), filter.And(lr, rr), lx && rx

	case filter.OrExpr:
		if !p.tr.SupportsOr() {
			return nil, n, false
		}
		ln, _, lx := p.split(n.Left())
		rn, _, rx := p.split(n.Right())
		if ln == nil || rn == nil {
			return nil, n, false
		}
		if lx && rx {
			return filter.Or(ln, rn), nil, true
		}
		return filter.Or(ln, rn), n, false

	case filter.NotExpr:
		in, _, ix := p.split(n.Inner())
		if ix && p.tr.SupportsNot() {
			return filter.Not(in), nil, true
		}
		return nil, n, false
	}
	return nil, e, false
}

// Residual is a Translator that pushes nothing upstream.
type Residual struct{}

func (Residual) Translate(p filter.Predicate) (filter.Predicate, Translation) {
	return p, Untranslatable
}
func (Residual) SupportsOr() bool  { return false }
func (Residual) SupportsNot() bool { return false }
