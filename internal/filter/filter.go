// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package filter is the boolean predicate algebra evaluated against
// canonical records. Expressions are immutable trees of predicates joined by
// And, Or, and Not; they evaluate in memory with Matches and are split into
// native and residual parts by the query compiler in package source.
package filter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pdiddy/watchcat/pkg/types"
)

// Field names a record attribute a predicate tests.
type Field string

// Canonical fields. Any other field name resolves through Record.Attr.
const (
	FieldID         Field = "id"
	FieldTitle      Field = "title"
	FieldBody       Field = "body"
	FieldAuthor     Field = "author"
	FieldPublished  Field = "published"
	FieldAttachment Field = "attachment"
)

var fieldAliases = map[string]Field{
	"id":          FieldID,
	"title":       FieldTitle,
	"subject":     FieldTitle,
	"body":        FieldBody,
	"abstract":    FieldBody,
	"author":      FieldAuthor,
	"authors":     FieldAuthor,
	"sender":      FieldAuthor,
	"from":        FieldAuthor,
	"published":   FieldPublished,
	"date":        FieldPublished,
	"attachment":  FieldAttachment,
	"attachments": FieldAttachment,
}

// ParseField maps a field name or alias to its canonical Field. Unknown
// names are returned lowercased and resolve through Record.Attr.
func ParseField(name string) Field {
	n := strings.ToLower(strings.TrimSpace(name))
	if f, ok := fieldAliases[n]; ok {
		return f
	}
	return Field(n)
}

// Op is a predicate operator.
type Op string

const (
	OpEquals        Op = "equals"
	OpContains      Op = "contains"
	OpWords         Op = "words"
	OpAfter         Op = "after"
	OpBefore        Op = "before"
	OpHasAttachment Op = "has_attachment"
)

// Expr is a filter expression. The set of node types is closed: Predicate,
// AndExpr, OrExpr, and NotExpr.
type Expr interface {
	// Matches reports whether r satisfies the expression. A record whose
	// kind is not among the kinds the expression is bound to never matches.
	Matches(r types.Record) bool

	// String renders the expression for logs and diagnostics.
	String() string

	eval(r types.Record) bool
	collectKinds(set map[types.Kind]struct{})
}

// Match evaluates e against r. The nil expression matches everything.
func Match(e Expr, r types.Record) bool {
	if e == nil {
		return true
	}
	return e.Matches(r)
}

// Kinds returns the record kinds e is bound to, sorted. An empty result
// means the expression applies to every kind.
func Kinds(e Expr) []types.Kind {
	if e == nil {
		return nil
	}
	set := map[types.Kind]struct{}{}
	e.collectKinds(set)
	out := make([]types.Kind, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AppliesTo reports whether e can match records of kind k at all.
func AppliesTo(e Expr, k types.Kind) bool {
	ks := Kinds(e)
	if len(ks) == 0 {
		return true
	}
	for _, bound := range ks {
		if bound == k {
			return true
		}
	}
	return false
}

// Eval evaluates e against r without the root kind gate. Leaf kind bindings
// still apply. The query compiler uses it to evaluate residual subtrees under
// the gate of the expression they were split from. The nil expression is
// true.
func Eval(e Expr, r types.Record) bool {
	if e == nil {
		return true
	}
	return e.eval(r)
}

func gate(e Expr, r types.Record) bool {
	return AppliesTo(e, r.Kind()) && e.eval(r)
}

// Predicate is a leaf test of one field.
type Predicate struct {
	field Field
	op    Op
	text  string
	at    time.Time
	flag  bool
	kind  types.Kind
}

// Equals matches when the field equals value, ignoring case.
func Equals(f Field, value string) Predicate {
	return Predicate{field: f, op: OpEquals, text: value}
}

// Contains matches when the field contains value, ignoring case.
func Contains(f Field, value string) Predicate {
	return Predicate{field: f, op: OpContains, text: value}
}

// Words matches when every whitespace-separated word of value appears in
// the field as a whole word, ignoring case.
func Words(f Field, value string) Predicate {
	return Predicate{field: f, op: OpWords, text: value}
}

// After matches when the field time is at or after t.
func After(f Field, t time.Time) Predicate {
	return Predicate{field: f, op: OpAfter, at: t}
}

// Before matches when the field time is strictly before t.
func Before(f Field, t time.Time) Predicate {
	return Predicate{field: f, op: OpBefore, at: t}
}

// HasAttachment matches records that have (want=true) or lack (want=false)
// attachments.
func HasAttachment(want bool) Predicate {
	return Predicate{field: FieldAttachment, op: OpHasAttachment, flag: want}
}

// For binds the predicate to a record kind.
func (p Predicate) For(k types.Kind) Predicate {
	p.kind = k
	return p
}

func (p Predicate) Field() Field     { return p.field }
func (p Predicate) Op() Op           { return p.op }
func (p Predicate) Text() string     { return p.text }
func (p Predicate) Time() time.Time  { return p.at }
func (p Predicate) Flag() bool       { return p.flag }
func (p Predicate) Kind() types.Kind { return p.kind }

// Matches implements Expr.
func (p Predicate) Matches(r types.Record) bool { return gate(p, r) }

func (p Predicate) collectKinds(set map[types.Kind]struct{}) {
	if p.kind != "" {
		set[p.kind] = struct{}{}
	}
}

func (p Predicate) eval(r types.Record) bool {
	if p.kind != "" && p.kind != r.Kind() {
		return false
	}
	switch p.op {
	case OpHasAttachment:
		if p.field != FieldAttachment {
			return false
		}
		return (len(r.Files()) > 0) == p.flag
	case OpAfter, OpBefore:
		return anyTime(p.times(r), func(t time.Time) bool {
			if p.op == OpAfter {
				return !t.Before(p.at)
			}
			return t.Before(p.at)
		})
	case OpEquals:
		return anyText(p.values(r), func(v string) bool {
			return strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(p.text))
		})
	case OpContains:
		needle := strings.ToLower(p.text)
		return anyText(p.values(r), func(v string) bool {
			return strings.Contains(strings.ToLower(v), needle)
		})
	case OpWords:
		want := Tokenize(p.text)
		return anyText(p.values(r), func(v string) bool {
			return containsWords(Tokenize(v), want)
		})
	}
	return false
}

// values returns the text values of the field, or nil when the field has
// no text form.
func (p Predicate) values(r types.Record) []string {
	switch p.field {
	case FieldID:
		return []string{r.ID()}
	case FieldTitle:
		return []string{r.Heading()}
	case FieldBody:
		return []string{r.Content()}
	case FieldAuthor:
		return r.People()
	case FieldAttachment:
		files := r.Files()
		names := make([]string, 0, len(files))
		for _, f := range files {
			names = append(names, f.Name)
		}
		return names
	case FieldPublished:
		return nil
	}
	vals, ok := r.Attr(string(p.field))
	if !ok {
		return nil
	}
	return vals
}

// times returns the time values of the field. Attribute values that do not
// parse as RFC 3339 are ignored.
func (p Predicate) times(r types.Record) []time.Time {
	if p.field == FieldPublished {
		if t := r.PublishedAt(); !t.IsZero() {
			return []time.Time{t}
		}
		return nil
	}
	switch p.field {
	case FieldID, FieldTitle, FieldBody, FieldAuthor, FieldAttachment:
		return nil
	}
	vals, ok := r.Attr(string(p.field))
	if !ok {
		return nil
	}
	var out []time.Time
	for _, v := range vals {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			out = append(out, t)
		}
	}
	return out
}

func anyText(vals []string, fn func(string) bool) bool {
	for _, v := range vals {
		if fn(v) {
			return true
		}
	}
	return false
}

func anyTime(vals []time.Time, fn func(time.Time) bool) bool {
	for _, v := range vals {
		if fn(v) {
			return true
		}
	}
	return false
}

// Tokenize lowercases s and splits it into words of letters and digits.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsWords(have, want []string) bool {
	if len(want) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(have))
	for _, w := range have {
		set[w] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}

// String implements Expr.
func (p Predicate) String() string {
	var b strings.Builder
	if p.kind != "" {
		b.WriteString(string(p.kind) + ":")
	}
	switch p.op {
	case OpHasAttachment:
		fmt.Fprintf(&b, "has_attachment(%s)", strconv.FormatBool(p.flag))
	case OpAfter, OpBefore:
		fmt.Fprintf(&b, "%s %s %s", p.field, p.op, p.at.Format(time.RFC3339))
	default:
		fmt.Fprintf(&b, "%s %s %q", p.field, p.op, p.text)
	}
	return b.String()
}

// AndExpr is the conjunction of two expressions.
type AndExpr struct{ left, right Expr }

// OrExpr is the disjunction of two expressions.
type OrExpr struct{ left, right Expr }

// NotExpr is the negation of an expression.
type NotExpr struct{ inner Expr }

// And joins two expressions. A nil operand is treated as always true.
func And(a, b Expr) Expr {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return AndExpr{left: a, right: b}
}

// Or joins two expressions. Both operands must be non-nil.
func Or(a, b Expr) Expr {
	return OrExpr{left: a, right: b}
}

// Not negates e.
func Not(e Expr) Expr {
	return NotExpr{inner: e}
}

// AllOf folds exprs left with And. Nil entries are skipped; the result is
// nil (always true) when nothing remains.
func AllOf(exprs ...Expr) Expr {
	var out Expr
	for _, e := range exprs {
		out = And(out, e)
	}
	return out
}

// AnyOf folds exprs left with Or. Nil entries are skipped.
func AnyOf(exprs ...Expr) Expr {
	var out Expr
	for _, e := range exprs {
		switch {
		case e == nil:
		case out == nil:
			out = e
		default:
			out = Or(out, e)
		}
	}
	return out
}

func (a AndExpr) Left() Expr  { return a.left }
func (a AndExpr) Right() Expr { return a.right }
func (o OrExpr) Left() Expr   { return o.left }
func (o OrExpr) Right() Expr  { return o.right }
func (n NotExpr) Inner() Expr { return n.inner }

func (a AndExpr) Matches(r types.Record) bool { return gate(a, r) }
func (o OrExpr) Matches(r types.Record) bool  { return gate(o, r) }
func (n NotExpr) Matches(r types.Record) bool { return gate(n, r) }

func (a AndExpr) eval(r types.Record) bool { return a.left.eval(r) && a.right.eval(r) }
func (o OrExpr) eval(r types.Record) bool  { return o.left.eval(r) || o.right.eval(r) }
func (n NotExpr) eval(r types.Record) bool { return !n.inner.eval(r) }

func (a AndExpr) collectKinds(set map[types.Kind]struct{}) {
	a.left.collectKinds(set)
	a.right.collectKinds(set)
}

func (o OrExpr) collectKinds(set map[types.Kind]struct{}) {
	o.left.collectKinds(set)
	o.right.collectKinds(set)
}

func (n NotExpr) collectKinds(set map[types.Kind]struct{}) { n.inner.collectKinds(set) }

func (a AndExpr) String() string { return "(" + a.left.String() + " AND " + a.right.String() + ")" }
func (o OrExpr) String() string  { return "(" + o.left.String() + " OR " + o.right.String() + ")" }
func (n NotExpr) String() string { return "NOT " + n.inner.String() }

// TopLevel returns the conjuncts of e: the operands reached by descending
// through AndExpr nodes only.
func TopLevel(e Expr) []Expr {
	if e == nil {
		return nil
	}
	if a, ok := e.(AndExpr); ok {
		return append(TopLevel(a.left), TopLevel(a.right)...)
	}
	return []Expr{e}
}
