// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package arxiv

import (
	"strings"
	"time"

	"github.com/pdiddy/watchcat/internal/filter"
	"github.com/pdiddy/watchcat/internal/source"
)

// submittedDate ranges use minute granularity.
const dateLayout = "200601021504"

// openEnd closes a submittedDate range with no upper bound.
const openEnd = "999912312359"

// Translator maps filter predicates onto arXiv search fields. arXiv search is
// tokenized and stemmed, so word searches are relaxations of in-memory word
// matching; substring matching has no arXiv counterpart.
type Translator struct{}

var wordPrefixes = map[filter.Field]string{
	filter.FieldTitle:  "ti",
	filter.FieldBody:   "abs",
	filter.FieldAuthor: "au",
}

// Translate implements source.Translator.
func (Translator) Translate(p filter.Predicate) (filter.Predicate, source.Translation) {
	switch p.Op() {
	case filter.OpWords:
		if _, ok := wordPrefixes[p.Field()]; ok && len(filter.Tokenize(p.Text())) > 0 {
			return p, source.Superset
		}
	case filter.OpEquals:
		if isCategory(p.Field()) && validCategory(p.Text()) {
			return p, source.Exact
		}
	case filter.OpAfter:
		if p.Field() == filter.FieldPublished {
			return filter.After(filter.FieldPublished, floorMinute(p.Time())), source.Superset
		}
	case filter.OpBefore:
		if p.Field() == filter.FieldPublished {
			return filter.Before(filter.FieldPublished, floorMinute(p.Time()).Add(time.Minute)), source.Superset
		}
	}
	return p, source.Untranslatable
}

func (Translator) SupportsOr() bool  { return true }
func (Translator) SupportsNot() bool { return false }

func isCategory(f filter.Field) bool { return f == "category" || f == "categories" }

// validCategory rejects values that would break out of a cat: term.
func validCategory(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && !strings.ContainsAny(s, " ()\"")
}

func floorMinute(t time.Time) time.Time { return t.UTC().Truncate(time.Minute) }

// Render writes a native expression as an arXiv search_query. Nil renders
// as the empty string.
func Render(e filter.Expr) string {
	if e == nil {
		return ""
	}
	switch n := e.(type) {
	case filter.AndExpr:
		return "(" + Render(n.Left()) + " AND " + Render(n.Right()) + ")"
	case filter.OrExpr:
		return "(" + Render(n.Left()) + " OR " + Render(n.Right()) + ")"
	case filter.Predicate:
		return renderPredicate(n)
	}
	return ""
}

func renderPredicate(p filter.Predicate) string {
	switch p.Op() {
	case filter.OpWords:
		prefix := wordPrefixes[p.Field()]
		terms := filter.Tokenize(p.Text())
		for i, t := range terms {
			terms[i] = prefix + ":" + t
		}
		if len(terms) == 1 {
			return terms[0]
		}
		return "(" + strings.Join(terms, " AND ") + ")"
	case filter.OpEquals:
		return "cat:" + strings.TrimSpace(p.Text())
	case filter.OpAfter:
		return "submittedDate:[" + p.Time().UTC().Format(dateLayout) + " TO " + openEnd + "]"
	case filter.OpBefore:
		return "submittedDate:[000001010000 TO " + p.Time().UTC().Format(dateLayout) + "]"
	}
	return ""
}

// buildQuery ANDs the window, the configured categories, and the rendered
// native filter.
func buildQuery(native string, categories []string, w source.Window) string {
	var parts []string

	since := "000001010000"
	if !w.Since.IsZero() {
		since = floorMinute(w.Since).Format(dateLayout)
	}
	until := openEnd
	if !w.Until.IsZero() {
		until = floorMinute(w.Until).Add(time.Minute).Format(dateLayout)
	}
	parts = append(parts, "submittedDate:["+since+" TO "+until+"]")

	var cats []string
	for _, c := range categories {
		if c = strings.TrimSpace(c); c != "" {
			cats = append(cats, "cat:"+c)
		}
	}
	switch len(cats) {
	case 0:
	case 1:
		parts = append(parts, cats[0])
	default:
		parts = append(parts, "("+strings.Join(cats, " OR ")+")")
	}

	if native != "" {
		parts = append(parts, native)
	}
	return strings.Join(parts, " AND ")
}
