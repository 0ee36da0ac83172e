// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/watchcat/pkg/types"
)

func paper() *types.PaperRecord {
	return &types.PaperRecord{
		Identifier: "2401.00001",
		SourceID:   "arxiv",
		Title:      "Graph Neural Networks for Weather",
		Abstract:   "We forecast weather with message-passing networks.",
		Authors:    []string{"Ada Lovelace", "Alan Turing"},
		Categories: []string{"cs.LG", "physics.ao-ph"},
		Published:  time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC),
		Pulled:     time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC),
	}
}

func mail() *types.MailRecord {
	return &types.MailRecord{
		Identifier: "m1@example.org",
		SourceID:   "inbox",
		UID:        "7",
		Folder:     "INBOX",
		Subject:    "Invoice March",
		Body:       "Please find the invoice attached.",
		Sender:     "billing@example.org",
		Received:   time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC),
		Attachments: []types.Attachment{
			{Name: "invoice.pdf", Ref: "mailbox://h/INBOX/7#part=2"},
		},
	}
}

func TestPredicates(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 12, 0, 0, 0, time.UTC) }

	tests := []struct {
		name string
		expr Expr
		rec  types.Record
		want bool
	}{
		{"equals ignores case", Equals(FieldID, "2401.00001"), paper(), true},
		{"equals is exact", Equals(FieldTitle, "graph neural"), paper(), false},
		{"contains substring", Contains(FieldTitle, "NEURAL net"), paper(), true},
		{"contains on list", Contains(FieldAuthor, "turing"), paper(), true},
		{"contains misses", Contains(FieldBody, "climate"), paper(), false},
		{"words whole words", Words(FieldTitle, "weather graph"), paper(), true},
		{"words rejects partial", Words(FieldTitle, "network"), paper(), false},
		{"words on hyphenated body", Words(FieldBody, "message passing"), paper(), true},
		{"after inclusive", After(FieldPublished, day(10)), paper(), true},
		{"after later", After(FieldPublished, day(11)), paper(), false},
		{"before strict", Before(FieldPublished, day(10)), paper(), false},
		{"before later", Before(FieldPublished, day(11)), paper(), true},
		{"attr category", Equals("category", "CS.lg"), paper(), true},
		{"attr missing on variant", Equals("folder", "INBOX"), paper(), false},
		{"attr folder on mail", Equals("folder", "inbox"), mail(), true},
		{"has attachment", HasAttachment(true), mail(), true},
		{"lacks attachment", HasAttachment(false), paper(), true},
		{"attachment name", Contains(FieldAttachment, ".pdf"), mail(), true},
		{"time op on text field", After(FieldTitle, day(1)), paper(), false},
		{"text op on time field", Contains(FieldPublished, "2024"), paper(), false},
		{"has_attachment on other field", Predicate{field: FieldTitle, op: OpHasAttachment, flag: true}, mail(), false},
		{"unknown op", Predicate{field: FieldTitle, op: "regex", text: "."}, paper(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.expr.Matches(tt.rec), tt.expr.String())
		})
	}
}

func TestUndatedMail(t *testing.T) {
	m := mail()
	m.Received = time.Time{}
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.False(t, After(FieldPublished, at).Matches(m))
	assert.False(t, Before(FieldPublished, at).Matches(m))
	assert.True(t, Not(After(FieldPublished, at)).Matches(m))
}

func TestCombinators(t *testing.T) {
	yes := Contains(FieldTitle, "graph")
	no := Contains(FieldTitle, "invoice")

	assert.True(t, And(yes, yes).Matches(paper()))
	assert.False(t, And(yes, no).Matches(paper()))
	assert.True(t, Or(no, yes).Matches(paper()))
	assert.False(t, Or(no, no).Matches(paper()))
	assert.True(t, Not(no).Matches(paper()))

	assert.Equal(t, yes, And(nil, yes))
	assert.Nil(t, AllOf())
	assert.True(t, Match(nil, paper()))
	assert.True(t, Match(AllOf(yes, nil, Not(no)), paper()))
	assert.False(t, Match(AnyOf(no, nil, no), paper()))
}

func TestDoubleNegation(t *testing.T) {
	exprs := []Expr{
		Contains(FieldTitle, "graph"),
		Equals("category", "cs.LG").For(types.KindPaper),
		Contains(FieldTitle, "invoice").For(types.KindMail),
		Or(HasAttachment(true), Words(FieldBody, "forecast")),
		And(After(FieldPublished, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)), Contains(FieldAuthor, "x")),
	}
	records := []types.Record{paper(), mail()}
	for _, e := range exprs {
		for _, r := range records {
			assert.Equal(t, e.Matches(r), Not(Not(e)).Matches(r), "%s on %s", e, r.Kind())
		}
	}
}

func TestKindBinding(t *testing.T) {
	onlyMail := Contains(FieldTitle, "invoice").For(types.KindMail)

	assert.True(t, onlyMail.Matches(mail()))
	assert.False(t, onlyMail.Matches(paper()), "bound to another kind")
	assert.False(t, Not(onlyMail).Matches(paper()), "negation does not flip a kind mismatch")
	assert.Equal(t, []types.Kind{types.KindMail}, Kinds(onlyMail))
	assert.Empty(t, Kinds(Contains(FieldTitle, "x")))
	assert.True(t, AppliesTo(Contains(FieldTitle, "x"), types.KindPaper))
	assert.False(t, AppliesTo(onlyMail, types.KindPaper))

	either := Or(onlyMail, Equals("category", "cs.LG").For(types.KindPaper))
	assert.True(t, either.Matches(paper()))
	assert.True(t, either.Matches(mail()))
}

type countingExpr struct {
	Predicate
	calls *int
}

func (c countingExpr) eval(r types.Record) bool {
	*c.calls++
	return c.Predicate.eval(r)
}

func TestShortCircuit(t *testing.T) {
	calls := 0
	probe := countingExpr{Predicate: Contains(FieldTitle, "graph"), calls: &calls}

	And(Contains(FieldTitle, "invoice"), probe).Matches(paper())
	assert.Zero(t, calls)

	Or(Contains(FieldTitle, "graph"), probe).Matches(paper())
	assert.Zero(t, calls)

	And(Contains(FieldTitle, "graph"), probe).Matches(paper())
	assert.Equal(t, 1, calls)
}

func TestTopLevel(t *testing.T) {
	a, b, c := Contains(FieldTitle, "a"), Contains(FieldTitle, "b"), Contains(FieldTitle, "c")
	assert.Equal(t, []Expr{a, b, c}, TopLevel(AllOf(a, b, c)))
	or := Or(a, b)
	assert.Equal(t, []Expr{or}, TopLevel(or))
	assert.Nil(t, TopLevel(nil))
}

func TestString(t *testing.T) {
	e := And(Words(FieldTitle, "graph"), Not(Equals("category", "cs.CV").For(types.KindPaper)))
	assert.Equal(t, `(title words "graph" AND NOT paper:category equals "cs.CV")`, e.String())
}

func TestParseField(t *testing.T) {
	assert.Equal(t, FieldTitle, ParseField("Subject"))
	assert.Equal(t, FieldBody, ParseField("abstract"))
	assert.Equal(t, FieldAuthor, ParseField("sender"))
	assert.Equal(t, FieldPublished, ParseField("date"))
	assert.Equal(t, Field("category"), ParseField(" Category "))
}

func TestSpecBuild(t *testing.T) {
	data := []byte(`
and:
  - {field: subject, op: contains, value: arXiv}
  - or:
      - {field: author, op: words, value: "ada"}
      - {field: author, op: words, value: "alan"}
      - {field: author, op: words, value: "grace"}
  - not: {op: has_attachment}
  - {field: date, op: after, value: 2024-01-01}
  - {field: category, op: equals, value: cs.LG, kind: paper}
`)
	s, err := ParseSpec(data)
	require.NoError(t, err)
	e, err := s.Build()
	require.NoError(t, err)

	conj := TopLevel(e)
	require.Len(t, conj, 5)
	assert.Equal(t, Contains(FieldTitle, "arXiv"), conj[0])

	// Three-way or folds left.
	or, ok := conj[1].(OrExpr)
	require.True(t, ok)
	_, leftIsOr := or.Left().(OrExpr)
	assert.True(t, leftIsOr)

	assert.Equal(t, Not(HasAttachment(true)), conj[2])
	assert.Equal(t, After(FieldPublished, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)), conj[3])
	assert.Equal(t, types.KindPaper, conj[4].(Predicate).Kind())

	p := paper()
	p.Title = "arXiv digest"
	assert.True(t, e.Matches(p))
}

func TestSpecBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		spec string
	}{
		{"mixed node", "{field: title, op: contains, value: x, not: {field: body, op: contains, value: y}}"},
		{"unknown op", "{field: title, op: regex, value: x}"},
		{"missing op", "{field: title, value: x}"},
		{"missing value", "{field: title, op: contains}"},
		{"bad time", "{field: date, op: after, value: yesterday}"},
		{"bad bool", "{op: has_attachment, value: maybe}"},
		{"nested error", "and: [{field: title, op: contains, value: x}, {op: words}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseSpec([]byte(tt.spec))
			require.NoError(t, err)
			_, err = s.Build()
			assert.Error(t, err)
		})
	}
}

func TestEmptySpec(t *testing.T) {
	var s Spec
	assert.True(t, s.IsZero())
	e, err := s.Build()
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestParseTime(t *testing.T) {
	got, err := ParseTime("2024-02-03T04:05:06+02:00")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 2, 3, 2, 5, 6, 0, time.UTC)))

	got, err = ParseTime("2024-02-03")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC), got)

	_, err = ParseTime("")
	assert.Error(t, err)
}
