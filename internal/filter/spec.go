// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package filter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/watchcat/pkg/types"
)

// Spec is the declarative form of an expression as written in config files.
// Exactly one of And, Or, Not, or a leaf (Field/Op/Value) is set.
//
//	and:
//	  - {field: title, op: words, value: "graph neural"}
//	  - not: {field: author, op: contains, value: anonymous}
type Spec struct {
	And   []Spec `json:"and,omitempty" yaml:"and,omitempty"`
	Or    []Spec `json:"or,omitempty" yaml:"or,omitempty"`
	Not   *Spec  `json:"not,omitempty" yaml:"not,omitempty"`
	Field string `json:"field,omitempty" yaml:"field,omitempty"`
	Op    string `json:"op,omitempty" yaml:"op,omitempty"`
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
	Kind  string `json:"kind,omitempty" yaml:"kind,omitempty"`
}

// IsZero reports whether the spec is empty (no filter).
func (s Spec) IsZero() bool {
	return len(s.And) == 0 && len(s.Or) == 0 && s.Not == nil &&
		s.Field == "" && s.Op == "" && s.Value == "" && s.Kind == ""
}

// ParseSpec decodes a YAML filter spec.
func ParseSpec(data []byte) (Spec, error) {
	var s Spec
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Spec{}, fmt.Errorf("parsing filter: %w", err)
	}
	return s, nil
}

// Build turns the spec into an expression. The empty spec builds to nil,
// which matches everything.
func (s Spec) Build() (Expr, error) {
	if s.IsZero() {
		return nil, nil
	}
	return s.build("filter")
}

func (s Spec) build(path string) (Expr, error) {
	set := 0
	if len(s.And) > 0 {
		set++
	}
	if len(s.Or) > 0 {
		set++
	}
	if s.Not != nil {
		set++
	}
	if s.Field != "" || s.Op != "" {
		set++
	}
	if set != 1 {
		return nil, fmt.Errorf("%s: exactly one of and, or, not, or field/op is required", path)
	}

	switch {
	case len(s.And) > 0:
		children, err := buildAll(s.And, path+".and")
		if err != nil {
			return nil, err
		}
		return AllOf(children...), nil
	case len(s.Or) > 0:
		children, err := buildAll(s.Or, path+".or")
		if err != nil {
			return nil, err
		}
		return AnyOf(children...), nil
	case s.Not != nil:
		inner, err := s.Not.build(path + ".not")
		if err != nil {
			return nil, err
		}
		return Not(inner), nil
	}
	p, err := s.leaf()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func buildAll(specs []Spec, path string) ([]Expr, error) {
	out := make([]Expr, 0, len(specs))
	for i, c := range specs {
		e, err := c.build(fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s Spec) leaf() (Predicate, error) {
	op := Op(strings.ToLower(strings.TrimSpace(s.Op)))
	field := ParseField(s.Field)
	if field == "" && op != OpHasAttachment {
		return Predicate{}, errors.New("field is required")
	}

	var p Predicate
	switch op {
	case OpEquals, OpContains, OpWords:
		if s.Value == "" {
			return Predicate{}, fmt.Errorf("%s on %s: value is required", op, field)
		}
		p = Predicate{field: field, op: op, text: s.Value}
	case OpAfter, OpBefore:
		t, err := ParseTime(s.Value)
		if err != nil {
			return Predicate{}, fmt.Errorf("%s on %s: %w", op, field, err)
		}
		p = Predicate{field: field, op: op, at: t}
	case OpHasAttachment:
		want := true
		if s.Value != "" {
			b, err := strconv.ParseBool(s.Value)
			if err != nil {
				return Predicate{}, fmt.Errorf("has_attachment: value %q is not a boolean", s.Value)
			}
			want = b
		}
		p = HasAttachment(want)
	case "":
		return Predicate{}, errors.New("op is required")
	default:
		return Predicate{}, fmt.Errorf("unknown operator %q", s.Op)
	}
	if s.Kind != "" {
		p = p.For(types.Kind(strings.ToLower(s.Kind)))
	}
	return p, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05 -0700 MST",
	"2006-01-02",
}

// ParseTime parses a filter time value: RFC 3339, a date-time without zone,
// or a bare date (2006-01-02). Values without a zone are UTC.
func ParseTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("time value is required")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q (want RFC 3339 or 2006-01-02)", v)
}
