// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the shared data structures of the watchcat pull core.
// Implements: canonical records (PaperRecord, MailRecord), cursors, the pull
// error taxonomy, and adapter configuration.
package types

import (
	"strings"
	"time"
)

// Kind identifies a record variant.
type Kind string

const (
	KindPaper Kind = "paper"
	KindMail  Kind = "mail"
)

// Record is the normalized unit of content shared by all sources. Every
// component downstream of a source adapter operates on this interface only.
type Record interface {
	// Kind returns the record variant.
	Kind() Kind

	// ID returns the identifier, unique within the record's source.
	ID() string

	// Source returns the id of the source the record was pulled from.
	Source() string

	// Heading returns the title (papers) or subject (mail).
	Heading() string

	// Content returns the abstract (papers) or body (mail).
	Content() string

	// People returns the authors (papers) or the sender (mail), in order.
	People() []string

	// PublishedAt returns the origin timestamp; zero when absent.
	PublishedAt() time.Time

	// PulledAt returns the time the record was normalized.
	PulledAt() time.Time

	// Files returns the attachment descriptors, possibly empty.
	Files() []Attachment

	// Attr returns variant-specific attribute values by name. The boolean
	// is false when the variant has no such attribute.
	Attr(name string) ([]string, bool)

	// Prompt renders the record as prompt-ready text.
	Prompt() string

	// Flatten serializes the record to a flat string mapping.
	// Unflatten(r.Flatten()) reproduces a record Equal to r.
	Flatten() map[string]string

	// Equal reports structural equality.
	Equal(other Record) bool
}

// Attachment is an opaque descriptor of content attached to a record. The
// content itself is never fetched or decoded by the pull core.
type Attachment struct {
	// Name is the file name as announced by the source.
	Name string `json:"name" yaml:"name"`

	// Ref locates the content (a URL, or a mailbox part reference).
	Ref string `json:"ref" yaml:"ref"`

	// ContentType is the announced MIME type, if any.
	ContentType string `json:"content_type,omitempty" yaml:"content_type,omitempty"`

	// Size is the size in bytes of the part as transferred (still encoded).
	Size int64 `json:"size,omitempty" yaml:"size,omitempty"`
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalAttachments(a, b []Attachment) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// attachmentNames lists the names of atts, for prompt rendering.
func attachmentNames(atts []Attachment) string {
	names := make([]string, 0, len(atts))
	for _, a := range atts {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}
