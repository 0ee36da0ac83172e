// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"strings"
	"time"
)

var _ Record = (*PaperRecord)(nil)

// PaperRecord is a paper pulled from an academic metadata feed.
type PaperRecord struct {
	// Identifier is the versionless feed identifier (e.g. "2301.07041").
	Identifier string `json:"id" yaml:"id"`

	// SourceID is the configured source the paper was pulled from.
	SourceID string `json:"source" yaml:"source"`

	// Title is the paper title.
	Title string `json:"title" yaml:"title"`

	// Abstract is the paper abstract.
	Abstract string `json:"abstract" yaml:"abstract"`

	// Authors lists the paper authors in source order.
	Authors []string `json:"authors" yaml:"authors"`

	// Categories lists subject classifications (e.g. "cs.LG").
	Categories []string `json:"categories,omitempty" yaml:"categories,omitempty"`

	// Published is the first-version submission time.
	Published time.Time `json:"published" yaml:"published"`

	// Updated is the latest-version time.
	Updated time.Time `json:"updated,omitempty" yaml:"updated,omitempty"`

	// Pulled is the time the record was normalized.
	Pulled time.Time `json:"pulled" yaml:"pulled"`

	// Link is the abstract page URL.
	Link string `json:"link" yaml:"link"`

	// PDFLink is the full-text content link.
	PDFLink string `json:"pdf_link" yaml:"pdf_link"`

	// Attachments holds the content descriptors (the PDF).
	Attachments []Attachment `json:"attachments" yaml:"attachments"`
}

func (p *PaperRecord) Kind() Kind             { return KindPaper }
func (p *PaperRecord) ID() string             { return p.Identifier }
func (p *PaperRecord) Source() string         { return p.SourceID }
func (p *PaperRecord) Heading() string        { return p.Title }
func (p *PaperRecord) Content() string        { return p.Abstract }
func (p *PaperRecord) People() []string       { return p.Authors }
func (p *PaperRecord) PublishedAt() time.Time { return p.Published }
func (p *PaperRecord) PulledAt() time.Time    { return p.Pulled }
func (p *PaperRecord) Files() []Attachment    { return p.Attachments }

// Attr exposes category, link, pdf_link, and updated.
func (p *PaperRecord) Attr(name string) ([]string, bool) {
	switch name {
	case "category", "categories":
		return p.Categories, true
	case "link":
		return []string{p.Link}, true
	case "pdf_link":
		return []string{p.PDFLink}, true
	case "updated":
		return []string{formatTime(p.Updated)}, true
	}
	return nil, false
}

// Prompt renders the paper as a heading, metadata lines, and the abstract.
func (p *PaperRecord) Prompt() string {
	var b strings.Builder
	b.WriteString("# " + p.Title + "\n")
	if len(p.Authors) > 0 {
		b.WriteString("Authors: " + strings.Join(p.Authors, ", ") + "\n")
	}
	if len(p.Categories) > 0 {
		b.WriteString("Categories: " + strings.Join(p.Categories, ", ") + "\n")
	}
	if !p.Published.IsZero() {
		b.WriteString("Published: " + p.Published.Format("2006-01-02") + "\n")
	}
	b.WriteString("Link: " + p.Link + "\n\n")
	b.WriteString(p.Abstract)
	return b.String()
}

// Flatten serializes the paper to a flat mapping.
func (p *PaperRecord) Flatten() map[string]string {
	m := flatBase(p)
	m[keyCategories] = encodeList(p.Categories)
	m[keyUpdated] = formatTime(p.Updated)
	m[keyLink] = p.Link
	m[keyPDFLink] = p.PDFLink
	return m
}

// Equal reports whether other is a PaperRecord with the same content.
// Times compare by instant.
func (p *PaperRecord) Equal(other Record) bool {
	o, ok := other.(*PaperRecord)
	if !ok || o == nil {
		return false
	}
	return p.Identifier == o.Identifier &&
		p.SourceID == o.SourceID &&
		p.Title == o.Title &&
		p.Abstract == o.Abstract &&
		equalStrings(p.Authors, o.Authors) &&
		equalStrings(p.Categories, o.Categories) &&
		p.Published.Equal(o.Published) &&
		p.Updated.Equal(o.Updated) &&
		p.Pulled.Equal(o.Pulled) &&
		p.Link == o.Link &&
		p.PDFLink == o.PDFLink &&
		equalAttachments(p.Attachments, o.Attachments)
}

func unflattenPaper(m map[string]string) (Record, error) {
	p := &PaperRecord{
		Identifier: m[keyID],
		SourceID:   m[keySource],
		Title:      m[keyTitle],
		Abstract:   m[keyBody],
		Link:       m[keyLink],
		PDFLink:    m[keyPDFLink],
	}
	var err error
	if p.Authors, err = decodeList(m, keyAuthors); err != nil {
		return nil, err
	}
	if p.Categories, err = decodeList(m, keyCategories); err != nil {
		return nil, err
	}
	if p.Attachments, err = decodeAttachments(m); err != nil {
		return nil, err
	}
	if p.Published, err = parseTime(m, keyPublished); err != nil {
		return nil, err
	}
	if p.Updated, err = parseTime(m, keyUpdated); err != nil {
		return nil, err
	}
	if p.Pulled, err = parseTime(m, keyPulled); err != nil {
		return nil, err
	}
	return p, nil
}
