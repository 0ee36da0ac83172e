// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package arxiv

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/watchcat/internal/source"
	"github.com/pdiddy/watchcat/pkg/types"
)

// arXiv Atom feed XML structures.
type feed struct {
	Total   int         `xml:"totalResults"`
	Entries []feedEntry `xml:"entry"`
}

// feedEntry keeps the raw entry XML alongside the fields needed to order and
// identify it before normalization.
type feedEntry struct {
	ID        string `xml:"id"`
	Published string `xml:"published"`
	Inner     []byte `xml:",innerxml"`
}

func (e feedEntry) raw(fetched time.Time) source.RawItem {
	item := source.RawItem{
		ID:      extractArxivID(e.ID),
		Fetched: fetched,
		Data:    append(append([]byte("<entry>"), e.Inner...), "</entry>"...),
	}
	if item.ID == "" {
		item.ID = strings.TrimSpace(e.ID)
	}
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Published)); err == nil {
		item.Origin = t
	}
	return item
}

type entry struct {
	ID         string     `xml:"id"`
	Title      string     `xml:"title"`
	Summary    string     `xml:"summary"`
	Published  string     `xml:"published"`
	Updated    string     `xml:"updated"`
	Authors    []author   `xml:"author"`
	Links      []link     `xml:"link"`
	Categories []category `xml:"category"`
}

type author struct {
	Name string `xml:"name"`
}

type link struct {
	Href  string `xml:"href,attr"`
	Rel   string `xml:"rel,attr"`
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
}

type category struct {
	Term string `xml:"term,attr"`
}

// Normalize parses one raw Atom entry into a PaperRecord.
func (a *Adapter) Normalize(item source.RawItem) (types.Record, error) {
	var e entry
	if err := xml.Unmarshal(item.Data, &e); err != nil {
		return nil, fmt.Errorf("parsing entry: %w", err)
	}

	id := extractArxivID(e.ID)
	if id == "" {
		return nil, fmt.Errorf("entry id %q is not an arXiv abstract URL", e.ID)
	}
	title := collapse(e.Title)
	if title == "" {
		return nil, errors.New("entry has no title")
	}
	published, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Published))
	if err != nil {
		return nil, fmt.Errorf("parsing published date: %w", err)
	}

	p := &types.PaperRecord{
		Identifier: id,
		SourceID:   a.id,
		Title:      title,
		Abstract:   collapse(e.Summary),
		Published:  published,
		Pulled:     item.Fetched,
	}
	if p.Pulled.IsZero() {
		p.Pulled = a.now()
	}
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Updated)); err == nil {
		p.Updated = t
	}
	for _, au := range e.Authors {
		if name := collapse(au.Name); name != "" {
			p.Authors = append(p.Authors, name)
		}
	}
	for _, c := range e.Categories {
		if term := strings.TrimSpace(c.Term); term != "" {
			p.Categories = append(p.Categories, term)
		}
	}
	for _, l := range e.Links {
		switch {
		case l.Title == "pdf" || l.Type == "application/pdf":
			p.PDFLink = l.Href
		case l.Rel == "alternate" || (l.Rel == "" && p.Link == ""):
			p.Link = l.Href
		}
	}
	if p.Link == "" {
		p.Link = "https://arxiv.org/abs/" + id
	}
	if p.PDFLink == "" {
		p.PDFLink = "https://arxiv.org/pdf/" + id
	}
	p.Attachments = []types.Attachment{{
		Name:        id + ".pdf",
		Ref:         p.PDFLink,
		ContentType: "application/pdf",
	}}
	return p, nil
}

func collapse(s string) string { return strings.Join(strings.Fields(s), " ") }

// extractArxivID pulls the arXiv ID from the entry's <id> URL
// (e.g. "http://arxiv.org/abs/2301.07041v1" → "2301.07041",
// "http://arxiv.org/abs/hep-th/9901001v2" → "hep-th/9901001").
func extractArxivID(idURL string) string {
	const prefix = "/abs/"
	idx := strings.Index(idURL, prefix)
	if idx < 0 {
		return ""
	}
	id := strings.TrimSpace(idURL[idx+len(prefix):])

	// Strip version suffix (e.g. "v1", "v2").
	if vIdx := strings.LastIndex(id, "v"); vIdx > 0 {
		if _, err := strconv.Atoi(id[vIdx+1:]); err == nil {
			id = id[:vIdx]
		}
	}
	return id
}
