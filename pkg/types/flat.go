// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Flat mapping keys. List-valued fields are JSON arrays so values may contain
// any character, including commas and newlines.
const (
	keyKind        = "kind"
	keyID          = "id"
	keySource      = "source"
	keyTitle       = "title"
	keyBody        = "body"
	keyAuthors     = "authors"
	keyPublished   = "published"
	keyPulled      = "pulled"
	keyAttachments = "attachments"
	keyCategories  = "categories"
	keyUpdated     = "updated"
	keyLink        = "link"
	keyPDFLink     = "pdf_link"
	keyUID         = "uid"
	keyFolder      = "folder"
	keyRecipients  = "recipients"
)

// UnflattenFunc rebuilds a record variant from its flat mapping.
type UnflattenFunc func(map[string]string) (Record, error)

var (
	kindsMu sync.RWMutex
	kinds   = map[Kind]UnflattenFunc{
		KindPaper: unflattenPaper,
		KindMail:  unflattenMail,
	}
)

// RegisterKind makes a record variant known to Unflatten. Registering an
// existing kind replaces its decoder.
func RegisterKind(k Kind, fn UnflattenFunc) {
	kindsMu.Lock()
	defer kindsMu.Unlock()
	kinds[k] = fn
}

// Unflatten rebuilds a record from a mapping produced by Record.Flatten.
func Unflatten(m map[string]string) (Record, error) {
	k := Kind(m[keyKind])
	kindsMu.RLock()
	fn, ok := kinds[k]
	kindsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unflatten: unknown record kind %q", k)
	}
	r, err := fn(m)
	if err != nil {
		return nil, fmt.Errorf("unflatten %s %q: %w", k, m[keyID], err)
	}
	return r, nil
}

// flatBase writes the fields every variant shares.
func flatBase(r Record) map[string]string {
	return map[string]string{
		keyKind:        string(r.Kind()),
		keyID:          r.ID(),
		keySource:      r.Source(),
		keyTitle:       r.Heading(),
		keyBody:        r.Content(),
		keyAuthors:     encodeList(r.People()),
		keyPublished:   formatTime(r.PublishedAt()),
		keyPulled:      formatTime(r.PulledAt()),
		keyAttachments: encodeAttachments(r.Files()),
	}
}

func encodeList(values []string) string {
	if values == nil {
		values = []string{}
	}
	data, _ := json.Marshal(values)
	return string(data)
}

func decodeList(m map[string]string, key string) ([]string, error) {
	raw, ok := m[key]
	if !ok || raw == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	return out, nil
}

func encodeAttachments(atts []Attachment) string {
	if atts == nil {
		atts = []Attachment{}
	}
	data, _ := json.Marshal(atts)
	return string(data)
}

func decodeAttachments(m map[string]string) ([]Attachment, error) {
	raw := m[keyAttachments]
	if raw == "" {
		return nil, nil
	}
	var out []Attachment
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", keyAttachments, err)
	}
	return out, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func parseTime(m map[string]string, key string) (time.Time, error) {
	raw := m[key]
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", key, err)
	}
	return t, nil
}
