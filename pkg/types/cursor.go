// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Cursor is the opaque per-source progress marker persisted between pulls.
// The empty cursor means the source has never been pulled.
type Cursor string

// CursorAt returns a time cursor positioned at t.
func CursorAt(t time.Time) Cursor {
	if t.IsZero() {
		return ""
	}
	return Cursor(t.UTC().Format(time.RFC3339Nano))
}

// Time interprets the cursor as a time cursor. The boolean is false for the
// empty cursor or a cursor that does not hold a timestamp.
func (c Cursor) Time() (time.Time, bool) {
	if c == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, string(c))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// IsZero reports whether the cursor is empty.
func (c Cursor) IsZero() bool { return c == "" }

// String returns the cursor text, or "<none>" when empty.
func (c Cursor) String() string {
	if c == "" {
		return "<none>"
	}
	return string(c)
}
