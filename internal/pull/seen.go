// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pull

// DefaultSeenWindow is the number of identifiers a source remembers when its
// configuration sets no window.
const DefaultSeenWindow = 5000

// SeenSet is an insertion-ordered set of record identifiers. Prune evicts
// the oldest entries first.
type SeenSet struct {
	order []string
	index map[string]struct{}
}

// NewSeenSet returns a set holding ids in the given order. Repeated ids keep
// their first position.
func NewSeenSet(ids []string) *SeenSet {
	s := &SeenSet{index: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Has reports whether id is in the set.
func (s *SeenSet) Has(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Add inserts id and reports whether it was new.
func (s *SeenSet) Add(id string) bool {
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

// Len returns the number of identifiers held.
func (s *SeenSet) Len() int { return len(s.order) }

// Prune drops the oldest identifiers until at most window remain. A window
// of zero or less uses DefaultSeenWindow.
func (s *SeenSet) Prune(window int) {
	if window <= 0 {
		window = DefaultSeenWindow
	}
	if len(s.order) <= window {
		return
	}
	drop := len(s.order) - window
	for _, id := range s.order[:drop] {
		delete(s.index, id)
	}
	s.order = append([]string(nil), s.order[drop:]...)
}

// IDs returns the identifiers oldest first.
func (s *SeenSet) IDs() []string {
	return append([]string(nil), s.order...)
}
