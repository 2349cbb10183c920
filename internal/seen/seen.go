// Package seen tracks product ids that already produced an alert.
package seen

import "sync"

// Default bounds for the set: once more than DefaultCap ids are held, the oldest
// are evicted until DefaultRetain remain.
const (
	DefaultCap    = 2000
	DefaultRetain = 1000
)

// Set is an insertion-ordered set of ids with FIFO trimming.
type Set struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	order []string
}

// New returns an empty Set.
func New() *Set {
	return &Set{ids: make(map[string]struct{})}
}

// Contains reports whether id is in the set.
func (s *Set) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Add inserts id and reports whether it was new.
func (s *Set) Add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

// Len returns the number of ids held.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Trim evicts the oldest ids down to retain when the set holds more than limit.
// It returns the number of evicted ids.
func (s *Set) Trim(limit, retain int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) <= limit {
		return 0
	}
	if retain < 0 {
		retain = 0
	}
	evict := len(s.order) - retain
	for _, id := range s.order[:evict] {
		delete(s.ids, id)
	}
	s.order = append([]string(nil), s.order[evict:]...)
	return evict
}
