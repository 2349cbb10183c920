// Package memory records delivered alert batches for inspection in tests.
package memory

import (
	"context"
	"sync"
)

// Sink stores every delivered batch.
type Sink struct {
	mu      sync.RWMutex
	batches [][]string
}

// New returns an empty Sink.
func New() *Sink {
	return &Sink{}
}

// Deliver records a copy of alerts. Empty batches are recorded too.
func (s *Sink) Deliver(_ context.Context, alerts []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]string{}, alerts...))
	return nil
}

// Batches returns copies of the recorded batches.
func (s *Sink) Batches() [][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([][]string, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]string{}, b...)
	}
	return out
}

// Alerts returns every recorded alert in delivery order.
func (s *Sink) Alerts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}
