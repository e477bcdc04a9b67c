package filter

import (
	"encoding/json"
	"maps"
	"sync"
)

// Sink holds the active filters of a player, at most one per kind.
// A kind that is absent is left at the node's default. Safe for concurrent
// use.
type Sink struct {
	mu      sync.RWMutex
	filters map[Kind]Filter
}

// NewSink creates a sink holding the given filters. Later filters replace
// earlier ones of the same kind.
func NewSink(filters ...Filter) *Sink {
	s := &Sink{filters: make(map[Kind]Filter)}
	for _, f := range filters {
		s.filters[f.Kind()] = f
	}
	return s
}

// Set inserts f, replacing any filter of the same kind.
func (s *Sink) Set(f Filter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filters == nil {
		s.filters = make(map[Kind]Filter)
	}
	s.filters[f.Kind()] = f
}

// Remove drops the filter of the given kind, if any.
func (s *Sink) Remove(kind Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.filters, kind)
}

// Clear drops every filter.
func (s *Sink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = make(map[Kind]Filter)
}

// Get returns the filter of the given kind.
func (s *Sink) Get(kind Kind) (Filter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.filters[kind]
	return f, ok
}

// Len returns the number of active filters.
func (s *Sink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filters)
}

// Kinds returns the active kinds in canonical order.
func (s *Sink) Kinds() []Kind {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Kind
	for _, k := range Kinds {
		if _, ok := s.filters[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// Clone returns an independent copy. Filters are immutable, so they are
// shared.
func (s *Sink) Clone() *Sink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Sink{filters: maps.Clone(s.filters)}
}

// Serialize returns the combined payload. Only active kinds are present.
func (s *Sink) Serialize() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.filters))
	for kind, f := range s.filters {
		out[string(kind)] = f.Payload()
	}
	return out
}

// MarshalJSON encodes the combined payload. Keys are sorted, so the output
// is deterministic.
func (s *Sink) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Serialize())
}
