package session

import "fmt"

// Registry holds the live matches in insertion order so matchmaking scans
// are deterministic. It is not safe for concurrent use; Manager guards it.
type Registry struct {
	order []*Match
	byID  map[string]*Match
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Match)}
}

// Add registers m.
//
// Postcondition: Returns an error if a match with the same id is present.
func (r *Registry) Add(m *Match) error {
	if _, ok := r.byID[m.ID]; ok {
		return fmt.Errorf("match %q already registered", m.ID)
	}
	r.byID[m.ID] = m
	r.order = append(r.order, m)
	return nil
}

// Remove unregisters the match with the given id.
//
// Postcondition: Returns the removed match and true, or nil and false when
// no such match is registered.
func (r *Registry) Remove(id string) (*Match, bool) {
	m, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	delete(r.byID, id)
	for i, cur := range r.order {
		if cur == m {
			copy(r.order[i:], r.order[i+1:])
			r.order[len(r.order)-1] = nil
			r.order = r.order[:len(r.order)-1]
			break
		}
	}
	return m, true
}

// Get returns the match with the given id.
func (r *Registry) Get(id string) (*Match, bool) {
	m, ok := r.byID[id]
	return m, ok
}

// Count returns the number of live matches.
func (r *Registry) Count() int {
	return len(r.order)
}

// FirstOpen returns the oldest match waiting for a second player, or nil.
func (r *Registry) FirstOpen() *Match {
	for _, m := range r.order {
		if m.Open() {
			return m
		}
	}
	return nil
}

// All returns the live matches in insertion order.
func (r *Registry) All() []*Match {
	out := make([]*Match, len(r.order))
	copy(out, r.order)
	return out
}
