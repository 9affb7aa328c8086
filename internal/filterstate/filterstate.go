// Package filterstate implements the per-request typed scratch map filters
// use to pass data to each other without coupling directly.
package filterstate

// StateType tags whether an entry may be overwritten after it is set.
type StateType int

const (
	ReadOnly StateType = iota
	Mutable
)

// LifeSpan tags how long an entry survives: for the current request only,
// or for the lifetime of the downstream connection (surviving across the
// requests multiplexed on it).
type LifeSpan int

const (
	Request LifeSpan = iota
	Connection
)

type entry struct {
	value     any
	stateType StateType
	lifeSpan  LifeSpan
}

// FilterState is a per-stream key/value scratch map. It is not safe for
// concurrent use; each stream's filter chain runs on one dispatcher
// goroutine.
type FilterState struct {
	entries map[string]entry
}

// New returns an empty FilterState.
func New() *FilterState {
	return &FilterState{entries: make(map[string]entry)}
}

// SetData stores value under key. Overwriting an existing ReadOnly entry
// is rejected; Mutable entries may always be replaced.
func (s *FilterState) SetData(key string, value any, stateType StateType, lifeSpan LifeSpan) bool {
	if existing, ok := s.entries[key]; ok && existing.stateType == ReadOnly {
		return false
	}
	s.entries[key] = entry{value: value, stateType: stateType, lifeSpan: lifeSpan}
	return true
}

// GetData returns the value stored under key, if any.
func (s *FilterState) GetData(key string) (any, bool) {
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// HasData reports whether key has an entry.
func (s *FilterState) HasData(key string) bool {
	_, ok := s.entries[key]
	return ok
}

// ClearRequestData drops every entry scoped to Request, called between
// requests multiplexed on the same downstream connection so Connection-
// scoped entries survive.
func (s *FilterState) ClearRequestData() {
	for k, e := range s.entries {
		if e.lifeSpan == Request {
			delete(s.entries, k)
		}
	}
}
