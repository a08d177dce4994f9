package directory

import (
	"sort"
	"sync"

	"citydir/internal/model"
)

// TelemetryStore keeps the latest telemetry per city id. Ids do not need to
// be registered in an AddressBook.
type TelemetryStore struct {
	mu   sync.RWMutex
	data map[string]model.Telemetry // key = id
}

// NewTelemetryStore creates an empty store.
func NewTelemetryStore() *TelemetryStore {
	return &TelemetryStore{data: make(map[string]model.Telemetry)}
}

// Put replaces the snapshot for id.
func (s *TelemetryStore) Put(id string, t model.Telemetry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = t
}

// Get returns the snapshot for id.
func (s *TelemetryStore) Get(id string) (model.Telemetry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.data[id]
	return t, ok
}

// Len returns the number of ids with telemetry.
func (s *TelemetryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Orphans returns the sorted ids for which known reports false.
// known is called without the store lock held.
func (s *TelemetryStore) Orphans(known func(id string) bool) []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	out := ids[:0]
	for _, id := range ids {
		if !known(id) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
