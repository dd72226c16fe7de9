package forward

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
)

// StoredUnit is a unit captured by MemorySink.
type StoredUnit struct {
	Attributes map[string]string
	Payload    []byte
	Puts       int
}

// MemorySink keeps forwarded units in memory. It is meant for tests and for
// dry runs.
type MemorySink struct {
	mu    sync.Mutex
	units map[uint64]*StoredUnit

	// failures counts how many upcoming Put calls fail.
	failures int
}

// NewMemorySink creates an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{units: make(map[uint64]*StoredUnit)}
}

func (s *MemorySink) Name() string { return "memory" }

// FailNext makes the next n Put calls fail.
func (s *MemorySink) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
}

func (s *MemorySink) Put(ctx context.Context, unit Unit) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return fmt.Errorf("memory sink: injected failure for store id %d", unit.ID)
	}
	s.mu.Unlock()

	payload, err := os.ReadFile(unit.ZipPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", unit.ZipPath, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.units[unit.ID]
	if !ok {
		stored = &StoredUnit{}
		s.units[unit.ID] = stored
	}
	stored.Attributes = unit.Attributes.ToMap()
	stored.Payload = payload
	stored.Puts++
	return nil
}

// Get returns a copy of the stored unit.
func (s *MemorySink) Get(id uint64) (StoredUnit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[id]
	if !ok {
		return StoredUnit{}, false
	}
	return *u, true
}

// IDs returns the stored ids in ascending order.
func (s *MemorySink) IDs() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint64, 0, len(s.units))
	for id := range s.units {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *MemorySink) Close() error { return nil }
