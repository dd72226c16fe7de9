package store

import "sync/atomic"

// Sequence hands out strictly increasing ids.
//
// The store keeps two: one for temp slots and one for store slots. Both are
// seeded at startup (temp from zero since the temp area is wiped, store from
// the recovered maximum) and are the only lock-free shared state in the hot
// path.
type Sequence struct {
	last atomic.Uint64
}

// NewSequence returns a sequence whose next id is start+1.
func NewSequence(start uint64) *Sequence {
	s := &Sequence{}
	s.last.Store(start)
	return s
}

// Next allocates and returns the next id.
func (s *Sequence) Next() uint64 {
	return s.last.Add(1)
}

// Current returns the last allocated id (0 if none).
func (s *Sequence) Current() uint64 {
	return s.last.Load()
}

// Reset moves the sequence to v. Only used while the store is opening.
func (s *Sequence) Reset(v uint64) {
	s.last.Store(v)
}
