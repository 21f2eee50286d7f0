package store

// sequence issues monotonic request numbers per list kind. A response is
// applied only when its number is still the latest issued for its kind.
// Callers hold the owning store's lock.
type sequence struct {
	latest map[string]uint64
}

func newSequence() sequence {
	return sequence{latest: make(map[string]uint64)}
}

// next issues a new number for kind, superseding every earlier one.
func (s *sequence) next(kind string) uint64 {
	s.latest[kind]++
	return s.latest[kind]
}

// current reports whether n is the latest number issued for kind.
func (s *sequence) current(kind string, n uint64) bool {
	return s.latest[kind] == n
}

// invalidate supersedes every in-flight request of kind, used when the view
// is changed locally.
func (s *sequence) invalidate(kind string) {
	s.latest[kind]++
}
