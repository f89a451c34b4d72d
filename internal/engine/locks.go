package engine

import "sync"

// vendorLocks hands out one mutex per vendor key so concurrent processing of
// the same vendor serializes while distinct vendors proceed in parallel.
// Locks are never released from the map; the vendor population is small and
// bounded by the user's document history.
type vendorLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// lock acquires the mutex for key and returns its release function.
func (v *vendorLocks) lock(key string) func() {
	v.mu.Lock()
	if v.locks == nil {
		v.locks = make(map[string]*sync.Mutex)
	}
	m, ok := v.locks[key]
	if !ok {
		m = &sync.Mutex{}
		v.locks[key] = m
	}
	v.mu.Unlock()

	m.Lock()
	return m.Unlock
}
