// Package locks provides the single-writer-per-entity discipline: score
// runs and evidence review for one entity are serialized, while different
// entities proceed in parallel.
package locks

import "sync"

// Keyed hands out one mutex per key. Entries are never evicted; the key
// space is the set of entities the process has written to.
type Keyed struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewKeyed() *Keyed {
	return &Keyed{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns its unlock func.
func (k *Keyed) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m.Unlock
}
