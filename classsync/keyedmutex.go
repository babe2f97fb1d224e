package classsync

import (
	"sort"
	"sync"
)

// keyedMutex serializes access per class group. Every mutating entry point
// of the engine funnels through it, including event-listener-triggered
// synchronizations, so concurrent calls touching the same group cannot
// interleave their read-then-write sequences.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*lockEntry)}
}

// Lock acquires the mutexes for every key and returns an unlock function.
// Keys are deduplicated and acquired in sorted order so two callers
// locking overlapping key sets cannot deadlock.
func (k *keyedMutex) Lock(keys ...string) func() {
	unique := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, key)
	}
	sort.Strings(unique)

	entries := make([]*lockEntry, len(unique))
	k.mu.Lock()
	for i, key := range unique {
		entry, ok := k.locks[key]
		if !ok {
			entry = &lockEntry{}
			k.locks[key] = entry
		}
		entry.refs++
		entries[i] = entry
	}
	k.mu.Unlock()

	for _, entry := range entries {
		entry.mu.Lock()
	}

	return func() {
		// Release in reverse acquisition order.
		for i := len(entries) - 1; i >= 0; i-- {
			entries[i].mu.Unlock()
		}
		k.mu.Lock()
		for i, key := range unique {
			entries[i].refs--
			if entries[i].refs == 0 {
				delete(k.locks, key)
			}
		}
		k.mu.Unlock()
	}
}
