package agent

import (
	"sync"

	"github.com/m-mizutani/concierge/pkg/model"
)

// keyedMutex serializes work per state ID. Entries are reference counted and
// dropped once no caller holds or waits for them.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[model.StateID]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[model.StateID]*keyedEntry)}
}

// Lock blocks until id is free and returns the matching unlock function
func (k *keyedMutex) Lock(id model.StateID) func() {
	k.mu.Lock()
	e, ok := k.entries[id]
	if !ok {
		e = &keyedEntry{}
		k.entries[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, id)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
