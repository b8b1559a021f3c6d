package matchlife

import (
	"sync"

	"github.com/park285/rematch-discord-bot/internal/domain"
)

// keyedMutex serializes work per match id. Entries are dropped when the
// last holder releases them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[domain.MatchID]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[domain.MatchID]*keyedEntry)}
}

func (k *keyedMutex) Lock(id domain.MatchID) (unlock func()) {
	k.mu.Lock()
	e, ok := k.locks[id]
	if !ok {
		e = &keyedEntry{}
		k.locks[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
