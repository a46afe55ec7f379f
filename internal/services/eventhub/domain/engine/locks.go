package engine

import "sync"

// playerLocks serializes state mutations per player. Updates for different
// players proceed concurrently.
type playerLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newPlayerLocks() *playerLocks {
	return &playerLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for the given player and returns its unlock func.
func (p *playerLocks) lock(playerID string) func() {
	p.mu.Lock()
	m, ok := p.locks[playerID]
	if !ok {
		m = &sync.Mutex{}
		p.locks[playerID] = m
	}
	p.mu.Unlock()

	m.Lock()
	return m.Unlock
}
