// Package locks provides the lock managers that serialize mutating engine
// operations per asset: an in-process keyed mutex for single-instance
// deployments and a Redis-backed manager for multi-instance ones.
package locks

import (
	"context"
	"sync"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// Keyed is an in-process lock manager. Each key gets its own mutex,
// created on first use and dropped once no goroutine holds or waits on it.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

type keyedEntry struct {
	sem  chan struct{} // buffered(1): holding the token means holding the lock
	refs int
}

// NewKeyed creates an empty keyed lock manager.
func NewKeyed() *Keyed {
	return &Keyed{entries: make(map[string]*keyedEntry)}
}

// Acquire blocks until the lock for key is held or ctx is done. The returned
// release function is safe to call more than once.
func (k *Keyed) Acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry{sem: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		k.unref(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			<-e.sem
			k.unref(key, e)
		})
	}
	return release, nil
}

// unref drops one reference to an entry and deletes it once unused.
func (k *Keyed) unref(key string, e *keyedEntry) {
	k.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
	k.mu.Unlock()
}

var _ domain.LockManager = (*Keyed)(nil)
