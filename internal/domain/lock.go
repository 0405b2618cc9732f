package domain

import "context"

// LockManager serializes mutating operations. Every mutating engine operation
// acquires the lock for the asset it touches before reading or writing state,
// which reproduces the single-writer-per-asset execution model the settlement
// logic assumes: a listing, an auction, and several offers may all reference
// the same asset, and only one sale path may win.
//
// Acquire blocks until the lock is held or ctx is done. The returned release
// function is safe to call more than once.
type LockManager interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
