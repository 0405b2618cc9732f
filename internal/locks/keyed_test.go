package locks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyedMutualExclusion(t *testing.T) {
	k := NewKeyed()

	const goroutines = 20
	const iterations = 50
	counter := 0

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				release, err := k.Acquire(context.Background(), "asset-1")
				if err != nil {
					t.Error(err)
					return
				}
				counter++
				release()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, goroutines*iterations, counter)
}

func TestKeyedIndependentKeys(t *testing.T) {
	k := NewKeyed()

	r1, err := k.Acquire(context.Background(), "asset-1")
	require.NoError(t, err)
	defer r1()

	// A different key must not block.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r2, err := k.Acquire(ctx, "asset-2")
	require.NoError(t, err)
	r2()
}

func TestKeyedAcquireCancelled(t *testing.T) {
	k := NewKeyed()

	release, err := k.Acquire(context.Background(), "asset-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = k.Acquire(ctx, "asset-1")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The holder can still release, and the key becomes acquirable again.
	release()
	r2, err := k.Acquire(context.Background(), "asset-1")
	require.NoError(t, err)
	r2()
}

func TestKeyedReleaseIdempotent(t *testing.T) {
	k := NewKeyed()

	release, err := k.Acquire(context.Background(), "asset-1")
	require.NoError(t, err)
	release()
	release() // second call is a no-op

	r2, err := k.Acquire(context.Background(), "asset-1")
	require.NoError(t, err)
	r2()
}

func TestKeyedEntriesReclaimed(t *testing.T) {
	k := NewKeyed()

	release, err := k.Acquire(context.Background(), "asset-1")
	require.NoError(t, err)
	release()

	k.mu.Lock()
	defer k.mu.Unlock()
	require.Empty(t, k.entries)
}
