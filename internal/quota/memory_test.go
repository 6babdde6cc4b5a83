package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CeilingDeniesInsideWindow(t *testing.T) {
	store := NewMemoryStore(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		dec, err := store.Check(ctx, "client-a")
		require.NoError(t, err)
		assert.True(t, dec.Allowed, "check %d should be admitted", i+1)
		assert.Equal(t, 3-(i+1), dec.Remaining)
	}

	dec, err := store.Check(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, dec.Allowed, "ceiling+1-th check must be denied")
	assert.Equal(t, 0, dec.Remaining)
	assert.True(t, dec.ResetAt.After(time.Now()), "resetAt must be strictly in the future")
}

func TestMemoryStore_WindowRestartsAfterReset(t *testing.T) {
	store := NewMemoryStore(2, time.Minute)
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }

	_, err := store.Check(ctx, "client-a")
	require.NoError(t, err)
	_, err = store.Check(ctx, "client-a")
	require.NoError(t, err)

	dec, err := store.Check(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, dec.Allowed)

	// Step past the window: count restarts at 1.
	now = now.Add(time.Minute + time.Second)
	dec, err = store.Check(ctx, "client-a")
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Equal(t, 1, dec.Remaining)
	assert.Equal(t, now.Add(time.Minute), dec.ResetAt)
}

func TestMemoryStore_IdentitiesAreIndependent(t *testing.T) {
	store := NewMemoryStore(1, time.Minute)
	ctx := context.Background()

	dec, err := store.Check(ctx, "client-a")
	require.NoError(t, err)
	assert.True(t, dec.Allowed)

	dec, err = store.Check(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, dec.Allowed)

	dec, err = store.Check(ctx, "client-b")
	require.NoError(t, err)
	assert.True(t, dec.Allowed, "other identities must not be affected")
}

func TestMemoryStore_SweepRemovesExpiredEntries(t *testing.T) {
	store := NewMemoryStore(5, time.Minute)
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }

	_, err := store.Check(ctx, "expired")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = store.Check(ctx, "fresh")
	require.NoError(t, err)

	removed, err := store.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_ResetClearsAllQuotas(t *testing.T) {
	store := NewMemoryStore(1, time.Minute)
	ctx := context.Background()

	_, err := store.Check(ctx, "client-a")
	require.NoError(t, err)
	require.NoError(t, store.Reset(ctx))

	dec, err := store.Check(ctx, "client-a")
	require.NoError(t, err)
	assert.True(t, dec.Allowed, "reset must restart the identity's window")
	assert.Equal(t, 0, dec.Remaining)
}

func TestMemoryStore_ConcurrentChecksDoNotLoseUpdates(t *testing.T) {
	const ceiling = 50
	const attempts = 200

	store := NewMemoryStore(ceiling, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dec, err := store.Check(ctx, "client-a")
			assert.NoError(t, err)
			if dec.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, ceiling, allowed, "exactly ceiling checks may be admitted per window")
}
