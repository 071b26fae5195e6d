package memory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/aussiebroadwan/bouncer/pkg/securestore"
	"github.com/aussiebroadwan/bouncer/pkg/securestore/memory"
	"github.com/stretchr/testify/require"
)

func TestStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	require.NoError(t, store.Put(ctx, "key", []byte("value")))

	got, err := store.Get(ctx, "key")
	require.NoError(t, err)
	require.Equal(t, []byte("value"), got)

	require.NoError(t, store.Delete(ctx, "key"))

	_, err = store.Get(ctx, "key")
	require.ErrorIs(t, err, securestore.ErrNotFound)
}

func TestStore_GetMissing(t *testing.T) {
	store := memory.New()

	_, err := store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, securestore.ErrNotFound)
}

func TestStore_DeleteMissingIsNoop(t *testing.T) {
	store := memory.New()

	require.NoError(t, store.Delete(context.Background(), "missing"))
}

func TestStore_PutOverwrites(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	require.NoError(t, store.Put(ctx, "key", []byte("first")))
	require.NoError(t, store.Put(ctx, "key", []byte("second")))

	got, err := store.Get(ctx, "key")
	require.NoError(t, err)
	require.Equal(t, []byte("second"), got)
}

func TestStore_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	value := []byte("original")
	require.NoError(t, store.Put(ctx, "key", value))
	value[0] = 'X'

	got, err := store.Get(ctx, "key")
	require.NoError(t, err)
	require.Equal(t, []byte("original"), got)

	// Mutating a returned value must not affect the stored copy either.
	got[0] = 'Y'
	again, err := store.Get(ctx, "key")
	require.NoError(t, err)
	require.Equal(t, []byte("original"), again)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := string(rune('a' + n%8))
			_ = store.Put(ctx, key, []byte{byte(n)})
			_, _ = store.Get(ctx, key)
			if n%4 == 0 {
				_ = store.Delete(ctx, key)
			}
		}(i)
	}
	wg.Wait()
}
