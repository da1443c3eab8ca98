// tokenstore/tokenstore_test.go
package tokenstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func sampleRecord() *Record {
	return &Record{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		Expiry:       time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC),
		UpdatedAt:    time.Date(2029, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestStores(t *testing.T) {
	_, rdb := newTestRedis(t)

	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"file":   NewFileStore(filepath.Join(t.TempDir(), "nested", "tokens.json")),
		"redis":  NewRedisStore(rdb, "", 0),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Load(ctx, "user")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Save(ctx, "user", sampleRecord()))

			got, err := store.Load(ctx, "user")
			require.NoError(t, err)
			assert.Equal(t, "access-1", got.AccessToken)
			assert.Equal(t, "refresh-1", got.RefreshToken)
			assert.True(t, sampleRecord().Expiry.Equal(got.Expiry))

			updated := sampleRecord()
			updated.AccessToken = "access-2"
			require.NoError(t, store.Save(ctx, "user", updated))
			got, err = store.Load(ctx, "user")
			require.NoError(t, err)
			assert.Equal(t, "access-2", got.AccessToken)

			require.NoError(t, store.Delete(ctx, "user"))
			_, err = store.Load(ctx, "user")
			assert.ErrorIs(t, err, ErrNotFound)

			assert.NoError(t, store.Delete(ctx, "user"), "deleting a missing key is not an error")
		})
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	record := sampleRecord()
	require.NoError(t, store.Save(ctx, "k", record))

	record.AccessToken = "mutated"
	got, err := store.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "access-1", got.AccessToken)
}

func TestFileStore_Permissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	store := NewFileStore(path)
	require.NoError(t, store.Save(context.Background(), "k", sampleRecord()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	assert.Equal(t, path, store.Path())
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path).Load(context.Background(), "k")
	assert.ErrorContains(t, err, "decoding token file")
}

func TestRedisStore_PrefixAndTTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisStore(rdb, "app:", time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "alice", sampleRecord()))
	assert.True(t, mr.Exists("app:alice"))
	assert.Equal(t, time.Minute, mr.TTL("app:alice"))

	mr.FastForward(2 * time.Minute)
	_, err := store.Load(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_CorruptValue(t *testing.T) {
	mr, rdb := newTestRedis(t)
	require.NoError(t, mr.Set(DefaultRedisKeyPrefix+"bob", "garbage"))

	_, err := NewRedisStore(rdb, "", 0).Load(context.Background(), "bob")
	assert.ErrorContains(t, err, "decoding token record")
}
