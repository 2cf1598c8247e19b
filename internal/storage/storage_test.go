package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func TestFilesystemStorageRoundTrip(t *testing.T) {
	s, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)

	key, err := s.Save(ctx, "books.csv", []byte("id,name\n1,A\n"))
	require.NoError(t, err)
	assert.Contains(t, key, "books.csv")

	data, err := s.Read(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,A\n", string(data))

	require.NoError(t, s.Remove(ctx, key))
	_, err = s.Read(ctx, key)
	assert.Error(t, err)
}

func TestFilesystemStorageUniqueKeys(t *testing.T) {
	s, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)

	k1, err := s.Save(ctx, "upload.csv", []byte("a"))
	require.NoError(t, err)
	k2, err := s.Save(ctx, "upload.csv", []byte("b"))
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)

	d1, err := s.Read(ctx, k1)
	require.NoError(t, err)
	assert.Equal(t, "a", string(d1))
}

func TestFilesystemStorageSanitizesKeys(t *testing.T) {
	s, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)

	key, err := s.Save(ctx, "../../etc/passwd", []byte("x"))
	require.NoError(t, err)
	assert.NotContains(t, key, "/")
	assert.NotContains(t, key, "..")

	data, err := s.Read(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func newCacheStorage(t *testing.T, ttl time.Duration) (*CacheStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCacheStorage(client, ttl), mr
}

func TestCacheStorageRoundTrip(t *testing.T) {
	s, _ := newCacheStorage(t, time.Minute)

	key, err := s.Save(ctx, "books.csv", []byte("id,name\n1,A\n"))
	require.NoError(t, err)

	data, err := s.Read(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,A\n", string(data))

	require.NoError(t, s.Remove(ctx, key))
	_, err = s.Read(ctx, key)
	assert.ErrorIs(t, err, ErrNotStaged)
}

func TestCacheStorageExpiry(t *testing.T) {
	s, mr := newCacheStorage(t, time.Minute)

	key, err := s.Save(ctx, "books.csv", []byte("data"))
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = s.Read(ctx, key)
	assert.ErrorIs(t, err, ErrNotStaged)
}

func TestCacheStorageMissingKey(t *testing.T) {
	s, _ := newCacheStorage(t, time.Minute)

	_, err := s.Read(ctx, "never-saved")
	assert.ErrorIs(t, err, ErrNotStaged)
}
