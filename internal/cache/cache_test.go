package cache

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/xxh3"
)

func newTestCache(t *testing.T, opts ...Option) *Cache {
	t.Helper()
	c, err := Open("", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestKey(t *testing.T) {
	t.Parallel()
	k := Key("abc", "go", []byte("package main\n"))
	assert.True(t, strings.HasPrefix(string(k), "loc/v1/abc/go/"))
	assert.Equal(t, k, Key("abc", "go", []byte("package main\n")))
	assert.NotEqual(t, k, Key("abd", "go", []byte("package main\n")), "registry hash is part of the key")
	assert.NotEqual(t, k, Key("abc", "python", []byte("package main\n")))
	assert.NotEqual(t, k, Key("abc", "go", []byte("package other\n")))

	h := fmt.Sprintf("%016x", xxh3.Hash([]byte("package main\n")))
	assert.True(t, strings.HasSuffix(string(k), "/"+h))
}

func TestCache_PutGet(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)
	ctx := context.Background()
	key := Key("r", "go", []byte("x"))

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, key, []byte("payload")))
	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), got)

	n, err := c.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCache_Expiry(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, WithTTL(time.Second))
	ctx := context.Background()
	key := Key("r", "go", []byte("x"))
	require.NoError(t, c.Put(ctx, key, []byte("payload")))

	assert.Eventually(t, func() bool {
		_, ok, err := c.Get(ctx, key)
		return err == nil && !ok
	}, 5*time.Second, 100*time.Millisecond)
}

func TestCache_NilIsAlwaysMiss(t *testing.T) {
	t.Parallel()
	var c *Cache
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, []byte("k"), []byte("v")))
	_, ok, err := c.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.Close())
}

func TestCache_CanceledContext(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Put(ctx, []byte("k"), []byte("v")), context.Canceled)
	_, _, err := c.Get(ctx, []byte("k"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCache_OnDisk(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()
	key := Key("r", "go", []byte("x"))

	c, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, key, []byte("kept")))
	require.NoError(t, c.Close())

	c, err = Open(dir)
	require.NoError(t, err)
	defer c.Close()
	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("kept"), got)
}
