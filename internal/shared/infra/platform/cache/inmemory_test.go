package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

func TestInMemoryCache_SetGetDelete(t *testing.T) {
	c := NewInMemoryCache(time.Minute, time.Minute)
	defer c.Stop()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "order:id:1", snapshot{ID: 1, Status: "PENDING"}, 0))

	var got snapshot
	hit, err := c.Get(ctx, "order:id:1", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, snapshot{ID: 1, Status: "PENDING"}, got)

	require.NoError(t, c.Delete(ctx, "order:id:1"))
	hit, err = c.Get(ctx, "order:id:1", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestInMemoryCache_ExpiredEntryIsMiss(t *testing.T) {
	c := NewInMemoryCache(10*time.Millisecond, time.Hour)
	defer c.Stop()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", snapshot{ID: 2}, 0))
	time.Sleep(30 * time.Millisecond)

	var got snapshot
	hit, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestInMemoryCache_StopIsIdempotent(t *testing.T) {
	c := NewInMemoryCache(time.Minute, time.Minute)
	c.Stop()
	assert.NotPanics(t, c.Stop)
}
