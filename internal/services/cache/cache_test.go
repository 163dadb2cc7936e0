package cache

import (
	"context"
	"testing"
	"time"

	"github.com/gpt-vpn-tgbot-go/internal/config"
	"github.com/gpt-vpn-tgbot-go/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_SetGet(t *testing.T) {
	ctx := context.Background()
	c := NewCache(&config.FileCacheConfig{Enabled: true, TTL: time.Minute, MaxSize: 10}, logger.Discard())

	_, ok := c.Get(ctx, "file-1")
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "file-1", "https://example/file-1.jpg"))
	url, ok := c.Get(ctx, "file-1")
	assert.True(t, ok)
	assert.Equal(t, "https://example/file-1.jpg", url)

	require.NoError(t, c.Clear(ctx))
	_, ok = c.Get(ctx, "file-1")
	assert.False(t, ok)
}

func TestCache_SizeLimit(t *testing.T) {
	ctx := context.Background()
	c := NewCache(&config.FileCacheConfig{Enabled: true, TTL: time.Minute, MaxSize: 2}, logger.Discard())

	require.NoError(t, c.Set(ctx, "a", "1"))
	require.NoError(t, c.Set(ctx, "b", "2"))
	require.NoError(t, c.Set(ctx, "c", "3"))

	url, ok := c.Get(ctx, "c")
	assert.True(t, ok)
	assert.Equal(t, "3", url)
	_, ok = c.Get(ctx, "a")
	assert.False(t, ok)
}

func TestCache_Disabled(t *testing.T) {
	ctx := context.Background()
	c := NewCache(&config.FileCacheConfig{Enabled: false}, nil)

	require.NoError(t, c.Set(ctx, "a", "1"))
	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
}
