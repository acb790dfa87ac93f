package bstcontext_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildstream-go/buildstream/internal/bstcontext"
)

func TestNewDefaults(t *testing.T) {
	c := bstcontext.New()
	fetchers, builders, pushers, retries := c.QueueSizes()
	assert.Equal(t, 4, fetchers)
	assert.Equal(t, 4, builders)
	assert.Equal(t, 4, pushers)
	assert.Equal(t, 0, retries)
	assert.Equal(t, "continue", c.ErrorPolicy())
	assert.NotNil(t, c.Logger())
	assert.NotNil(t, c.Bus())
}

func TestNewAppliesOptions(t *testing.T) {
	logger := slog.Default()
	c := bstcontext.New(
		bstcontext.WithCacheDir("/cache"),
		bstcontext.WithMirrorDir("/mirror"),
		bstcontext.WithLogDir("/log"),
		bstcontext.WithQueueSizes(1, 2, 3, 5),
		bstcontext.WithErrorPolicy("quit"),
		bstcontext.WithLogger(logger),
	)
	assert.Equal(t, "/cache", c.CacheDir())
	assert.Equal(t, "/mirror", c.MirrorDir())
	assert.Equal(t, "/log", c.LogDir())
	fetchers, builders, pushers, retries := c.QueueSizes()
	assert.Equal(t, 1, fetchers)
	assert.Equal(t, 2, builders)
	assert.Equal(t, 3, pushers)
	assert.Equal(t, 5, retries)
	assert.Equal(t, "quit", c.ErrorPolicy())
	assert.Same(t, logger, c.Logger())
}

func TestNilContextAccessorsDoNotPanic(t *testing.T) {
	var c *bstcontext.Context
	assert.Equal(t, "", c.CacheDir())
	assert.Equal(t, "", c.MirrorDir())
	assert.Equal(t, "", c.LogDir())
	assert.Equal(t, "continue", c.ErrorPolicy())
	assert.Nil(t, c.CAS())
	assert.NotNil(t, c.Logger())
	assert.Nil(t, c.Bus())
	fetchers, builders, pushers, retries := c.QueueSizes()
	assert.Zero(t, fetchers)
	assert.Zero(t, builders)
	assert.Zero(t, pushers)
	assert.Zero(t, retries)
}

func TestWithContextAndFromContextRoundTrip(t *testing.T) {
	c := bstcontext.New(bstcontext.WithCacheDir("/cache"))
	ctx := bstcontext.WithContext(context.Background(), c)
	got := bstcontext.FromContext(ctx)
	require.NotNil(t, got)
	assert.Equal(t, "/cache", got.CacheDir())
}

func TestFromContextMissingReturnsNil(t *testing.T) {
	assert.Nil(t, bstcontext.FromContext(context.Background()))
}
