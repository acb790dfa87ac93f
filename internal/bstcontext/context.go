// Package bstcontext implements the process-wide Context value: resolved
// configuration, the CAS handle, and the message bus workers report
// through, plus a typed error taxonomy every component failure surfaces
// through.
//
// A struct created once per invocation, threaded through context.Context
// via a private key, with read/write accessors guarded by a mutex so any
// command can reach it in O(1) without passing it explicitly through every
// call.
package bstcontext

import (
	"context"
	"log/slog"
	"sync"

	"github.com/buildstream-go/buildstream/internal/cas"
)

type ctxKey string

const key ctxKey = "github.com/buildstream-go/buildstream/internal/bstcontext"

// Context is BuildStream's process-wide, command-scoped value: the
// resolved project/user configuration plus the CAS handle and message bus
// every queue and plugin reports through.
type Context struct {
	mu sync.RWMutex

	cacheDir  string
	mirrorDir string
	logDir    string

	fetchers       int
	builders       int
	pushers        int
	networkRetries int
	onError        string // "continue" | "quit" | "terminate" | "interactive"

	store  *cas.Store
	logger *slog.Logger
	bus    *Bus
}

// Option configures a Context at construction time.
type Option func(*Context)

func WithCacheDir(dir string) Option  { return func(c *Context) { c.cacheDir = dir } }
func WithMirrorDir(dir string) Option { return func(c *Context) { c.mirrorDir = dir } }
func WithLogDir(dir string) Option    { return func(c *Context) { c.logDir = dir } }
func WithQueueSizes(fetchers, builders, pushers, networkRetries int) Option {
	return func(c *Context) {
		c.fetchers = fetchers
		c.builders = builders
		c.pushers = pushers
		c.networkRetries = networkRetries
	}
}
func WithErrorPolicy(policy string) Option { return func(c *Context) { c.onError = policy } }
func WithStore(store *cas.Store) Option    { return func(c *Context) { c.store = store } }
func WithLogger(logger *slog.Logger) Option {
	return func(c *Context) { c.logger = logger }
}

// New constructs a Context, defaulting queue sizes to 4 workers and the
// error policy to "continue".
func New(opts ...Option) *Context {
	c := &Context{
		fetchers:       4,
		builders:       4,
		pushers:        4,
		networkRetries: 0,
		onError:        "continue",
		logger:         slog.Default(),
		bus:            NewBus(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Context) CacheDir() string {
	if c == nil {
		return ""
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cacheDir
}

func (c *Context) MirrorDir() string {
	if c == nil {
		return ""
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mirrorDir
}

func (c *Context) LogDir() string {
	if c == nil {
		return ""
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logDir
}

// QueueSizes returns the configured fetcher/builder/pusher worker counts
// and the network-retry budget (sched.fetchers/builders/pushers/
// network-retries).
func (c *Context) QueueSizes() (fetchers, builders, pushers, networkRetries int) {
	if c == nil {
		return 0, 0, 0, 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchers, c.builders, c.pushers, c.networkRetries
}

func (c *Context) ErrorPolicy() string {
	if c == nil {
		return "continue"
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.onError
}

func (c *Context) CAS() *cas.Store {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store
}

func (c *Context) Logger() *slog.Logger {
	if c == nil {
		return slog.Default()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

func (c *Context) Bus() *Bus {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bus
}

// FromContext retrieves the Context value stored in ctx, or nil if none was
// registered (every accessor above tolerates a nil receiver so callers can
// chain without an explicit presence check).
func FromContext(ctx context.Context) *Context {
	if ctx == nil {
		return nil
	}
	v, _ := ctx.Value(key).(*Context)
	return v
}

// WithContext returns a copy of ctx carrying c.
func WithContext(ctx context.Context, c *Context) context.Context {
	return context.WithValue(ctx, key, c)
}
