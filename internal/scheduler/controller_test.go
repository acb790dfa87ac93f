package scheduler_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildstream-go/buildstream/internal/scheduler"
)

type fakeSandbox struct {
	mu                            sync.Mutex
	suspended, resumed, cancelled bool
}

func (f *fakeSandbox) Suspend() error { f.mu.Lock(); defer f.mu.Unlock(); f.suspended = true; return nil }
func (f *fakeSandbox) Resume() error  { f.mu.Lock(); defer f.mu.Unlock(); f.resumed = true; return nil }
func (f *fakeSandbox) Cancel() error  { f.mu.Lock(); defer f.mu.Unlock(); f.cancelled = true; return nil }

func TestControllerSuspendForwardsToActiveSandboxes(t *testing.T) {
	controller, _ := scheduler.NewController(context.Background())
	sb := &fakeSandbox{}
	controller.Register("elem", sb)

	require.NoError(t, controller.Suspend())
	sb.mu.Lock()
	assert.True(t, sb.suspended)
	sb.mu.Unlock()

	require.NoError(t, controller.Resume())
	sb.mu.Lock()
	assert.True(t, sb.resumed)
	sb.mu.Unlock()
}

func TestControllerTerminateCancelsContextAndSandboxes(t *testing.T) {
	controller, ctx := scheduler.NewController(context.Background())
	sb := &fakeSandbox{}
	controller.Register("elem", sb)

	controller.Terminate()
	assert.True(t, controller.Cancelled())
	sb.mu.Lock()
	assert.True(t, sb.cancelled)
	sb.mu.Unlock()

	select {
	case <-ctx.Done():
	default:
		t.Fatal("expected context to be cancelled")
	}
}
