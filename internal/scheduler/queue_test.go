package scheduler_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildstream-go/buildstream/internal/dag"
	"github.com/buildstream-go/buildstream/internal/scheduler"
)

type temporaryErr struct{ msg string }

func (e *temporaryErr) Error() string   { return e.msg }
func (e *temporaryErr) Temporary() bool { return true }

func linearGraph(t *testing.T) *dag.Graph[string] {
	t.Helper()
	g := dag.New[string]()
	for _, id := range []string{"base", "middle", "top"} {
		require.NoError(t, g.AddVertex(id))
	}
	require.NoError(t, g.AddEdge("base", "middle"))
	require.NoError(t, g.AddEdge("middle", "top"))
	return g
}

func TestQueueProcessorRespectsDependencyOrder(t *testing.T) {
	g := linearGraph(t)

	var mu sync.Mutex
	var order []string
	work := func(ctx context.Context, id string) error {
		mu.Lock()
		order = append(order, id)
		mu.Unlock()
		return nil
	}

	q := scheduler.NewQueueProcessor("build", g, work, scheduler.QueueOptions{Concurrency: 4}, nil)
	result, err := q.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "middle", "top"}, order)
	assert.ElementsMatch(t, []string{"base", "middle", "top"}, result.Succeeded)
}

func TestQueueProcessorRetriesTransientFailures(t *testing.T) {
	g := dag.New[string]()
	require.NoError(t, g.AddVertex("flaky"))

	attempts := 0
	work := func(ctx context.Context, id string) error {
		attempts++
		if attempts < 3 {
			return &temporaryErr{msg: "network blip"}
		}
		return nil
	}

	q := scheduler.NewQueueProcessor("fetch", g, work, scheduler.QueueOptions{
		Concurrency: 1,
		MaxRetries:  5,
		Backoff:     func(int) time.Duration { return time.Millisecond },
	}, nil)
	result, err := q.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []string{"flaky"}, result.Succeeded)
}

func TestQueueProcessorExhaustsRetriesAndFails(t *testing.T) {
	g := dag.New[string]()
	require.NoError(t, g.AddVertex("doomed"))

	work := func(ctx context.Context, id string) error {
		return &temporaryErr{msg: "still down"}
	}

	q := scheduler.NewQueueProcessor("fetch", g, work, scheduler.QueueOptions{
		Concurrency: 1,
		MaxRetries:  2,
		Backoff:     func(int) time.Duration { return time.Millisecond },
	}, nil)
	result, err := q.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"doomed"}, result.Failed)
}

func TestQueueProcessorSkipsDescendantsOfFailedElement(t *testing.T) {
	g := linearGraph(t)

	work := func(ctx context.Context, id string) error {
		if id == "base" {
			return fmt.Errorf("permanent failure")
		}
		return nil
	}

	q := scheduler.NewQueueProcessor("build", g, work, scheduler.QueueOptions{
		Concurrency:   4,
		FailurePolicy: scheduler.PolicyContinue,
	}, nil)
	result, err := q.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"base"}, result.Failed)
	assert.ElementsMatch(t, []string{"middle", "top"}, result.Skipped)
}

func TestQueueProcessorSkipFuncBypassesWork(t *testing.T) {
	g := dag.New[string]()
	require.NoError(t, g.AddVertex("cached"))

	called := false
	work := func(ctx context.Context, id string) error {
		called = true
		return nil
	}

	q := scheduler.NewQueueProcessor("build", g, work, scheduler.QueueOptions{
		Concurrency: 1,
		Skip:        func(id string) bool { return id == "cached" },
	}, nil)
	result, err := q.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, []string{"cached"}, result.Skipped)
}

func TestQueueProcessorQuitPolicyStopsAdmittingNewBatches(t *testing.T) {
	g := dag.New[string]()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, g.AddVertex(id))
	}
	// a and b are independent roots admitted in the first batch; c only
	// becomes ready once b completes, in the second batch.
	require.NoError(t, g.AddEdge("b", "c"))

	work := func(ctx context.Context, id string) error {
		if id == "a" {
			return fmt.Errorf("boom")
		}
		return nil
	}

	q := scheduler.NewQueueProcessor("build", g, work, scheduler.QueueOptions{
		Concurrency:   4,
		FailurePolicy: scheduler.PolicyQuit,
	}, nil)
	result, err := q.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, result.Failed, "a")
	assert.Contains(t, result.Succeeded, "b")
	assert.Contains(t, result.Skipped, "c")
}
