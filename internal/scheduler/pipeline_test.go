package scheduler_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildstream-go/buildstream/internal/dag"
	"github.com/buildstream-go/buildstream/internal/scheduler"
)

func TestPipelineRunsFetchThenBuildThenPush(t *testing.T) {
	g := dag.New[string]()
	for _, id := range []string{"lib", "app"} {
		require.NoError(t, g.AddVertex(id))
	}
	require.NoError(t, g.AddEdge("lib", "app"))

	var mu sync.Mutex
	var events []string
	record := func(queue, id string, state scheduler.State, err error) {
		if state != scheduler.Running {
			return
		}
		mu.Lock()
		events = append(events, queue+":"+id)
		mu.Unlock()
	}

	noop := func(ctx context.Context, id string) error { return nil }

	controller, ctx := scheduler.NewController(context.Background())
	p := &scheduler.Pipeline{
		Graph:      g,
		Controller: controller,
		Fetch:      scheduler.QueueSpec{Concurrency: 2},
		Build:      scheduler.QueueSpec{Concurrency: 2},
		Push:       scheduler.QueueSpec{Concurrency: 2},
		Work:       scheduler.ElementWork{Fetch: noop, Build: noop, Push: noop},
		OnEvent:    record,
	}

	report, err := p.Run(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"lib", "app"}, report.Fetch.Succeeded)
	assert.ElementsMatch(t, []string{"lib", "app"}, report.Build.Succeeded)
	assert.ElementsMatch(t, []string{"lib", "app"}, report.Push.Succeeded)

	// build/push must respect dependency order; fetch has none.
	buildLibIdx, buildAppIdx := indexOf(events, "build:lib"), indexOf(events, "build:app")
	require.GreaterOrEqual(t, buildLibIdx, 0)
	require.GreaterOrEqual(t, buildAppIdx, 0)
	assert.Less(t, buildLibIdx, buildAppIdx)
}

func TestPipelineSkipsBuildAndPushForFailedFetch(t *testing.T) {
	g := dag.New[string]()
	require.NoError(t, g.AddVertex("broken"))

	fetch := func(ctx context.Context, id string) error { return fmt.Errorf("fetch failed") }
	var buildCalled, pushCalled bool
	build := func(ctx context.Context, id string) error { buildCalled = true; return nil }
	push := func(ctx context.Context, id string) error { pushCalled = true; return nil }

	controller, ctx := scheduler.NewController(context.Background())
	p := &scheduler.Pipeline{
		Graph:      g,
		Controller: controller,
		Work:       scheduler.ElementWork{Fetch: fetch, Build: build, Push: push},
	}

	report, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"broken"}, report.Fetch.Failed)
	assert.Equal(t, []string{"broken"}, report.Build.Skipped)
	assert.Equal(t, []string{"broken"}, report.Push.Skipped)
	assert.False(t, buildCalled)
	assert.False(t, pushCalled)
}

func indexOf(s []string, v string) int {
	for i, item := range s {
		if item == v {
			return i
		}
	}
	return -1
}
