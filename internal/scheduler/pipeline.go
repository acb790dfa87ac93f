package scheduler

import (
	"context"

	"github.com/buildstream-go/buildstream/internal/dag"
)

// QueueSpec is the per-queue sizing and policy the user configures via
// sched.fetchers / sched.builders / sched.pushers / sched.network-retries /
// sched.on-error.
type QueueSpec struct {
	Concurrency   int
	MaxRetries    int
	FailurePolicy FailurePolicy
	Skip          func(id string) bool
}

// ElementWork supplies the three per-element operations a Pipeline drives:
// Fetch (source materialization), Build (sandbox assembly, ),
// and Push (remote upload, ).
type ElementWork struct {
	Fetch Work
	Build Work
	Push  Work
}

// Report collects each queue's Result after a Pipeline run.
type Report struct {
	Fetch Result
	Build Result
	Push  Result
}

// Pipeline chains the fetch, build, and push queues over one element
// dependency graph. Fetch has no dependency ordering of its own
// (fetching one element's sources never waits on another element's
// sources), so it runs over an edgeless copy of Graph's vertex set; Build
// and Push follow Graph's build-dependency edges directly.
type Pipeline struct {
	Graph      *dag.Graph[string]
	Controller *Controller
	Fetch      QueueSpec
	Build      QueueSpec
	Push       QueueSpec
	Work       ElementWork
	// OnEvent receives every state transition across all three queues,
	// tagged with the queue name, for forwarding to the message bus.
	OnEvent func(queue, id string, state State, err error)
}

// Run executes fetch, then build, then push, in that order, over ctx.
// A queue-level error (cancellation, group failure) stops the pipeline
// immediately; individual element failures are recorded in Report and
// handled per that queue's FailurePolicy without necessarily stopping the
// pipeline.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	var report Report

	fetchGraph := dag.New[string]()
	for _, id := range p.Graph.SortedKeys() {
		_ = fetchGraph.AddVertex(id)
	}

	fetchQ := NewQueueProcessor("fetch", fetchGraph, p.Work.Fetch, QueueOptions{
		Concurrency:   p.Fetch.Concurrency,
		MaxRetries:    p.Fetch.MaxRetries,
		FailurePolicy: p.Fetch.FailurePolicy,
		Skip:          p.Fetch.Skip,
		OnEvent:       tagEvent("fetch", p.OnEvent),
	}, p.Controller)
	fetchResult, err := fetchQ.Run(ctx)
	report.Fetch = fetchResult
	if err != nil {
		return report, err
	}

	fetchFailed := toSet(fetchResult.Failed, fetchResult.Skipped)
	buildQ := NewQueueProcessor("build", p.Graph, p.Work.Build, QueueOptions{
		Concurrency:   p.Build.Concurrency,
		MaxRetries:    p.Build.MaxRetries,
		FailurePolicy: p.Build.FailurePolicy,
		Skip:          skipIfEither(p.Build.Skip, fetchFailed),
		OnEvent:       tagEvent("build", p.OnEvent),
	}, p.Controller)
	buildResult, err := buildQ.Run(ctx)
	report.Build = buildResult
	if err != nil {
		return report, err
	}

	buildFailed := toSet(buildResult.Failed, buildResult.Skipped)
	pushQ := NewQueueProcessor("push", p.Graph, p.Work.Push, QueueOptions{
		Concurrency:   p.Push.Concurrency,
		MaxRetries:    p.Push.MaxRetries,
		FailurePolicy: p.Push.FailurePolicy,
		Skip:          skipIfEither(p.Push.Skip, buildFailed),
		OnEvent:       tagEvent("push", p.OnEvent),
	}, p.Controller)
	pushResult, err := pushQ.Run(ctx)
	report.Push = pushResult
	return report, err
}

func tagEvent(queue string, onEvent func(queue, id string, state State, err error)) func(id string, state State, err error) {
	if onEvent == nil {
		return nil
	}
	return func(id string, state State, err error) { onEvent(queue, id, state, err) }
}

func toSet(lists ...[]string) map[string]bool {
	set := make(map[string]bool)
	for _, list := range lists {
		for _, id := range list {
			set[id] = true
		}
	}
	return set
}

func skipIfEither(base func(id string) bool, failedUpstream map[string]bool) func(id string) bool {
	return func(id string) bool {
		if failedUpstream[id] {
			return true
		}
		return base != nil && base(id)
	}
}
