// Package scheduler implements the three-queue fetch/build/push pipeline
// of : bounded-concurrency worker pools that walk the element
// dependency graph in batched topological order, admitting each element to
// a queue only once its predecessors have cleared that same queue.
//
// QueueProcessor generalizes the batched Kahn's-algorithm shape of
// bindings/go/dag/sync/process.go's GraphProcessor (errgroup.WithContext,
// SetLimit concurrency, in-degree bookkeeping) with the retry, skip, and
// failure-policy semantics each of BuildStream's three queues additionally
// needs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/buildstream-go/buildstream/internal/dag"
)

// Work performs one element's unit of work for a queue (fetch, assemble, or
// push). A TemporaryError-satisfying return is retried; any other error is
// a permanent Failed outcome.
type Work func(ctx context.Context, id string) error

// QueueOptions configures one QueueProcessor.
type QueueOptions struct {
	// Concurrency bounds the number of elements processed at once
	// (sched.fetchers / sched.builders / sched.pushers).
	Concurrency int
	// MaxRetries bounds transient-failure retries (sched.network-retries).
	MaxRetries int
	// Backoff computes the delay before retry attempt N (0-indexed). A nil
	// Backoff uses an exponential backoff capped at 30s.
	Backoff func(attempt int) time.Duration
	// FailurePolicy governs the queue's reaction to a permanent Failed
	// element.
	FailurePolicy FailurePolicy
	// Skip reports elements that should bypass this queue entirely (e.g. a
	// build already cached locally,  "Processes elements whose
	// strong key is known and not already cached"). Skipped elements are
	// recorded in Result.Skipped without invoking Work.
	Skip func(id string) bool
	// OnEvent is called on every state transition, wired to the message
	// bus by the caller.
	OnEvent func(id string, state State, err error)
}

// Result summarizes one QueueProcessor.Run.
type Result struct {
	Succeeded []string
	Failed    []string
	Skipped   []string
}

// ErrCancelled is returned by Run when the Controller was terminated before
// the queue drained.
var ErrCancelled = errors.New("scheduler: run cancelled")

// QueueProcessor runs Work over every vertex of a dependency graph in
// batched topological order.
type QueueProcessor struct {
	name       string
	graph      *dag.Graph[string]
	work       Work
	opts       QueueOptions
	controller *Controller
}

// NewQueueProcessor builds a QueueProcessor named name (used only for error
// messages / logging context) over graph, invoking work for each admitted
// element and coordinating pause/cancel through controller.
func NewQueueProcessor(name string, graph *dag.Graph[string], work Work, opts QueueOptions, controller *Controller) *QueueProcessor {
	if opts.Backoff == nil {
		opts.Backoff = defaultBackoff
	}
	return &QueueProcessor{name: name, graph: graph, work: work, opts: opts, controller: controller}
}

func defaultBackoff(attempt int) time.Duration {
	d := 500 * time.Millisecond
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= 30*time.Second {
			return 30 * time.Second
		}
	}
	return d
}

// Run walks the graph in dependency order, admitting each batch of
// zero-remaining-predecessor elements once the previous batch has fully
// resolved.
func (q *QueueProcessor) Run(ctx context.Context) (Result, error) {
	inDegree := make(map[string]int, len(q.graph.Vertices))
	var queue []string
	for _, id := range q.graph.SortedKeys() {
		v := q.graph.Vertices[id]
		inDegree[id] = v.InDegree
		if v.InDegree == 0 {
			queue = append(queue, id)
		}
	}

	var result Result
	failed := make(map[string]bool)
	quitting := false

	for len(queue) > 0 {
		if q.controller != nil {
			if err := q.controller.waitIfPaused(ctx); err != nil {
				return result, fmt.Errorf("scheduler: %s queue: %w", q.name, err)
			}
			if q.controller.Cancelled() {
				result.Skipped = append(result.Skipped, queue...)
				return result, ErrCancelled
			}
		}

		batch := append([]string(nil), queue...)
		sort.Strings(batch) // stable tiebreak: element name, 
		queue = nil

		var runnable []string
		for _, id := range batch {
			skip := quitting
			if !skip && q.opts.Skip != nil && q.opts.Skip(id) {
				skip = true
			}
			if !skip {
				for pred := range predecessorsOf(q.graph, id) {
					if failed[pred] {
						skip = true
						break
					}
				}
			}
			if skip {
				failed[id] = true // propagate so descendants also skip
				result.Skipped = append(result.Skipped, id)
				q.event(id, Skipped, nil)
				continue
			}
			runnable = append(runnable, id)
		}

		group, gctx := errgroup.WithContext(ctx)
		if q.opts.Concurrency > 0 {
			group.SetLimit(q.opts.Concurrency)
		}

		var mu sync.Mutex
		for _, id := range runnable {
			group.Go(func() error {
				state, err := q.runOne(gctx, id)
				mu.Lock()
				switch state {
				case Succeeded:
					result.Succeeded = append(result.Succeeded, id)
				case Failed:
					result.Failed = append(result.Failed, id)
					failed[id] = true
					switch q.opts.FailurePolicy {
					case PolicyQuit:
						quitting = true
					case PolicyTerminate:
						if q.controller != nil {
							q.controller.Terminate()
						}
					}
				}
				mu.Unlock()
				q.event(id, state, err)
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return result, fmt.Errorf("scheduler: %s queue: %w", q.name, err)
		}

		for _, id := range batch {
			for child := range q.graph.Vertices[id].Edges {
				inDegree[child]--
				if inDegree[child] == 0 {
					queue = append(queue, child)
				}
			}
		}
	}

	return result, nil
}

func (q *QueueProcessor) event(id string, state State, err error) {
	if q.opts.OnEvent != nil {
		q.opts.OnEvent(id, state, err)
	}
}

// runOne executes Work for id, retrying TemporaryError outcomes up to
// MaxRetries with backoff.
func (q *QueueProcessor) runOne(ctx context.Context, id string) (State, error) {
	q.event(id, Running, nil)
	var lastErr error
	for attempt := 0; ; attempt++ {
		err := q.work(ctx, id)
		if err == nil {
			return Succeeded, nil
		}
		lastErr = err

		var temp TemporaryError
		if !errors.As(err, &temp) || !temp.Temporary() {
			return Failed, err
		}
		if attempt >= q.opts.MaxRetries {
			return Failed, fmt.Errorf("scheduler: %s: exhausted %d retries: %w", id, q.opts.MaxRetries, lastErr)
		}
		q.event(id, TransientFailed, err)
		select {
		case <-time.After(q.opts.Backoff(attempt)):
		case <-ctx.Done():
			return Failed, ctx.Err()
		}
	}
}

func predecessorsOf(g *dag.Graph[string], id string) map[string]struct{} {
	preds := make(map[string]struct{})
	for other, v := range g.Vertices {
		if _, ok := v.Edges[id]; ok {
			preds[other] = struct{}{}
		}
	}
	return preds
}
