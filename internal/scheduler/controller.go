package scheduler

import (
	"context"
	"sync"
)

// FailurePolicy selects how a queue reacts to a permanently Failed element
//").
type FailurePolicy int

const (
	// PolicyContinue keeps running independent elements after a failure.
	PolicyContinue FailurePolicy = iota
	// PolicyQuit stops admitting new work once the current batch drains,
	// letting already-running work finish.
	PolicyQuit
	// PolicyTerminate cancels all running work immediately.
	PolicyTerminate
	// PolicyInteractive defers the decision to a registered Decider,
	// consulted via the message bus.
	PolicyInteractive
)

// Decider is consulted under PolicyInteractive to choose what happens to a
// failed element: retry it, drop into its sandbox shell, view its log, or
// quit the run. BuildStream's actual shell/log actions live above this
// package (cmd/bst); scheduler only needs the retry/quit signal.
type Decider interface {
	Decide(id string, err error) InteractiveChoice
}

// InteractiveChoice is a Decider's verdict for one failed element.
type InteractiveChoice int

const (
	ChoiceQuit InteractiveChoice = iota
	ChoiceRetry
	ChoiceIgnore
)

// Suspendable is implemented by whatever is running an element's assembly
// (internal/sandbox.Sandbox satisfies this) so the Controller can forward a
// pause or kill signal to it.
type Suspendable interface {
	Suspend() error
	Resume() error
	Cancel() error
}

// Controller is the scheduler-wide suspend/cancel switchboard. One
// Controller is shared by every QueueProcessor in a Pipeline so SIGTSTP,
// SIGINT, or a programmatic request reaches every active sandbox.
type Controller struct {
	mu        sync.Mutex
	paused    bool
	resumeCh  chan struct{}
	cancelled bool
	active    map[string]Suspendable

	cancelFunc context.CancelFunc
}

// NewController returns a Controller bound to ctx: calling Terminate
// cancels ctx so every Work function sharing it observes cancellation.
func NewController(ctx context.Context) (*Controller, context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	return &Controller{
		resumeCh:   make(chan struct{}),
		active:     make(map[string]Suspendable),
		cancelFunc: cancel,
	}, cctx
}

// Register associates id's currently-running work with a Suspendable handle
// so Suspend/Cancel can reach it. Unregister removes it on completion.
func (c *Controller) Register(id string, s Suspendable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[id] = s
}

func (c *Controller) Unregister(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, id)
}

// Suspend stops new dispatch and pauses every active sandbox (SIGTSTP).
func (c *Controller) Suspend() error {
	c.mu.Lock()
	if c.paused {
		c.mu.Unlock()
		return nil
	}
	c.paused = true
	handles := make([]Suspendable, 0, len(c.active))
	for _, s := range c.active {
		handles = append(handles, s)
	}
	c.mu.Unlock()

	var firstErr error
	for _, s := range handles {
		if err := s.Suspend(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Resume resumes dispatch and every paused sandbox (SIGCONT).
func (c *Controller) Resume() error {
	c.mu.Lock()
	if !c.paused {
		c.mu.Unlock()
		return nil
	}
	c.paused = false
	handles := make([]Suspendable, 0, len(c.active))
	for _, s := range c.active {
		handles = append(handles, s)
	}
	ch := c.resumeCh
	c.resumeCh = make(chan struct{})
	c.mu.Unlock()
	close(ch)

	var firstErr error
	for _, s := range handles {
		if err := s.Resume(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Terminate cancels the Pipeline's context and kills every active sandbox's
// process group.
func (c *Controller) Terminate() {
	c.mu.Lock()
	c.cancelled = true
	handles := make([]Suspendable, 0, len(c.active))
	for _, s := range c.active {
		handles = append(handles, s)
	}
	c.mu.Unlock()
	c.cancelFunc()
	for _, s := range handles {
		_ = s.Cancel()
	}
}

// Cancelled reports whether Terminate has been called.
func (c *Controller) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// waitIfPaused blocks the calling queue loop while suspended, returning
// early if ctx is cancelled.
func (c *Controller) waitIfPaused(ctx context.Context) error {
	for {
		c.mu.Lock()
		if !c.paused {
			c.mu.Unlock()
			return nil
		}
		ch := c.resumeCh
		c.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
