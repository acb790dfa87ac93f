package bstcontext

import (
	"sync"
	"time"
)

// MessageKind discriminates a Message's severity/role.
type MessageKind int

const (
	Status MessageKind = iota
	Info
	Warn
	Fail
	Bug
	Start
	Success
)

func (k MessageKind) String() string {
	switch k {
	case Status:
		return "status"
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Fail:
		return "fail"
	case Bug:
		return "bug"
	case Start:
		return "start"
	case Success:
		return "success"
	default:
		return "unknown"
	}
}

// Message is one frontend-bound event, matching 
// "(kind, element-id, action, text, detail, elapsed, logfile)" tuple.
type Message struct {
	Kind      MessageKind
	ElementID string
	Action    string
	Text      string
	Detail    string
	Elapsed   time.Duration
	LogFile   string
}

// Bus is the thread-safe channel workers send Messages through; the main
// loop drains it and dispatches to a single registered handler").
type Bus struct {
	ch chan Message

	mu      sync.RWMutex
	handler func(Message)

	closeOnce sync.Once
}

// NewBus creates a Bus with a generously buffered channel so worker
// goroutines never block on a slow or absent frontend.
func NewBus() *Bus {
	return &Bus{ch: make(chan Message, 256)}
}

// SetHandler installs the frontend's message handler. Only one handler is
// ever active; a later call replaces the previous one.
func (b *Bus) SetHandler(handler func(Message)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = handler
}

// Send enqueues a message. Safe for concurrent use by multiple worker
// goroutines.
func (b *Bus) Send(msg Message) {
	b.ch <- msg
}

// Run drains the bus on the calling goroutine (intended to be the main
// loop) until done is closed or Close is called.
func (b *Bus) Run(done <-chan struct{}) {
	for {
		select {
		case msg, ok := <-b.ch:
			if !ok {
				return
			}
			b.mu.RLock()
			handler := b.handler
			b.mu.RUnlock()
			if handler != nil {
				handler(msg)
			}
		case <-done:
			b.drain()
			return
		}
	}
}

// drain dispatches any messages already queued before Run was asked to
// stop, so a Fail message sent just before shutdown is never lost.
func (b *Bus) drain() {
	for {
		select {
		case msg := <-b.ch:
			b.mu.RLock()
			handler := b.handler
			b.mu.RUnlock()
			if handler != nil {
				handler(msg)
			}
		default:
			return
		}
	}
}

// Close closes the underlying channel; subsequent Sends panic, matching
// close-then-send-is-a-bug channel semantics. Call only after every worker
// has finished sending.
func (b *Bus) Close() {
	b.closeOnce.Do(func() { close(b.ch) })
}
