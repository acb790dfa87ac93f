package bstcontext_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildstream-go/buildstream/internal/bstcontext"
)

func TestBusDeliversMessagesToHandler(t *testing.T) {
	bus := bstcontext.NewBus()
	var mu sync.Mutex
	var got []bstcontext.Message
	bus.SetHandler(func(msg bstcontext.Message) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, msg)
	})

	done := make(chan struct{})
	go bus.Run(done)

	bus.Send(bstcontext.Message{Kind: bstcontext.Info, Text: "hello"})
	close(done)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "hello", got[0].Text)
}

func TestBusDrainsQueuedMessagesOnShutdown(t *testing.T) {
	bus := bstcontext.NewBus()
	var mu sync.Mutex
	var got []bstcontext.Message
	bus.SetHandler(func(msg bstcontext.Message) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, msg)
	})

	for i := 0; i < 5; i++ {
		bus.Send(bstcontext.Message{Kind: bstcontext.Status})
	}
	done := make(chan struct{})
	close(done)
	bus.Run(done)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, 5)
}

func TestBusCloseIsIdempotent(t *testing.T) {
	bus := bstcontext.NewBus()
	assert.NotPanics(t, func() {
		bus.Close()
		bus.Close()
	})
}

func TestMessageKindString(t *testing.T) {
	assert.Equal(t, "warn", bstcontext.Warn.String())
	assert.Equal(t, "success", bstcontext.Success.String())
	assert.Equal(t, "unknown", bstcontext.MessageKind(99).String())
}
