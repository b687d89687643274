package eventbus

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"coral-agents/internal/domain"
)

func newTestBus() *Bus {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPublishSubscribe(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventAgentRouted, func(_ context.Context, e domain.Event) {
		if e.Type == domain.EventAgentRouted && e.ThreadID == "t1" {
			got.Add(1)
		}
	})
	bus.Subscribe(domain.EventAgentCallFailed, func(_ context.Context, _ domain.Event) {
		t.Error("unrelated subscriber should not fire")
	})

	bus.Publish(context.Background(), domain.NewEvent(domain.EventAgentRouted, "t1", nil))
	bus.Close()
	if got.Load() != 1 {
		t.Fatalf("expected 1, got %d", got.Load())
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.SubscribeAll(func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	bus.Publish(context.Background(), domain.NewEvent(domain.EventWorkflowStarted, "t", nil))
	bus.Publish(context.Background(), domain.NewEvent(domain.EventWorkflowComplete, "t", nil))
	bus.Close()

	if got.Load() != 2 {
		t.Fatalf("expected 2, got %d", got.Load())
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := newTestBus()

	var typed, all atomic.Int32
	unsubTyped := bus.Subscribe(domain.EventAgentRegistered, func(_ context.Context, _ domain.Event) {
		typed.Add(1)
	})
	unsubAll := bus.SubscribeAll(func(_ context.Context, _ domain.Event) {
		all.Add(1)
	})

	unsubTyped()
	unsubAll()
	bus.Publish(context.Background(), domain.NewEvent(domain.EventAgentRegistered, "", nil))
	bus.Close()

	if typed.Load() != 0 || all.Load() != 0 {
		t.Fatalf("expected no deliveries after unsubscribe, got typed=%d all=%d", typed.Load(), all.Load())
	}
}

func TestConcurrentPublish(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventAgentRouted, func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), domain.NewEvent(domain.EventAgentRouted, "t", nil))
		}()
	}
	wg.Wait()
	bus.Close()

	if got.Load() != 100 {
		t.Fatalf("expected 100, got %d", got.Load())
	}
	if published, _ := bus.Stats(); published != 100 {
		t.Fatalf("published = %d, want 100", published)
	}
}

func TestPanicRecovery(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventWorkflowFailed, func(_ context.Context, _ domain.Event) {
		panic("boom")
	})
	bus.Subscribe(domain.EventWorkflowFailed, func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	bus.Publish(context.Background(), domain.NewEvent(domain.EventWorkflowFailed, "t", nil))
	bus.Close()

	if got.Load() != 1 {
		t.Fatalf("expected 1 (second handler), got %d", got.Load())
	}
	if _, panics := bus.Stats(); panics != 1 {
		t.Fatalf("panics = %d, want 1", panics)
	}
}

func TestCloseDrainsAndRejectsNew(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventAgentRouted, func(_ context.Context, _ domain.Event) {
		time.Sleep(50 * time.Millisecond)
		got.Add(1)
	})

	bus.Publish(context.Background(), domain.NewEvent(domain.EventAgentRouted, "t", nil))
	bus.Close()

	if got.Load() != 1 {
		t.Fatalf("expected handler to have run, got %d", got.Load())
	}

	bus.Publish(context.Background(), domain.NewEvent(domain.EventAgentRouted, "t", nil))
	time.Sleep(20 * time.Millisecond)
	if got.Load() != 1 {
		t.Fatalf("publish after close should be ignored, got %d", got.Load())
	}
	bus.Close()
}

func TestNewEventEncodesPayload(t *testing.T) {
	e := domain.NewEvent(domain.EventAgentRouted, "t", domain.RoutedEvent{MessageID: "m", Capability: domain.CapabilityUIGen})
	if len(e.Payload) == 0 {
		t.Fatal("payload should be encoded")
	}
	if e.Timestamp.IsZero() {
		t.Fatal("timestamp should be set")
	}
}
