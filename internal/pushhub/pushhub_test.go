package pushhub

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestRegisterRejectsOverUserCap(t *testing.T) {
	h := New(1, 10, time.Hour)

	if _, ok := h.Register("a", "alice", "1.1.1.1"); !ok {
		t.Fatal("first subscriber should be admitted")
	}
	if _, ok := h.Register("b", "alice", "1.1.1.2"); ok {
		t.Fatal("second subscriber for the same user should be rejected")
	}
}

func TestRegisterRejectsOverIPCap(t *testing.T) {
	h := New(10, 1, time.Hour)

	if _, ok := h.Register("a", "alice", "1.1.1.1"); !ok {
		t.Fatal("first subscriber should be admitted")
	}
	if _, ok := h.Register("b", "bob", "1.1.1.1"); ok {
		t.Fatal("second subscriber from the same IP should be rejected")
	}
}

func TestUnregisterFreesCapacity(t *testing.T) {
	h := New(1, 10, time.Hour)
	sub, _ := h.Register("a", "alice", "1.1.1.1")
	h.Unregister(sub)

	if _, ok := h.Register("b", "alice", "1.1.1.1"); !ok {
		t.Fatal("capacity should be freed after Unregister")
	}
}

func TestPublishDeliversToAllSubscribersOfUser(t *testing.T) {
	h := New(10, 10, time.Hour)
	s1, _ := h.Register("a", "alice", "1.1.1.1")
	s2, _ := h.Register("b", "alice", "1.1.1.2")

	h.Publish("alice", "mute", map[string]any{"muted": true})

	for _, s := range []*Subscriber{s1, s2} {
		select {
		case frame := <-s.send:
			if !strings.Contains(string(frame), "event: mute") {
				t.Fatalf("unexpected frame: %s", frame)
			}
		default:
			t.Fatal("expected frame in subscriber buffer")
		}
	}
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	h := New(10, 10, time.Hour)
	sub, _ := h.Register("a", "alice", "1.1.1.1")

	for i := 0; i < sendBufferSize+5; i++ {
		h.Publish("alice", "ping", map[string]any{"n": i})
	}

	if len(sub.send) != sendBufferSize {
		t.Fatalf("buffer len = %d, want %d (no blocking, no unbounded growth)", len(sub.send), sendBufferSize)
	}
}

func TestPublishToUnknownUserIsNoop(t *testing.T) {
	h := New(10, 10, time.Hour)
	h.Publish("nobody", "ping", map[string]any{})
}

func TestRunExitsOnContextCancel(t *testing.T) {
	h := New(10, 10, time.Hour)
	sub, _ := h.Register("a", "alice", "1.1.1.1")

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	var writes int

	done := make(chan struct{})
	go func() {
		h.Run(ctx, sub, func(b []byte) error {
			mu.Lock()
			writes++
			mu.Unlock()
			return nil
		})
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after context cancellation")
	}

	if h.CountForUser("alice") != 0 {
		t.Fatal("Run should unregister the subscriber on exit")
	}
}

func TestRunUnregistersOnWriteError(t *testing.T) {
	h := New(10, 10, time.Millisecond)
	sub, _ := h.Register("a", "alice", "1.1.1.1")

	done := make(chan struct{})
	go func() {
		h.Run(context.Background(), sub, func(b []byte) error {
			return errWriteFailed
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after a write error")
	}

	if h.CountForUser("alice") != 0 {
		t.Fatal("Run should unregister the subscriber after a write error")
	}
}

var errWriteFailed = &writeError{}

type writeError struct{}

func (*writeError) Error() string { return "write failed" }
