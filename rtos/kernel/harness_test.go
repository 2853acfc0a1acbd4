package kernel

import (
	"context"
	"testing"
	"time"
)

type harness struct {
	t    *testing.T
	k    *Kernel
	idle chan struct{}
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	idle := make(chan struct{}, 1)
	cfg.IdleHook = func() {
		select {
		case idle <- struct{}{}:
		default:
		}
	}
	if cfg.HeapBytes == 0 {
		cfg.HeapBytes = 32 << 10
	}
	k, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &harness{t: t, k: k, idle: idle}
}

func (h *harness) start() {
	h.t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.k.Start(ctx) }()
	h.t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			h.t.Error("Start did not return after cancel")
		}
	})
	h.settle()
}

// settle waits until the idle task runs with no switch pending.
func (h *harness) settle() {
	h.t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-h.idle:
		default:
		}
		h.k.kick()
		select {
		case <-h.idle:
		case <-deadline:
			h.t.Fatal("kernel did not go idle")
		}
		if h.k.Idle() {
			return
		}
	}
}

func (h *harness) tick(n int) {
	h.t.Helper()
	for i := 0; i < n; i++ {
		h.k.Tick()
		h.settle()
	}
}

func (h *harness) spawn(name string, prio Priority, fn TaskFunc) TaskID {
	h.t.Helper()
	id, err := h.k.CreateTask(name, fn, nil, 128, prio)
	if err != nil {
		h.t.Fatalf("CreateTask(%q) error = %v", name, err)
	}
	return id
}

func (h *harness) signal(id TaskID, bits uint32) {
	h.k.YieldFromISR(h.k.SendSignalFromISR(id, bits))
	h.settle()
}

func (h *harness) info(id TaskID) TaskInfo {
	h.t.Helper()
	ti, ok := h.k.Task(id)
	if !ok {
		h.t.Fatalf("Task(%d) not found", id)
	}
	return ti
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for task report")
	}
	var zero T
	return zero
}

func noReport[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected report %v", v)
	default:
	}
}
