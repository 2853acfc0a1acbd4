// Package ktest runs a manually ticked kernel for tests of code built on it.
package ktest

import (
	"context"
	"testing"
	"time"

	"myrtos/rtos/kernel"
)

// Harness owns a kernel whose tick is driven by the test.
type Harness struct {
	t    testing.TB
	K    *kernel.Kernel
	idle chan struct{}
}

// New creates an unstarted kernel. cfg.IdleHook is replaced.
func New(t testing.TB, cfg kernel.Config) *Harness {
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
	k, err := kernel.New(cfg)
	if err != nil {
		t.Fatalf("kernel.New() error = %v", err)
	}
	return &Harness{t: t, K: k, idle: idle}
}

// Start runs the kernel until the test ends and waits for it to go idle.
func (h *Harness) Start() {
	h.t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.K.Start(ctx) }()
	h.t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			h.t.Error("kernel did not stop")
		}
	})
	h.Settle()
}

// Settle waits until every task is blocked and the idle task runs.
func (h *Harness) Settle() {
	h.t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-h.idle:
		default:
		}
		h.K.Kick()
		select {
		case <-h.idle:
		case <-deadline:
			h.t.Fatal("kernel did not go idle")
		}
		if h.K.Idle() {
			return
		}
	}
}

// Tick advances time by n ticks, settling after each.
func (h *Harness) Tick(n int) {
	h.t.Helper()
	for i := 0; i < n; i++ {
		h.K.Tick()
		h.Settle()
	}
}
