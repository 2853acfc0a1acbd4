// Package kernel is a preemptive priority scheduler with priority-inheritance
// mutexes, counting semaphores, signal flags and message queues.
//
// Tasks run on their own goroutines and hand the processor to each other
// explicitly: exactly one task goroutine executes at a time. A process-wide
// lock stands for "interrupts disabled"; interrupt sources such as the tick
// take the same lock and pend a switch, which the running task takes when it
// leaves its outermost critical section.
//
// Calls taking a *Context nest inside the caller's critical section. Kernel
// methods without one, such as Tasks, HeapStats and the FromISR calls, take
// the lock themselves and must not be called from inside
// Context.EnterCritical.
package kernel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gammazero/deque"

	"myrtos/rtos/internal/heap"
)

// Kernel owns the task arena, the ready, delay and event lists and the heap.
type Kernel struct {
	cfg Config

	// irq is held while "interrupts are disabled".
	irq sync.Mutex

	heap *heap.Heap

	tasks   []tcb
	usedIDs uint64

	ready     []taskList
	readyBits uint32
	delay     taskList

	current  TaskID
	idle     TaskID
	switches uint64
	pending  bool
	started  bool
	halted   bool

	tick atomic.Uint64

	// terminated holds self-deleted tasks whose memory is released at the
	// next switch made by a live task.
	terminated deque.Deque[TaskID]

	wfi      chan struct{}
	halt     chan struct{}
	haltOnce sync.Once

	events EventRing

	panicActive  atomic.Bool
	panicOnce    sync.Once
	panicHandler atomic.Value // func(PanicInfo)
}

// New creates a kernel. Zero fields of cfg take their DefaultConfig value.
func New(cfg Config) (*Kernel, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	k := &Kernel{
		cfg:   cfg,
		heap:  heap.New(cfg.HeapBytes),
		tasks: make([]tcb, cfg.MaxTasks+1),
		ready: make([]taskList, cfg.MaxPriorities),
		delay: taskList{kind: genericLink, level: -1},
		wfi:   make(chan struct{}, 1),
		halt:  make(chan struct{}),
	}
	for p := range k.ready {
		k.ready[p] = taskList{kind: genericLink, level: p}
	}
	return k, nil
}

// Config returns the effective configuration.
func (k *Kernel) Config() Config { return k.cfg }

// Events returns the lifecycle and fault event ring.
func (k *Kernel) Events() *EventRing { return &k.events }

// Ticks returns the number of ticks since the kernel was created.
func (k *Kernel) Ticks() uint64 { return k.tick.Load() }

// Current returns the running task.
func (k *Kernel) Current() TaskID {
	k.irq.Lock()
	defer k.irq.Unlock()
	return k.current
}

// Start creates the idle task and dispatches the highest-priority task. It
// blocks until ctx is done, then halts every task goroutine and returns
// ctx.Err(). A kernel cannot be restarted.
func (k *Kernel) Start(ctx context.Context) error {
	k.irq.Lock()
	if k.started {
		k.irq.Unlock()
		return ErrStarted
	}
	id, err := k.createTaskLocked("idle", k.idleTask, nil, k.cfg.IdleStackWords, 0)
	if err != nil {
		k.irq.Unlock()
		return fmt.Errorf("create idle task: %w", err)
	}
	k.idle = id
	k.started = true
	k.pending = false
	first := &k.tasks[k.scheduleNextTask()]
	first.started = true
	fctx, fn, arg := first.ctx, first.fn, first.arg
	k.irq.Unlock()

	go k.trampoline(fctx, fn, arg)

	<-ctx.Done()
	k.shutdown()
	return ctx.Err()
}

func (k *Kernel) shutdown() {
	k.irq.Lock()
	k.halted = true
	k.irq.Unlock()
	k.haltOnce.Do(func() { close(k.halt) })
}

// Halted reports whether Start has returned or is returning.
func (k *Kernel) Halted() bool {
	select {
	case <-k.halt:
		return true
	default:
		return false
	}
}
