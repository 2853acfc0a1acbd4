package kernel

import "myrtos/rtos/internal/heap"

const semaphoreBytes = 24

// Semaphore is a counting semaphore. Give hands a unit straight to the
// head waiter instead of raising the count.
type Semaphore struct {
	k   *Kernel
	blk heap.Ptr

	count   uint32
	max     uint32
	waiters WaitQueue
	deleted bool
}

// NewSemaphore allocates a semaphore holding initial of max units.
func (k *Kernel) NewSemaphore(max, initial uint32) (*Semaphore, error) {
	if max == 0 || initial > max {
		return nil, ErrBadSemaphore
	}
	k.isrEnter()
	defer k.isrExit()
	blk, ok := k.alloc(semaphoreBytes, NoTask)
	if !ok {
		return nil, ErrNoMemory
	}
	return &Semaphore{k: k, blk: blk, count: initial, max: max, waiters: newWaitQueue()}, nil
}

// Take acquires a unit, waiting up to timeout ticks.
func (s *Semaphore) Take(ctx *Context, timeout uint32) bool {
	k := s.k
	k.enter(ctx)
	if s.deleted {
		k.exit(ctx)
		return false
	}
	if s.count > 0 {
		s.count--
		k.exit(ctx)
		return true
	}
	if timeout == 0 || !k.canBlock(ctx) {
		k.exit(ctx)
		return false
	}
	k.block(ctx, &s.waiters, timeout, StateBlocked)
	t := &k.tasks[ctx.id]
	ok := t.event == nil && !t.aborted
	k.eventListRemove(ctx.id)
	k.exit(ctx)
	return ok
}

// Give releases a unit. It fails when the count is already at max.
func (s *Semaphore) Give(ctx *Context) bool {
	k := s.k
	k.enter(ctx)
	ok, woken := s.give()
	if woken {
		k.pending = true
	}
	k.exit(ctx)
	return ok
}

// GiveFromISR is Give for interrupt context. It reports whether a task
// above the running one was woken; pass that to YieldFromISR.
func (s *Semaphore) GiveFromISR() (ok, woken bool) {
	k := s.k
	k.isrEnter()
	ok, woken = s.give()
	k.isrExit()
	return ok, woken
}

func (s *Semaphore) give() (ok, woken bool) {
	if s.deleted {
		return false, false
	}
	if s.waiters.Len() > 0 {
		return true, s.k.wake(s.waiters.head())
	}
	if s.count >= s.max {
		return false, false
	}
	s.count++
	return true, false
}

// Count returns the units available. A nil ctx reads from outside any task.
func (s *Semaphore) Count(ctx *Context) uint32 {
	s.k.enter(ctx)
	n := s.count
	s.k.exit(ctx)
	return n
}

// Delete frees the semaphore; waiters fail.
func (s *Semaphore) Delete(ctx *Context) {
	k := s.k
	k.enter(ctx)
	if s.deleted {
		k.exit(ctx)
		return
	}
	s.deleted = true
	s.count = 0
	if k.wakeAll(&s.waiters) {
		k.pending = true
	}
	k.heap.Free(s.blk)
	k.exit(ctx)
}
