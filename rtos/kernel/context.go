package kernel

import "sync/atomic"

// Context is the task-local handle passed to every TaskFunc. It must only
// be used on the goroutine of the task it was given to.
type Context struct {
	k  *Kernel
	id TaskID

	// nesting counts EnterCritical levels, kernel-internal ones included.
	nesting int

	resume  chan struct{}
	kill    chan struct{}
	exiting bool
	gone    atomic.Bool
}

// TaskID returns the current task ID.
func (c *Context) TaskID() TaskID { return c.id }

// Kernel returns the kernel running the task.
func (c *Context) Kernel() *Kernel { return c.k }

// NowTick returns the current tick count.
func (c *Context) NowTick() uint64 { return c.k.tick.Load() }

// CreateTask creates a task. A new task that outranks the caller runs
// before CreateTask returns.
func (c *Context) CreateTask(name string, fn TaskFunc, arg any, stackWords uint32, prio Priority) (TaskID, error) {
	k := c.k
	k.enter(c)
	id, err := k.createTaskLocked(name, fn, arg, stackWords, prio)
	if err == nil && prio > k.tasks[k.current].prio {
		k.pending = true
	}
	k.exit(c)
	return id, err
}

// Delete deletes a task. NoTask or the caller's own id deletes the caller
// and does not return. The idle task cannot be deleted.
func (c *Context) Delete(id TaskID) bool {
	k := c.k
	k.enter(c)
	if id == NoTask || id == c.id {
		k.deleteSelfLocked(c)
	}
	if !k.valid(id) || id == k.idle {
		k.exit(c)
		return false
	}
	k.deleteLocked(id)
	k.exit(c)
	return true
}

// Exit deletes the calling task.
func (c *Context) Exit() {
	c.Delete(NoTask)
}

// Delay blocks the caller for ticks ticks. Zero yields; WaitForever
// suspends the caller until another task resumes it.
func (c *Context) Delay(ticks uint32) {
	switch ticks {
	case 0:
		c.Yield()
		return
	case WaitForever:
		c.Suspend(NoTask)
		return
	}
	k := c.k
	k.enter(c)
	if k.canBlock(c) {
		k.block(c, nil, ticks, StateDelayed)
	}
	k.exit(c)
}

// DelayUntil blocks until *prev+period and advances *prev by period, giving
// a fixed-rate loop. It returns false without blocking when that tick has
// already passed.
func (c *Context) DelayUntil(prev *uint64, period uint32) bool {
	k := c.k
	k.enter(c)
	wake := *prev + uint64(period)
	*prev = wake
	now := k.tick.Load()
	delayed := false
	if wake > now && k.canBlock(c) {
		k.block(c, nil, uint32(wake-now), StateDelayed)
		delayed = true
	}
	k.exit(c)
	return delayed
}

// Yield gives the processor to the next ready task of the same priority.
func (c *Context) Yield() {
	k := c.k
	k.enter(c)
	k.pending = true
	k.exit(c)
}

// Suspend takes a task out of scheduling until Resume. NoTask suspends the
// caller. A suspended waiter stays on its wait queue but loses its timeout.
func (c *Context) Suspend(id TaskID) bool {
	k := c.k
	k.enter(c)
	if id == NoTask {
		id = c.id
	}
	if !k.valid(id) || id == k.idle {
		k.exit(c)
		return false
	}
	k.suspendLocked(id)
	if id == c.id {
		k.pending = true
	}
	k.exit(c)
	return true
}

// Resume makes a suspended task schedulable again.
func (c *Context) Resume(id TaskID) bool {
	k := c.k
	k.enter(c)
	if !k.valid(id) || k.tasks[id].state != StateSuspended {
		k.exit(c)
		return false
	}
	if k.resumeLocked(id) {
		k.pending = true
	}
	k.exit(c)
	return true
}

// Notify sets the task's notification, waking it if it waits for one.
func (c *Context) Notify(id TaskID) bool {
	k := c.k
	k.enter(c)
	if !k.valid(id) {
		k.exit(c)
		return false
	}
	if k.notifyLocked(id) {
		k.pending = true
	}
	k.exit(c)
	return true
}

func (k *Kernel) notifyLocked(id TaskID) bool {
	t := &k.tasks[id]
	t.notified = true
	if !t.waitNotify {
		return false
	}
	t.waitNotify = false
	return k.wake(id)
}

// Wait blocks until the caller's notification is set, then clears it. It
// returns false if the caller cannot block.
func (c *Context) Wait() bool {
	k := c.k
	k.enter(c)
	t := &k.tasks[c.id]
	if !t.notified {
		if !k.canBlock(c) {
			k.exit(c)
			return false
		}
		t.waitNotify = true
		k.block(c, nil, WaitForever, StateBlocked)
	}
	t.notified = false
	k.exit(c)
	return true
}

// EnterCritical disables interrupts for the caller. Calls nest. Blocking
// calls fail while the caller is inside a critical section.
func (c *Context) EnterCritical() {
	c.k.enter(c)
}

// ExitCritical leaves one level of critical section. Leaving the last one
// takes any switch pended meanwhile.
func (c *Context) ExitCritical() {
	if c.nesting == 0 {
		return
	}
	c.k.exit(c)
}

// NotifyFromISR is Notify for interrupt context. It reports whether a task
// above the running one was woken.
func (k *Kernel) NotifyFromISR(id TaskID) (woken bool) {
	k.isrEnter()
	if k.valid(id) {
		woken = k.notifyLocked(id)
	}
	k.isrExit()
	return woken
}
