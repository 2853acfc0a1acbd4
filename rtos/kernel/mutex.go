package kernel

import "myrtos/rtos/internal/heap"

const mutexBytes = 24

// Mutex is a mutual-exclusion lock with single-level priority inheritance.
// Unlocking hands ownership straight to the highest-priority waiter.
type Mutex struct {
	k   *Kernel
	blk heap.Ptr

	locked    bool
	owner     TaskID
	recursion uint32
	// next links the mutexes held by the same owner.
	next *Mutex

	waiters WaitQueue
	deleted bool
}

// NewMutex allocates an unlocked mutex.
func (k *Kernel) NewMutex() (*Mutex, error) {
	k.isrEnter()
	defer k.isrExit()
	blk, ok := k.alloc(mutexBytes, NoTask)
	if !ok {
		return nil, ErrNoMemory
	}
	m := &Mutex{k: k, blk: blk, waiters: newWaitQueue()}
	m.waiters.mutex = m
	return m, nil
}

// Lock takes the mutex, waiting up to timeout ticks. The owner calling Lock
// again fails; use LockRecursive to nest.
func (m *Mutex) Lock(ctx *Context, timeout uint32) bool {
	return m.lock(ctx, timeout, false)
}

// LockRecursive is Lock that lets the owner lock again, counting the depth.
func (m *Mutex) LockRecursive(ctx *Context, timeout uint32) bool {
	return m.lock(ctx, timeout, true)
}

func (m *Mutex) lock(ctx *Context, timeout uint32, recursive bool) bool {
	if ctx == nil {
		return false
	}
	k := m.k
	k.enter(ctx)
	self := ctx.id
	switch {
	case m.deleted:
		k.exit(ctx)
		return false
	case !m.locked:
		k.acquire(m, self)
		k.exit(ctx)
		return true
	case m.owner == self:
		if recursive {
			m.recursion++
		}
		k.exit(ctx)
		return recursive
	case timeout == 0 || !k.canBlock(ctx):
		k.exit(ctx)
		return false
	}

	if p := k.tasks[self].prio; p > k.tasks[m.owner].prio {
		k.setPriority(m.owner, p)
	}
	k.block(ctx, &m.waiters, timeout, StateBlocked)
	if m.locked && m.owner == self {
		k.exit(ctx)
		return true
	}
	k.eventListRemove(self)
	if m.locked {
		k.restorePriority(m.owner)
	}
	k.exit(ctx)
	return false
}

// Unlock releases the mutex whatever the recursion depth. Calls by a task
// that does not own it are ignored.
func (m *Mutex) Unlock(ctx *Context) {
	m.unlock(ctx, false)
}

// UnlockRecursive undoes one LockRecursive, releasing the mutex when the
// depth returns to zero.
func (m *Mutex) UnlockRecursive(ctx *Context) {
	m.unlock(ctx, true)
}

func (m *Mutex) unlock(ctx *Context, recursive bool) {
	if ctx == nil {
		return
	}
	k := m.k
	k.enter(ctx)
	if !m.locked || m.owner != ctx.id {
		k.exit(ctx)
		return
	}
	if recursive && m.recursion > 0 {
		m.recursion--
		k.exit(ctx)
		return
	}
	if k.releaseMutex(m) {
		k.pending = true
	}
	k.exit(ctx)
}

// Delete frees the mutex. Waiters fail; an owner keeps running without it.
func (m *Mutex) Delete(ctx *Context) {
	k := m.k
	k.enter(ctx)
	if m.deleted {
		k.exit(ctx)
		return
	}
	m.deleted = true
	preempt := k.wakeAll(&m.waiters)
	if m.locked {
		owner := m.owner
		k.unlinkHeld(m)
		k.restorePriority(owner)
	}
	k.heap.Free(m.blk)
	if preempt {
		k.pending = true
	}
	k.exit(ctx)
}

// Owner returns the owning task, NoTask when unlocked.
func (m *Mutex) Owner(ctx *Context) TaskID {
	m.k.enter(ctx)
	id := m.owner
	m.k.exit(ctx)
	return id
}

// Locked reports whether the mutex is held.
func (m *Mutex) Locked(ctx *Context) bool {
	m.k.enter(ctx)
	held := m.locked
	m.k.exit(ctx)
	return held
}

func (k *Kernel) acquire(m *Mutex, id TaskID) {
	t := &k.tasks[id]
	m.locked = true
	m.owner = id
	m.recursion = 0
	m.next = t.held
	t.held = m
}

// unlinkHeld removes m from its owner's held list and marks it unlocked.
func (k *Kernel) unlinkHeld(m *Mutex) {
	t := &k.tasks[m.owner]
	for pp := &t.held; *pp != nil; pp = &(*pp).next {
		if *pp == m {
			*pp = m.next
			break
		}
	}
	m.next = nil
	m.locked = false
	m.owner = NoTask
	m.recursion = 0
}

// releaseMutex unlocks m, restores the previous owner's priority and hands
// m to the head waiter. It reports whether the new owner outranks the
// running task.
func (k *Kernel) releaseMutex(m *Mutex) bool {
	prev := m.owner
	k.unlinkHeld(m)
	k.restorePriority(prev)
	if m.waiters.Len() == 0 {
		return false
	}
	id := m.waiters.head()
	preempt := k.wake(id)
	k.acquire(m, id)
	return preempt
}

// restorePriority sets the task's priority to the highest of its base
// priority and the head waiters of the mutexes it still holds.
func (k *Kernel) restorePriority(id TaskID) {
	t := &k.tasks[id]
	if t.state == StateUnused {
		return
	}
	p := t.base
	for m := t.held; m != nil; m = m.next {
		if h := m.waiters.head(); h != NoTask && k.tasks[h].prio > p {
			p = k.tasks[h].prio
		}
	}
	k.setPriority(id, p)
}
