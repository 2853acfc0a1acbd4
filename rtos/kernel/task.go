package kernel

import (
	"math/bits"

	"myrtos/rtos/internal/heap"
)

// CreateTask creates a ready task. It may be called before Start and from
// outside any task; a task creating another task uses Context.CreateTask.
func (k *Kernel) CreateTask(name string, fn TaskFunc, arg any, stackWords uint32, prio Priority) (TaskID, error) {
	k.isrEnter()
	id, err := k.createTaskLocked(name, fn, arg, stackWords, prio)
	if err == nil && k.started && prio > k.tasks[k.current].prio {
		k.pending = true
	}
	k.isrExit()
	return id, err
}

func (k *Kernel) createTaskLocked(name string, fn TaskFunc, arg any, stackWords uint32, prio Priority) (TaskID, error) {
	if fn == nil {
		return NoTask, ErrNilFunc
	}
	if int(prio) >= k.cfg.MaxPriorities {
		return NoTask, ErrBadPriority
	}
	if stackWords < k.cfg.MinStackWords {
		return NoTask, ErrBadStackSize
	}
	id, ok := k.allocID()
	if !ok {
		return NoTask, ErrNoTaskID
	}
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}

	tcbBlk, ok := k.alloc(tcbBytes, id)
	if !ok {
		k.releaseID(id)
		return NoTask, ErrNoMemory
	}
	stackBlk, ok := k.alloc(int(stackWords)*4, id)
	if !ok {
		k.heap.Free(tcbBlk)
		k.releaseID(id)
		return NoTask, ErrNoMemory
	}
	var nameBlk heap.Ptr
	if name != "" {
		nameBlk, ok = k.alloc(len(name), id)
		if !ok {
			k.heap.Free(stackBlk)
			k.heap.Free(tcbBlk)
			k.releaseID(id)
			return NoTask, ErrNoMemory
		}
		copy(k.heap.Bytes(nameBlk, len(name)), name)
	}

	k.tasks[id] = tcb{
		id:         id,
		name:       name,
		fn:         fn,
		arg:        arg,
		prio:       prio,
		base:       prio,
		signals:    newWaitQueue(),
		tcbBlk:     tcbBlk,
		stackBlk:   stackBlk,
		nameBlk:    nameBlk,
		stackWords: stackWords,
		ctx: &Context{
			k:      k,
			id:     id,
			resume: make(chan struct{}, 1),
			kill:   make(chan struct{}),
		},
	}
	t := &k.tasks[id]
	t.sp = k.initStack(t)
	k.addTaskToReadyList(id)
	k.publishArg(EventTaskCreated, id, stackWords)
	return id, nil
}

func (k *Kernel) alloc(n int, id TaskID) (heap.Ptr, bool) {
	p, ok := k.heap.Alloc(n)
	if !ok {
		k.publishArg(EventHeapExhausted, id, uint32(n))
	}
	return p, ok
}

func (k *Kernel) allocID() (TaskID, bool) {
	limit := uint64(1)<<uint(k.cfg.MaxTasks+1) - 1
	free := ^k.usedIDs & limit &^ 1
	if free == 0 {
		return NoTask, false
	}
	id := TaskID(bits.TrailingZeros64(free))
	k.usedIDs |= 1 << id
	return id, true
}

func (k *Kernel) releaseID(id TaskID) {
	k.usedIDs &^= 1 << id
}

func (k *Kernel) valid(id TaskID) bool {
	return id != NoTask && int(id) < len(k.tasks) && k.tasks[id].state != StateUnused
}

// unlinkTask detaches a task from every list and hands its mutexes over.
func (k *Kernel) unlinkTask(id TaskID) {
	t := &k.tasks[id]
	q := t.event
	k.removeTaskFromList(id)
	k.eventListRemove(id)
	t.wake = 0
	t.state = StateUnused
	if q != nil && q.mutex != nil && q.mutex.locked {
		k.restorePriority(q.mutex.owner)
		k.pending = true
	}
	for t.held != nil {
		if k.releaseMutex(t.held) {
			k.pending = true
		}
	}
}

// freeTask returns the memory and the id of an unlinked task and stops its
// goroutine if it is parked.
func (k *Kernel) freeTask(id TaskID) {
	t := &k.tasks[id]
	if t.nameBlk != 0 {
		k.heap.Free(t.nameBlk)
	}
	k.heap.Free(t.stackBlk)
	k.heap.Free(t.tcbBlk)
	if t.ctx != nil {
		close(t.ctx.kill)
	}
	k.tasks[id] = tcb{}
	k.releaseID(id)
}

// deleteLocked deletes a task other than the running one.
func (k *Kernel) deleteLocked(id TaskID) {
	k.unlinkTask(id)
	k.publish(EventTaskDeleted, id)
	k.freeTask(id)
}

// deleteSelfLocked deletes the running task. Its memory is released at the
// next switch made by a live task. It never returns.
func (k *Kernel) deleteSelfLocked(ctx *Context) {
	ctx.nesting = 1
	k.unlinkTask(ctx.id)
	k.publish(EventTaskDeleted, ctx.id)
	k.terminated.PushBack(ctx.id)
	ctx.exiting = true
	k.switchLocked(ctx)
}

func (k *Kernel) reapTerminated() {
	for k.terminated.Len() > 0 {
		id := k.terminated.PopFront()
		k.freeTask(id)
	}
}

func (k *Kernel) suspendLocked(id TaskID) {
	t := &k.tasks[id]
	if t.state == StateSuspended {
		return
	}
	if t.state == StateReady && t.event != nil {
		// Timed out but has not run yet: the wait is over.
		k.eventListRemove(id)
		t.aborted = true
	}
	k.removeTaskFromList(id)
	t.wake = 0
	t.state = StateSuspended
}

// resumeLocked readies a suspended task, or puts it back to waiting if it
// is still on a wait queue or waiting for a notification.
func (k *Kernel) resumeLocked(id TaskID) bool {
	t := &k.tasks[id]
	if t.state != StateSuspended {
		return false
	}
	if t.event != nil || t.waitNotify {
		t.state = StateBlocked
		return false
	}
	k.addTaskToReadyList(id)
	return t.prio > k.tasks[k.current].prio
}

func (k *Kernel) publish(kind EventKind, id TaskID) {
	k.publishArg(kind, id, 0)
}

func (k *Kernel) publishArg(kind EventKind, id TaskID, arg uint32) {
	ev := Event{Kind: kind, Task: id, Tick: k.tick.Load(), Arg: arg}
	if int(id) < len(k.tasks) {
		copy(ev.Name[:], k.tasks[id].name)
	}
	k.events.publish(ev)
}
