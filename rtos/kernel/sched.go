package kernel

import "math/bits"

func (k *Kernel) addTaskToReadyList(id TaskID) {
	t := &k.tasks[id]
	l := &k.ready[t.prio]
	l.pushBack(k.tasks, id)
	t.list = l
	k.readyBits |= 1 << t.prio
	t.state = StateReady
}

// removeTaskFromList unlinks the task from its generic list, clearing the
// ready bit when a ready list becomes empty.
func (k *Kernel) removeTaskFromList(id TaskID) {
	t := &k.tasks[id]
	l := t.list
	if l == nil {
		return
	}
	l.remove(k.tasks, id)
	t.list = nil
	if l.level >= 0 && l.empty() {
		k.readyBits &^= 1 << uint(l.level)
	}
}

// addToDelayList inserts the task in wake order, after tasks waking on the
// same tick.
func (k *Kernel) addToDelayList(id TaskID, wake uint64) {
	t := &k.tasks[id]
	t.wake = wake
	t.list = &k.delay
	for at := k.delay.head; at != NoTask; at = k.delay.next(k.tasks, at) {
		if k.tasks[at].wake > wake {
			k.delay.insertBefore(k.tasks, at, id)
			return
		}
	}
	k.delay.pushBack(k.tasks, id)
}

// scheduleNextTask selects the head of the highest non-empty ready list and
// rotates that list so equal priorities take turns.
func (k *Kernel) scheduleNextTask() TaskID {
	next := k.idle
	if k.readyBits != 0 {
		p := 31 - bits.LeadingZeros32(k.readyBits)
		l := &k.ready[p]
		next = l.head
		l.rotate(k.tasks)
	}
	k.current = next
	k.switches++
	return next
}

// ScheduleNextTask selects the next task for a port that swaps registers
// itself and returns its saved stack pointer. The goroutine port switches
// on its own, so on a started kernel it only reports the running task.
func (k *Kernel) ScheduleNextTask() uintptr {
	k.irq.Lock()
	defer k.irq.Unlock()
	if k.started {
		return k.tasks[k.current].sp
	}
	return k.tasks[k.scheduleNextTask()].sp
}

// tickHandlerLocked advances time and readies every task whose wake tick
// has passed. It reports whether a task above the running one became ready.
func (k *Kernel) tickHandlerLocked() bool {
	now := k.tick.Add(1)
	switchNeeded := false
	for !k.delay.empty() {
		id := k.delay.head
		t := &k.tasks[id]
		if t.wake > now {
			break
		}
		k.removeTaskFromList(id)
		t.wake = 0
		k.addTaskToReadyList(id)
		if t.prio > k.tasks[k.current].prio {
			switchNeeded = true
		}
	}
	return switchNeeded
}

// TickHandler advances the tick and reports whether a switch should be
// requested. Tick wraps it with the time-slice check.
func (k *Kernel) TickHandler() bool {
	k.isrEnter()
	sw := k.tickHandlerLocked()
	k.isrExit()
	return sw
}

// Tick is the body of the periodic timer interrupt.
func (k *Kernel) Tick() {
	k.isrEnter()
	sw := k.tickHandlerLocked()
	if k.started && !k.halted {
		cur := &k.tasks[k.current]
		if sw || (!k.cfg.NoTimeSlicing && cur.state == StateReady && cur.list != nil && cur.list.len() > 1) {
			k.pending = true
		}
	}
	k.isrExit()
}

// block takes the running task off its ready list and switches away until
// it is woken, it times out or the object it waits on is deleted. The caller
// holds the lock at nesting 1 and checks t.event and t.aborted on return.
func (k *Kernel) block(ctx *Context, q *WaitQueue, timeout uint32, state TaskState) {
	id := ctx.id
	t := &k.tasks[id]
	k.removeTaskFromList(id)
	t.state = state
	t.aborted = false
	if q != nil {
		k.eventListInsert(q, id)
	}
	if timeout != WaitForever {
		k.addToDelayList(id, k.tick.Load()+uint64(timeout))
	}
	k.pending = true
	k.switchLocked(ctx)
}

// wake removes the task from its wait queue and the delay list and readies
// it. A task that already timed out is Ready and stays where it is; a
// suspended task stays suspended. It reports whether the task outranks the
// running one.
func (k *Kernel) wake(id TaskID) bool {
	t := &k.tasks[id]
	k.eventListRemove(id)
	if t.wake != 0 {
		k.removeTaskFromList(id)
		t.wake = 0
	}
	if t.state == StateBlocked || t.state == StateDelayed {
		k.addTaskToReadyList(id)
	}
	return t.state == StateReady && t.prio > k.tasks[k.current].prio
}

// setPriority changes the current priority, moving a ready task between
// ready lists and repositioning a waiter inside its wait queue.
func (k *Kernel) setPriority(id TaskID, p Priority) {
	t := &k.tasks[id]
	if t.prio == p {
		return
	}
	if t.state == StateReady && t.list != nil && t.list.level >= 0 {
		k.removeTaskFromList(id)
		t.prio = p
		k.addTaskToReadyList(id)
	} else {
		t.prio = p
	}
	if q := t.event; q != nil {
		q.list.remove(k.tasks, id)
		t.event = nil
		k.eventListInsert(q, id)
	}
}

// canBlock reports whether ctx may suspend: it is a task that is not inside
// a user critical section.
func (k *Kernel) canBlock(ctx *Context) bool {
	return ctx != nil && ctx.nesting == 1 && k.started && k.current == ctx.id
}
