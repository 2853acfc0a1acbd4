package kernel

// SendSignal ORs bits into the task's pending signals and wakes it if it
// waits for them. Signals latch until consumed.
func (c *Context) SendSignal(id TaskID, bits uint32) bool {
	k := c.k
	k.enter(c)
	if !k.valid(id) {
		k.exit(c)
		return false
	}
	if k.sendSignalLocked(id, bits) {
		k.pending = true
	}
	k.exit(c)
	return true
}

// SendSignalFromISR is SendSignal for interrupt context. It reports whether
// a task above the running one was woken; pass that to YieldFromISR.
func (k *Kernel) SendSignalFromISR(id TaskID, bits uint32) (woken bool) {
	k.isrEnter()
	if k.valid(id) {
		woken = k.sendSignalLocked(id, bits)
	}
	k.isrExit()
	return woken
}

func (k *Kernel) sendSignalLocked(id TaskID, bits uint32) bool {
	t := &k.tasks[id]
	t.sigPending |= bits
	if t.event == &t.signals && signalsSatisfied(t.sigPending, t.sigMask, t.sigOpts) {
		return k.wake(id)
	}
	return false
}

// ClearSignal clears bits from the task's pending signals. It is for
// callers outside any task; tasks use Context.ClearSignal.
func (k *Kernel) ClearSignal(id TaskID, bits uint32) {
	k.isrEnter()
	k.clearSignal(id, bits)
	k.isrExit()
}

// ClearSignal clears bits from the task's pending signals, nesting inside
// the caller's critical section.
func (c *Context) ClearSignal(id TaskID, bits uint32) {
	c.k.enter(c)
	c.k.clearSignal(id, bits)
	c.k.exit(c)
}

func (k *Kernel) clearSignal(id TaskID, bits uint32) {
	if k.valid(id) {
		k.tasks[id].sigPending &^= bits
	}
}

// YieldFromISR requests a switch at the end of the interrupt when woken is
// set.
func (k *Kernel) YieldFromISR(woken bool) {
	k.isrEnter()
	if woken && k.started {
		k.pending = true
	}
	k.isrExit()
}

// WaitSignal waits until the pending signals satisfy mask under opts and
// returns the pending set seen at that point, or 0 on timeout. With
// ClearOnExit the mask bits are consumed.
func (c *Context) WaitSignal(mask uint32, timeout uint32, opts SignalOptions) uint32 {
	if mask == 0 {
		return 0
	}
	k := c.k
	k.enter(c)
	t := &k.tasks[c.id]
	if signalsSatisfied(t.sigPending, mask, opts) {
		got := t.takeSignals(mask, opts)
		k.exit(c)
		return got
	}
	if timeout == 0 || !k.canBlock(c) {
		k.exit(c)
		return 0
	}
	t.sigMask, t.sigOpts = mask, opts
	k.block(c, &t.signals, timeout, StateBlocked)
	var got uint32
	if t.event != nil {
		k.eventListRemove(c.id)
	} else if !t.aborted {
		got = t.takeSignals(mask, opts)
	}
	t.sigMask, t.sigOpts = 0, 0
	k.exit(c)
	return got
}

func (t *tcb) takeSignals(mask uint32, opts SignalOptions) uint32 {
	got := t.sigPending
	if opts&ClearOnExit != 0 {
		t.sigPending &^= mask
	}
	return got
}
