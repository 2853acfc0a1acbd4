package kernel

import "runtime"

// enter disables interrupts for ctx, nesting per task. A nil ctx is a caller
// outside any task and never nests.
func (k *Kernel) enter(ctx *Context) {
	if ctx == nil {
		k.irq.Lock()
		return
	}
	if ctx.nesting == 0 {
		k.irq.Lock()
		if k.halted {
			k.irq.Unlock()
			ctx.gone.Store(true)
			runtime.Goexit()
		}
	}
	ctx.nesting++
}

// exit leaves the critical section. Leaving the outermost level of the
// running task takes a pended switch.
func (k *Kernel) exit(ctx *Context) {
	if ctx == nil {
		k.isrExit()
		return
	}
	for ctx.nesting == 1 && k.pending && k.started && !k.halted && k.current == ctx.id {
		k.switchLocked(ctx)
	}
	ctx.nesting--
	if ctx.nesting == 0 {
		k.irq.Unlock()
	}
}

func (k *Kernel) isrEnter() {
	k.irq.Lock()
}

func (k *Kernel) isrExit() {
	kick := k.pending && k.started
	k.irq.Unlock()
	if kick {
		k.kick()
	}
}

// Kick wakes the idle task as any interrupt would. Input drivers call it
// after queueing work from outside the kernel.
func (k *Kernel) Kick() { k.kick() }

func (k *Kernel) kick() {
	select {
	case k.wfi <- struct{}{}:
	default:
	}
}

// switchLocked performs a context switch away from ctx, the running task.
// It returns with the lock held once ctx is scheduled again. A task that is
// exiting never returns.
func (k *Kernel) switchLocked(ctx *Context) {
	k.pending = false
	from := k.current
	if !ctx.exiting {
		k.checkStack(from)
		k.reapTerminated()
	}
	next := k.scheduleNextTask()
	if next == from && !ctx.exiting {
		return
	}
	nt := &k.tasks[next]
	first := !nt.started
	nt.started = true
	nctx, fn, arg := nt.ctx, nt.fn, nt.arg
	k.irq.Unlock()

	if first {
		go k.trampoline(nctx, fn, arg)
	} else {
		nctx.resume <- struct{}{}
	}
	if ctx.exiting {
		ctx.gone.Store(true)
		runtime.Goexit()
	}
	k.park(ctx)

	k.irq.Lock()
	if k.halted {
		ctx.gone.Store(true)
		k.irq.Unlock()
		runtime.Goexit()
	}
}

// park waits until ctx is dispatched again.
func (k *Kernel) park(ctx *Context) {
	select {
	case <-ctx.resume:
	case <-ctx.kill:
		ctx.gone.Store(true)
		runtime.Goexit()
	case <-k.halt:
		ctx.gone.Store(true)
		runtime.Goexit()
	}
}

// trampoline is the first frame of every task goroutine. Returning from fn
// deletes the task; a panic is reported and the task deleted.
func (k *Kernel) trampoline(ctx *Context, fn TaskFunc, arg any) {
	defer func() {
		r := recover()
		if r == nil || ctx.gone.Load() {
			return
		}
		k.taskPanicked(ctx, r)
	}()
	fn(ctx, arg)

	k.enter(ctx)
	k.deleteSelfLocked(ctx)
}

func (k *Kernel) taskPanicked(ctx *Context, r any) {
	held := ctx.nesting > 0
	stack := captureStack()
	if !held {
		k.irq.Lock()
	}
	ctx.nesting = 1
	t := &k.tasks[ctx.id]
	info := PanicInfo{TaskID: ctx.id, Task: t.name, Value: r, Stack: stack}
	k.publish(EventTaskPanic, ctx.id)
	k.irq.Unlock()
	k.triggerPanic(info)
	k.irq.Lock()
	if k.halted {
		ctx.gone.Store(true)
		k.irq.Unlock()
		return
	}
	k.deleteSelfLocked(ctx)
}

func (k *Kernel) idleTask(ctx *Context, _ any) {
	for {
		k.enter(ctx)
		k.reapTerminated()
		if k.pending {
			k.exit(ctx)
			continue
		}
		k.exit(ctx)
		if hook := k.cfg.IdleHook; hook != nil {
			hook()
		}
		select {
		case <-k.wfi:
		case <-k.halt:
			ctx.gone.Store(true)
			return
		}
	}
}
