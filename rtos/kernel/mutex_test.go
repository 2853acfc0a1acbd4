package kernel

import "testing"

func TestMutexPriorityInheritanceRoundTrip(t *testing.T) {
	h := newHarness(t, Config{})
	m1, _ := h.k.NewMutex()
	m2, _ := h.k.NewMutex()
	prios := make(chan Priority, 4)
	events := make(chan string, 8)

	low := h.spawn("low", 1, func(ctx *Context, _ any) {
		m1.Lock(ctx, WaitForever)
		m2.Lock(ctx, WaitForever)
		events <- "low locked"
		ctx.WaitSignal(1, WaitForever, ClearOnExit)
		m1.Unlock(ctx)
		ti, _ := ctx.Kernel().Task(ctx.TaskID())
		prios <- ti.Priority
		ctx.WaitSignal(2, WaitForever, ClearOnExit)
		m2.Unlock(ctx)
		ti, _ = ctx.Kernel().Task(ctx.TaskID())
		prios <- ti.Priority
	})
	h.start()
	if e := recv(t, events); e != "low locked" {
		t.Fatalf("event = %q", e)
	}

	h.spawn("high", 5, func(ctx *Context, _ any) {
		if m1.Lock(ctx, WaitForever) {
			events <- "high got m1"
			m1.Unlock(ctx)
		}
	})
	h.settle()
	if p := h.info(low).Priority; p != 5 {
		t.Fatalf("owner priority = %d after high blocked, want 5", p)
	}

	h.spawn("mid", 3, func(ctx *Context, _ any) {
		if m2.Lock(ctx, WaitForever) {
			events <- "mid got m2"
			m2.Unlock(ctx)
		}
	})
	h.settle()
	if p := h.info(low).Priority; p != 5 {
		t.Fatalf("owner priority = %d after mid blocked, want 5", p)
	}

	h.signal(low, 1)
	if e := recv(t, events); e != "high got m1" {
		t.Fatalf("event = %q, want high got m1", e)
	}
	if p := recv(t, prios); p != 3 {
		t.Fatalf("priority after releasing m1 = %d, want 3 (mid waits on m2)", p)
	}

	h.signal(low, 2)
	if e := recv(t, events); e != "mid got m2" {
		t.Fatalf("event = %q, want mid got m2", e)
	}
	if p := recv(t, prios); p != 1 {
		t.Fatalf("priority after releasing m2 = %d, want base 1", p)
	}
}

func TestMutexNonOwnerUnlockIgnored(t *testing.T) {
	h := newHarness(t, Config{})
	m, _ := h.k.NewMutex()
	done := make(chan struct{}, 1)
	owner := h.spawn("owner", 2, func(ctx *Context, _ any) {
		m.Lock(ctx, WaitForever)
		ctx.Wait()
		m.Unlock(ctx)
		done <- struct{}{}
	})
	h.start()
	h.spawn("thief", 3, func(ctx *Context, _ any) {
		m.Unlock(ctx)
		m.UnlockRecursive(ctx)
	})
	h.settle()
	if !m.Locked(nil) || m.Owner(nil) != owner {
		t.Fatalf("Locked() = %v, Owner() = %d, want true, %d", m.Locked(nil), m.Owner(nil), owner)
	}
	h.k.YieldFromISR(h.k.NotifyFromISR(owner))
	h.settle()
	recv(t, done)
	if m.Locked(nil) || m.Owner(nil) != NoTask {
		t.Fatalf("Locked() = %v, Owner() = %d after unlock", m.Locked(nil), m.Owner(nil))
	}
}

func TestMutexExclusion(t *testing.T) {
	h := newHarness(t, Config{})
	m, _ := h.k.NewMutex()
	const workers, rounds = 4, 50
	inside, maxInside, total := 0, 0, 0
	done := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		h.spawn("worker", 2, func(ctx *Context, _ any) {
			for r := 0; r < rounds; r++ {
				if !m.Lock(ctx, WaitForever) {
					continue
				}
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				ctx.Yield()
				total++
				inside--
				m.Unlock(ctx)
				ctx.Yield()
			}
			done <- struct{}{}
		})
	}
	h.start()
	for i := 0; i < workers; i++ {
		recv(t, done)
	}
	if maxInside != 1 {
		t.Fatalf("max holders = %d, want 1", maxInside)
	}
	if total != workers*rounds {
		t.Fatalf("critical sections = %d, want %d", total, workers*rounds)
	}
}

func TestMutexRecursive(t *testing.T) {
	h := newHarness(t, Config{})
	m, _ := h.k.NewMutex()
	res := make(chan bool, 8)
	h.spawn("r", 2, func(ctx *Context, _ any) {
		res <- m.Lock(ctx, WaitForever)
		res <- m.Lock(ctx, 0)
		res <- m.LockRecursive(ctx, 0)
		m.UnlockRecursive(ctx)
		res <- m.Locked(ctx)
		m.UnlockRecursive(ctx)
		res <- m.Locked(ctx)
		m.LockRecursive(ctx, 0)
		m.LockRecursive(ctx, 0)
		m.Unlock(ctx)
		res <- m.Locked(ctx)
	})
	h.start()
	want := []bool{true, false, true, true, false, false}
	for i, w := range want {
		if got := recv(t, res); got != w {
			t.Fatalf("step %d = %v, want %v", i, got, w)
		}
	}
}

func TestMutexLockTimeoutRestoresOwner(t *testing.T) {
	h := newHarness(t, Config{})
	m, _ := h.k.NewMutex()
	res := make(chan bool, 1)
	owner := h.spawn("owner", 1, func(ctx *Context, _ any) {
		m.Lock(ctx, WaitForever)
		ctx.Wait()
	})
	h.start()
	waiter := h.spawn("waiter", 4, func(ctx *Context, _ any) {
		res <- m.Lock(ctx, 2)
	})
	h.settle()
	if p := h.info(owner).Priority; p != 4 {
		t.Fatalf("owner priority = %d, want 4", p)
	}
	h.tick(2)
	if recv(t, res) {
		t.Fatal("Lock() = true, want timeout")
	}
	if p := h.info(owner).Priority; p != 1 {
		t.Fatalf("owner priority = %d after the waiter gave up, want 1", p)
	}
	if _, ok := h.k.Task(waiter); ok {
		t.Fatal("waiter still exists after returning")
	}
}

func TestDeleteWaiterRestoresOwner(t *testing.T) {
	h := newHarness(t, Config{})
	m, _ := h.k.NewMutex()
	owner := h.spawn("owner", 1, func(ctx *Context, _ any) {
		m.Lock(ctx, WaitForever)
		ctx.Wait()
	})
	h.start()
	waiter := h.spawn("waiter", 5, func(ctx *Context, _ any) {
		m.Lock(ctx, WaitForever)
	})
	h.settle()
	if p := h.info(owner).Priority; p != 5 {
		t.Fatalf("owner priority = %d, want 5", p)
	}

	h.spawn("killer", 6, func(ctx *Context, _ any) {
		ctx.Delete(waiter)
	})
	h.settle()
	if _, ok := h.k.Task(waiter); ok {
		t.Fatal("deleted waiter still listed")
	}
	h.k.irq.Lock()
	n := m.waiters.Len()
	h.k.irq.Unlock()
	if n != 0 {
		t.Fatalf("mutex waiters = %d, want 0", n)
	}
	ti := h.info(owner)
	if ti.Priority != 1 || ti.BasePriority != 1 {
		t.Fatalf("owner priority = %d base %d after the waiter was deleted, want 1", ti.Priority, ti.BasePriority)
	}
	if id := m.Owner(nil); id != owner {
		t.Fatalf("Owner() = %d, want %d", id, owner)
	}
}

func TestDeleteHolderHandsMutexOver(t *testing.T) {
	h := newHarness(t, Config{})
	m, _ := h.k.NewMutex()
	got := make(chan TaskID, 2)
	holder := h.spawn("holder", 1, func(ctx *Context, _ any) {
		m.Lock(ctx, WaitForever)
		ctx.Wait()
	})
	h.start()
	waiter := func(ctx *Context, _ any) {
		if m.Lock(ctx, WaitForever) {
			got <- ctx.TaskID()
			ctx.Wait()
		}
	}
	h.spawn("w3", 3, waiter)
	w4 := h.spawn("w4", 4, waiter)
	h.settle()

	h.spawn("killer", 6, func(ctx *Context, _ any) {
		ctx.Delete(holder)
	})
	h.settle()
	if id := recv(t, got); id != w4 {
		t.Fatalf("mutex went to task %d, want %d", id, w4)
	}
	if m.Owner(nil) != w4 {
		t.Fatalf("Owner() = %d, want %d", m.Owner(nil), w4)
	}
	if _, ok := h.k.Task(holder); ok {
		t.Fatal("deleted holder still listed")
	}
}

func TestMutexDeleteFailsWaiters(t *testing.T) {
	h := newHarness(t, Config{})
	m, _ := h.k.NewMutex()
	res := make(chan bool, 1)
	owner := h.spawn("owner", 1, func(ctx *Context, _ any) {
		m.Lock(ctx, WaitForever)
		ctx.Wait()
	})
	h.start()
	h.spawn("waiter", 3, func(ctx *Context, _ any) {
		res <- m.Lock(ctx, WaitForever)
	})
	h.settle()
	m.Delete(nil)
	h.settle()
	if recv(t, res) {
		t.Fatal("Lock() = true on a deleted mutex")
	}
	ti := h.info(owner)
	if ti.Priority != 1 || ti.HeldMutexes != 0 {
		t.Fatalf("owner priority = %d held = %d, want 1, 0", ti.Priority, ti.HeldMutexes)
	}
}
