package kernel

import (
	"math/rand"
	"testing"
)

func nop(*Context, any) {}

func newTestKernel(t *testing.T, cfg Config) *Kernel {
	t.Helper()
	if cfg.HeapBytes == 0 {
		cfg.HeapBytes = 32 << 10
	}
	k, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return k
}

func mustCreate(t *testing.T, k *Kernel, prio Priority) TaskID {
	t.Helper()
	id, err := k.CreateTask("t", nop, nil, 64, prio)
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	return id
}

func checkBitmap(t *testing.T, k *Kernel) {
	t.Helper()
	for p := range k.ready {
		bit := k.readyBits&(1<<uint(p)) != 0
		if bit != !k.ready[p].empty() {
			t.Fatalf("priority %d: bit = %v, list length = %d", p, bit, k.ready[p].len())
		}
	}
}

func TestReadyBitmapConsistency(t *testing.T) {
	k := newTestKernel(t, Config{MaxPriorities: 8, MaxTasks: 24})
	rng := rand.New(rand.NewSource(1))
	var ids []TaskID
	for i := 0; i < 20; i++ {
		ids = append(ids, mustCreate(t, k, Priority(rng.Intn(8))))
	}
	checkBitmap(t, k)

	for step := 0; step < 5000; step++ {
		id := ids[rng.Intn(len(ids))]
		tk := &k.tasks[id]
		switch rng.Intn(3) {
		case 0:
			if tk.state == StateReady {
				k.removeTaskFromList(id)
				tk.state = StateBlocked
			}
		case 1:
			if tk.state == StateBlocked {
				k.addTaskToReadyList(id)
			}
		case 2:
			k.setPriority(id, Priority(rng.Intn(8)))
		}
		checkBitmap(t, k)
	}
}

func TestScheduleNeverSkipsHigherPriority(t *testing.T) {
	k := newTestKernel(t, Config{MaxPriorities: 16, MaxTasks: 24})
	rng := rand.New(rand.NewSource(2))
	var ids []TaskID
	for i := 0; i < 20; i++ {
		ids = append(ids, mustCreate(t, k, Priority(rng.Intn(16))))
	}
	for step := 0; step < 2000; step++ {
		id := ids[rng.Intn(len(ids))]
		if k.tasks[id].state == StateReady {
			k.removeTaskFromList(id)
			k.tasks[id].state = StateBlocked
		} else {
			k.addTaskToReadyList(id)
		}
		if k.readyBits == 0 {
			continue
		}
		top := Priority(0)
		for _, id := range ids {
			if tk := k.tasks[id]; tk.state == StateReady && tk.prio > top {
				top = tk.prio
			}
		}
		got := k.scheduleNextTask()
		if p := k.tasks[got].prio; p != top {
			t.Fatalf("step %d: scheduleNextTask() picked priority %d, want %d", step, p, top)
		}
	}
}

func TestRoundRobinAmongEqualPriorities(t *testing.T) {
	k := newTestKernel(t, Config{})
	low := mustCreate(t, k, 1)
	a := mustCreate(t, k, 3)
	b := mustCreate(t, k, 3)
	c := mustCreate(t, k, 3)

	sps := map[uintptr]TaskID{}
	for _, id := range []TaskID{low, a, b, c} {
		sps[k.tasks[id].sp] = id
	}
	const rounds = 4
	var order []TaskID
	for i := 0; i < 3*rounds; i++ {
		order = append(order, sps[k.ScheduleNextTask()])
	}
	for r := 0; r < rounds; r++ {
		seen := map[TaskID]int{}
		for _, id := range order[r*3 : r*3+3] {
			seen[id]++
		}
		if seen[a] != 1 || seen[b] != 1 || seen[c] != 1 {
			t.Fatalf("round %d served %v, want each of %d %d %d once", r, order[r*3:r*3+3], a, b, c)
		}
	}
	if order[0] != a || order[1] != b || order[2] != c {
		t.Fatalf("first round = %v, want [%d %d %d]", order[:3], a, b, c)
	}
}

func TestEventListOrdering(t *testing.T) {
	k := newTestKernel(t, Config{})
	prios := []Priority{3, 5, 1, 5, 2}
	ids := make([]TaskID, len(prios))
	for i, p := range prios {
		ids[i] = mustCreate(t, k, p)
	}
	q := newWaitQueue()
	for _, id := range ids {
		k.eventListInsert(&q, id)
	}

	// ids[3] ties with the head ids[1] and queues behind it.
	want := []TaskID{ids[1], ids[3], ids[0], ids[4], ids[2]}
	for i, w := range want {
		got := q.head()
		if got != w {
			t.Fatalf("wake %d = task %d (prio %d), want task %d (prio %d)", i, got, k.tasks[got].prio, w, k.tasks[w].prio)
		}
		k.eventListRemove(got)
		if k.tasks[got].event != nil {
			t.Fatalf("task %d still records its wait queue", got)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", q.Len())
	}
	// Removing again is a no-op.
	k.eventListRemove(ids[0])
}

func TestSetPriorityRepositionsWaiter(t *testing.T) {
	k := newTestKernel(t, Config{})
	a := mustCreate(t, k, 4)
	b := mustCreate(t, k, 2)
	q := newWaitQueue()
	k.eventListInsert(&q, a)
	k.eventListInsert(&q, b)

	k.setPriority(b, 6)
	if got := q.head(); got != b {
		t.Fatalf("head = %d, want boosted task %d", got, b)
	}
	if k.ready[2].len() != 0 || k.ready[6].len() != 1 {
		t.Fatalf("ready lists not updated: len(2)=%d len(6)=%d", k.ready[2].len(), k.ready[6].len())
	}
	checkBitmap(t, k)
}

func TestTickReadiesInWakeOrder(t *testing.T) {
	k := newTestKernel(t, Config{})
	ids := []TaskID{mustCreate(t, k, 1), mustCreate(t, k, 2), mustCreate(t, k, 3)}
	wakes := []uint64{3, 1, 3}
	for i, id := range ids {
		k.removeTaskFromList(id)
		k.tasks[id].state = StateDelayed
		k.addToDelayList(id, wakes[i])
	}
	if got := k.delay.ids(k.tasks); got[0] != ids[1] || got[1] != ids[0] || got[2] != ids[2] {
		t.Fatalf("delay list = %v, want [%d %d %d]", got, ids[1], ids[0], ids[2])
	}

	k.tickHandlerLocked()
	if k.tasks[ids[1]].state != StateReady || k.tasks[ids[1]].wake != 0 {
		t.Fatalf("task %d not readied at tick 1", ids[1])
	}
	k.tickHandlerLocked()
	if k.delay.len() != 2 {
		t.Fatalf("delay list length = %d at tick 2, want 2", k.delay.len())
	}
	k.tickHandlerLocked()
	if !k.delay.empty() {
		t.Fatalf("delay list not empty at tick 3")
	}
	checkBitmap(t, k)
}

func TestTickHandlerReportsHigherPriority(t *testing.T) {
	k := newTestKernel(t, Config{})
	lo := mustCreate(t, k, 1)
	hi := mustCreate(t, k, 5)
	k.current = lo
	k.removeTaskFromList(hi)
	k.tasks[hi].state = StateDelayed
	k.addToDelayList(hi, 2)

	if k.TickHandler() {
		t.Fatal("TickHandler() = true before the wake tick")
	}
	if !k.TickHandler() {
		t.Fatal("TickHandler() = false when a higher priority task woke")
	}
	if got := k.Ticks(); got != 2 {
		t.Fatalf("Ticks() = %d, want 2", got)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"defaults", Config{}, true},
		{"too many priorities", Config{MaxPriorities: 33}, false},
		{"too many tasks", Config{MaxTasks: 64}, false},
		{"one task", Config{MaxTasks: 1}, false},
		{"tiny stacks", Config{MinStackWords: 8, IdleStackWords: 8}, false},
		{"idle below minimum", Config{MinStackWords: 128, IdleStackWords: 64}, false},
	}
	for _, tt := range tests {
		_, err := New(tt.cfg)
		if (err == nil) != tt.ok {
			t.Errorf("%s: New() error = %v, want ok=%v", tt.name, err, tt.ok)
		}
	}
}

func TestCreateTaskErrors(t *testing.T) {
	k := newTestKernel(t, Config{MaxPriorities: 4, MaxTasks: 2, HeapBytes: 2048})
	if _, err := k.CreateTask("x", nil, nil, 64, 1); err != ErrNilFunc {
		t.Fatalf("nil func: error = %v, want %v", err, ErrNilFunc)
	}
	if _, err := k.CreateTask("x", nop, nil, 64, 4); err != ErrBadPriority {
		t.Fatalf("priority 4: error = %v, want %v", err, ErrBadPriority)
	}
	if _, err := k.CreateTask("x", nop, nil, 8, 1); err != ErrBadStackSize {
		t.Fatalf("8 words: error = %v, want %v", err, ErrBadStackSize)
	}
	if _, err := k.CreateTask("x", nop, nil, 1024, 1); err != ErrNoMemory {
		t.Fatalf("huge stack: error = %v, want %v", err, ErrNoMemory)
	}
	if s := k.HeapStats(); s.Free != s.Size {
		t.Fatalf("failed create leaked memory: free %d of %d", s.Free, s.Size)
	}
	mustCreate(t, k, 1)
	mustCreate(t, k, 1)
	if _, err := k.CreateTask("x", nop, nil, 64, 1); err != ErrNoTaskID {
		t.Fatalf("third task: error = %v, want %v", err, ErrNoTaskID)
	}
}
