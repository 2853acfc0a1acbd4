package kernel

import "math/bits"

// TaskInfo is a snapshot of one task.
type TaskInfo struct {
	ID           TaskID
	Name         string
	State        TaskState
	Priority     Priority
	BasePriority Priority
	StackWords   uint32
	StackPointer uintptr
	WakeTick     uint64
	Signals      uint32
	HeldMutexes  int
	Waiting      bool
	Running      bool
}

// HeapStats is a snapshot of the kernel heap.
type HeapStats struct {
	Size        int
	Free        int
	MinEverFree int
	Allocs      uint32
	Frees       uint32
	Failures    uint32
}

// Tasks returns a snapshot of every live task in id order.
func (k *Kernel) Tasks() []TaskInfo {
	k.irq.Lock()
	defer k.irq.Unlock()
	out := make([]TaskInfo, 0, bits.OnesCount64(k.usedIDs))
	for id := range k.tasks {
		if k.valid(TaskID(id)) {
			out = append(out, k.infoLocked(TaskID(id)))
		}
	}
	return out
}

// Task returns a snapshot of one task.
func (k *Kernel) Task(id TaskID) (TaskInfo, bool) {
	k.irq.Lock()
	defer k.irq.Unlock()
	if !k.valid(id) {
		return TaskInfo{}, false
	}
	return k.infoLocked(id), true
}

func (k *Kernel) infoLocked(id TaskID) TaskInfo {
	t := &k.tasks[id]
	held := 0
	for m := t.held; m != nil; m = m.next {
		held++
	}
	return TaskInfo{
		ID:           id,
		Name:         t.name,
		State:        t.state,
		Priority:     t.prio,
		BasePriority: t.base,
		StackWords:   t.stackWords,
		StackPointer: t.sp,
		WakeTick:     t.wake,
		Signals:      t.sigPending,
		HeldMutexes:  held,
		Waiting:      t.event != nil,
		Running:      k.started && id == k.current,
	}
}

// HeapStats returns the kernel heap usage.
func (k *Kernel) HeapStats() HeapStats {
	k.irq.Lock()
	defer k.irq.Unlock()
	s := k.heap.Stats()
	return HeapStats{
		Size:        s.Size,
		Free:        s.Free,
		MinEverFree: s.MinEverFree,
		Allocs:      s.Allocs,
		Frees:       s.Frees,
		Failures:    s.Failures,
	}
}

// CheckHeap walks the heap. Damage is reported as a kernel fault.
func (k *Kernel) CheckHeap() error {
	k.irq.Lock()
	err := k.heap.Check()
	if err != nil {
		k.publish(EventHeapCorrupt, NoTask)
	}
	k.irq.Unlock()
	if err != nil {
		k.triggerPanic(PanicInfo{Value: err})
	}
	return err
}

// Idle reports whether the idle task is running with no switch pending.
func (k *Kernel) Idle() bool {
	k.irq.Lock()
	defer k.irq.Unlock()
	return k.started && !k.pending && k.current == k.idle
}

// Switches returns the number of scheduling decisions made.
func (k *Kernel) Switches() uint64 {
	k.irq.Lock()
	defer k.irq.Unlock()
	return k.switches
}
