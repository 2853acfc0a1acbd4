package kernel

import "sync/atomic"

// EventKind identifies a lifecycle or fault event published by the kernel.
type EventKind uint8

const (
	EventTaskCreated EventKind = iota + 1
	EventTaskDeleted
	EventTaskPanic
	EventStackOverflow
	EventHeapExhausted
	EventHeapCorrupt
)

func (k EventKind) String() string {
	switch k {
	case EventTaskCreated:
		return "task created"
	case EventTaskDeleted:
		return "task deleted"
	case EventTaskPanic:
		return "task panic"
	case EventStackOverflow:
		return "stack overflow"
	case EventHeapExhausted:
		return "heap exhausted"
	case EventHeapCorrupt:
		return "heap corrupt"
	default:
		return "unknown"
	}
}

// Fatal reports whether the event describes a kernel fault.
func (k EventKind) Fatal() bool {
	return k == EventStackOverflow || k == EventHeapCorrupt
}

// Event is one entry of the kernel event ring.
type Event struct {
	Kind EventKind
	Task TaskID
	Tick uint64
	// Arg carries the event detail: stack words for TaskCreated, the request
	// size for HeapExhausted.
	Arg uint32
	// Name is the task name, truncated to fit.
	Name [maxNameLen]byte
}

// TaskName returns the recorded task name.
func (e *Event) TaskName() string {
	n := 0
	for n < len(e.Name) && e.Name[n] != 0 {
		n++
	}
	return string(e.Name[:n])
}

const eventSlots = 32

// EventRing is a fixed-slot single-producer single-consumer ring. The kernel
// produces under its critical section and never blocks: events published
// while the ring is full are counted and discarded.
type EventRing struct {
	_       [0]func() // prevent accidental copying.
	head    atomic.Uint32
	tail    atomic.Uint32
	dropped atomic.Uint32
	slots   [eventSlots]Event
}

func (r *EventRing) publish(ev Event) bool {
	head := r.head.Load()
	tail := r.tail.Load()
	if head-tail >= eventSlots {
		r.dropped.Add(1)
		return false
	}
	r.slots[head%eventSlots] = ev
	r.head.Store(head + 1)
	return true
}

// TryPop dequeues one event, returning false if the ring is empty.
func (r *EventRing) TryPop() (Event, bool) {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail == head {
		return Event{}, false
	}
	ev := r.slots[tail%eventSlots]
	r.tail.Store(tail + 1)
	return ev, true
}

// Len returns the number of queued events.
func (r *EventRing) Len() int {
	return int(r.head.Load() - r.tail.Load())
}

// Dropped returns the number of events discarded because the ring was full.
func (r *EventRing) Dropped() uint32 {
	return r.dropped.Load()
}
