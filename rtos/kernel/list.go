package kernel

type linkKind uint8

const (
	genericLink linkKind = iota // ready list or delay list
	eventLink                   // wait queue of a kernel object
)

type link struct {
	prev TaskID
	next TaskID
}

// taskList is an intrusive doubly linked list of tasks over the TCB arena.
// The link used is selected by kind, so one task can sit on a generic list
// and an event list at the same time.
type taskList struct {
	head TaskID
	tail TaskID
	n    int
	kind linkKind
	// level is the ready priority, -1 for lists that are not ready lists.
	level int
}

func (l *taskList) len() int    { return l.n }
func (l *taskList) empty() bool { return l.n == 0 }

func (l *taskList) link(ts []tcb, id TaskID) *link {
	return &ts[id].links[l.kind]
}

func (l *taskList) next(ts []tcb, id TaskID) TaskID {
	return ts[id].links[l.kind].next
}

func (l *taskList) pushBack(ts []tcb, id TaskID) {
	lk := l.link(ts, id)
	lk.prev = l.tail
	lk.next = NoTask
	if l.tail == NoTask {
		l.head = id
	} else {
		l.link(ts, l.tail).next = id
	}
	l.tail = id
	l.n++
}

// insertBefore links id in front of at, which must be on the list.
func (l *taskList) insertBefore(ts []tcb, at, id TaskID) {
	lk := l.link(ts, id)
	atLink := l.link(ts, at)
	lk.next = at
	lk.prev = atLink.prev
	if atLink.prev == NoTask {
		l.head = id
	} else {
		l.link(ts, atLink.prev).next = id
	}
	atLink.prev = id
	l.n++
}

func (l *taskList) remove(ts []tcb, id TaskID) {
	lk := l.link(ts, id)
	if lk.prev == NoTask {
		if l.head != id {
			panic("kernel: invariant violated removing task from list")
		}
		l.head = lk.next
	} else {
		l.link(ts, lk.prev).next = lk.next
	}
	if lk.next == NoTask {
		l.tail = lk.prev
	} else {
		l.link(ts, lk.next).prev = lk.prev
	}
	*lk = link{}
	l.n--
}

// rotate moves the head to the tail.
func (l *taskList) rotate(ts []tcb) {
	if l.n < 2 {
		return
	}
	id := l.head
	l.remove(ts, id)
	l.pushBack(ts, id)
}

func (l *taskList) ids(ts []tcb) []TaskID {
	out := make([]TaskID, 0, l.n)
	for id := l.head; id != NoTask; id = l.next(ts, id) {
		out = append(out, id)
	}
	return out
}
