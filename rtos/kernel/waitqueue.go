package kernel

// WaitQueue is the list of tasks blocked on one kernel object, highest
// priority first and in arrival order among equal priorities.
type WaitQueue struct {
	list taskList
	// mutex is set when the queue belongs to a mutex, whose owner's
	// inherited priority depends on the waiters.
	mutex *Mutex
}

func newWaitQueue() WaitQueue {
	return WaitQueue{list: taskList{kind: eventLink, level: -1}}
}

// Len returns the number of waiters.
func (q *WaitQueue) Len() int { return q.list.len() }

func (q *WaitQueue) head() TaskID { return q.list.head }

// eventListInsert links the task in front of the first waiter with a
// strictly lower priority. Equal priorities stay FIFO, at the head too.
func (k *Kernel) eventListInsert(q *WaitQueue, id TaskID) {
	t := &k.tasks[id]
	t.event = q
	for at := q.list.head; at != NoTask; at = q.list.next(k.tasks, at) {
		if k.tasks[at].prio < t.prio {
			q.list.insertBefore(k.tasks, at, id)
			return
		}
	}
	q.list.pushBack(k.tasks, id)
}

func (k *Kernel) eventListRemove(id TaskID) {
	t := &k.tasks[id]
	if t.event == nil {
		return
	}
	t.event.list.remove(k.tasks, id)
	t.event = nil
}

// wakeAll aborts the wait of every task on q. It reports whether one of
// them outranks the running task.
func (k *Kernel) wakeAll(q *WaitQueue) bool {
	preempt := false
	for !q.list.empty() {
		id := q.head()
		k.tasks[id].aborted = true
		if k.wake(id) {
			preempt = true
		}
	}
	return preempt
}
