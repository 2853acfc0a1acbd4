package kernel

import "myrtos/rtos/internal/heap"

const queueBytes = 48

// Queue is a fixed-capacity FIFO of fixed-size items stored in the kernel
// heap. A sender finding a blocked receiver copies straight into the
// receiver's buffer and bypasses the ring.
type Queue struct {
	k       *Kernel
	blk     heap.Ptr
	storage heap.Ptr
	buf     []byte

	capacity int
	itemSize int
	read     int
	write    int
	count    int

	senders   WaitQueue
	receivers WaitQueue
	deleted   bool
}

// NewQueue allocates a queue of capacity items of itemSize bytes.
func (k *Kernel) NewQueue(capacity, itemSize int) (*Queue, error) {
	if capacity <= 0 || itemSize <= 0 {
		return nil, ErrBadQueueSize
	}
	k.isrEnter()
	defer k.isrExit()
	blk, ok := k.alloc(queueBytes, NoTask)
	if !ok {
		return nil, ErrNoMemory
	}
	storage, ok := k.alloc(capacity*itemSize, NoTask)
	if !ok {
		k.heap.Free(blk)
		return nil, ErrNoMemory
	}
	return &Queue{
		k:         k,
		blk:       blk,
		storage:   storage,
		buf:       k.heap.Bytes(storage, capacity*itemSize),
		capacity:  capacity,
		itemSize:  itemSize,
		senders:   newWaitQueue(),
		receivers: newWaitQueue(),
	}, nil
}

// Send copies the first ItemSize bytes of item into the queue, waiting up
// to timeout ticks for room.
func (q *Queue) Send(ctx *Context, item []byte, timeout uint32) bool {
	if len(item) < q.itemSize {
		return false
	}
	k := q.k
	k.enter(ctx)
	var deadline uint64
	if timeout != WaitForever {
		deadline = k.tick.Load() + uint64(timeout)
	}
	for {
		ok, woken := q.trySend(item)
		if ok {
			if woken {
				k.pending = true
			}
			k.exit(ctx)
			return true
		}
		if q.deleted || timeout == 0 || !k.canBlock(ctx) {
			k.exit(ctx)
			return false
		}
		remaining := WaitForever
		if timeout != WaitForever {
			now := k.tick.Load()
			if now >= deadline {
				k.exit(ctx)
				return false
			}
			remaining = uint32(deadline - now)
		}
		k.block(ctx, &q.senders, remaining, StateBlocked)
		t := &k.tasks[ctx.id]
		if t.event != nil || t.aborted {
			k.eventListRemove(ctx.id)
			k.exit(ctx)
			return false
		}
		// A receiver made room; retry from the top.
	}
}

// Receive copies the oldest item into buf, waiting up to timeout ticks for
// one. On a wake the sender has already filled buf.
func (q *Queue) Receive(ctx *Context, buf []byte, timeout uint32) bool {
	if len(buf) < q.itemSize {
		return false
	}
	k := q.k
	k.enter(ctx)
	ok, woken := q.tryReceive(buf)
	if ok {
		if woken {
			k.pending = true
		}
		k.exit(ctx)
		return true
	}
	if q.deleted || timeout == 0 || !k.canBlock(ctx) {
		k.exit(ctx)
		return false
	}
	t := &k.tasks[ctx.id]
	t.rx = buf[:q.itemSize]
	k.block(ctx, &q.receivers, timeout, StateBlocked)
	ok = t.event == nil && !t.aborted
	k.eventListRemove(ctx.id)
	t.rx = nil
	k.exit(ctx)
	return ok
}

// SendFromISR is a non-blocking Send for interrupt context. It reports
// whether a task above the running one was woken.
func (q *Queue) SendFromISR(item []byte) (ok, woken bool) {
	if len(item) < q.itemSize {
		return false, false
	}
	q.k.isrEnter()
	ok, woken = q.trySend(item)
	q.k.isrExit()
	return ok, woken
}

// ReceiveFromISR is a non-blocking Receive for interrupt context.
func (q *Queue) ReceiveFromISR(buf []byte) (ok, woken bool) {
	if len(buf) < q.itemSize {
		return false, false
	}
	q.k.isrEnter()
	ok, woken = q.tryReceive(buf)
	q.k.isrExit()
	return ok, woken
}

func (q *Queue) trySend(item []byte) (ok, woken bool) {
	if q.deleted {
		return false, false
	}
	k := q.k
	if q.receivers.Len() > 0 {
		id := q.receivers.head()
		t := &k.tasks[id]
		copy(t.rx, item[:q.itemSize])
		t.rx = nil
		return true, k.wake(id)
	}
	if q.count == q.capacity {
		return false, false
	}
	off := q.write * q.itemSize
	copy(q.buf[off:off+q.itemSize], item)
	q.write = (q.write + 1) % q.capacity
	q.count++
	return true, false
}

func (q *Queue) tryReceive(buf []byte) (ok, woken bool) {
	if q.deleted || q.count == 0 {
		return false, false
	}
	off := q.read * q.itemSize
	copy(buf[:q.itemSize], q.buf[off:off+q.itemSize])
	q.read = (q.read + 1) % q.capacity
	q.count--
	if q.senders.Len() > 0 {
		woken = q.k.wake(q.senders.head())
	}
	return true, woken
}

// Waiting returns the number of buffered items. It nests inside ctx's
// critical section; a nil ctx reads from outside any task.
func (q *Queue) Waiting(ctx *Context) int {
	q.k.enter(ctx)
	n := q.count
	q.k.exit(ctx)
	return n
}

// Spaces returns the free slots of the buffer.
func (q *Queue) Spaces(ctx *Context) int {
	q.k.enter(ctx)
	n := q.capacity - q.count
	q.k.exit(ctx)
	return n
}

// ItemSize returns the size of one item.
func (q *Queue) ItemSize() int { return q.itemSize }

// Capacity returns the number of items the buffer holds.
func (q *Queue) Capacity() int { return q.capacity }

// Delete frees the queue; blocked senders and receivers fail.
func (q *Queue) Delete(ctx *Context) {
	k := q.k
	k.enter(ctx)
	if q.deleted {
		k.exit(ctx)
		return
	}
	q.deleted = true
	preempt := k.wakeAll(&q.senders)
	if k.wakeAll(&q.receivers) {
		preempt = true
	}
	k.heap.Free(q.storage)
	k.heap.Free(q.blk)
	q.buf = nil
	q.count = 0
	if preempt {
		k.pending = true
	}
	k.exit(ctx)
}
