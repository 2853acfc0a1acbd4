package kernel

import "myrtos/rtos/internal/heap"

const (
	maxNameLen = 16

	// tcbBytes is the heap charge of one task control block.
	tcbBytes = 96

	// frameWords is the initial exception frame: r4-r11 saved by the switch
	// routine, then r0-r3, r12, lr, pc, xPSR stacked by the hardware.
	frameWords  = 16
	canaryWords = 4
	// minStackWords is the smallest stack that holds the frame and the canary.
	minStackWords = frameWords + canaryWords

	initialXPSR    = 0x01000000 // thumb bit
	taskExitLR     = 0xFFFFFFFD
	stackCanary    = 0xA5A5A5A5
	entryPCMarker  = 0x08000001
	unusedFrameReg = 0xDEADBEEF
)

// tcb is a task control block. Fields are guarded by the kernel lock.
type tcb struct {
	id    TaskID
	name  string
	fn    TaskFunc
	arg   any
	state TaskState

	prio Priority // current, possibly inherited
	base Priority

	links [2]link
	// list is the generic list the task is on: a ready list or the delay list.
	list *taskList
	// event is the wait queue the task is on.
	event *WaitQueue
	// wake is the absolute wake tick while on the delay list, else 0.
	wake uint64
	// aborted is set when the object the task waits on is deleted.
	aborted bool

	// held is the head of the list of mutexes owned by the task.
	held *Mutex

	sigPending uint32
	sigMask    uint32
	sigOpts    SignalOptions
	signals    WaitQueue

	notified   bool
	waitNotify bool

	// rx is the receive buffer a blocked Queue.Receive exposes to senders.
	rx []byte

	tcbBlk     heap.Ptr
	stackBlk   heap.Ptr
	nameBlk    heap.Ptr
	stackWords uint32
	sp         uintptr
	overflowed bool

	ctx     *Context
	started bool
}
