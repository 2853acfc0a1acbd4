package kernel

import "math"

// TaskID names a task slot. IDs are recycled after the task is deleted.
type TaskID uint8

// NoTask is the zero TaskID. Context methods taking a TaskID treat it as "self".
const NoTask TaskID = 0

// Priority is a scheduling level; higher values run first.
type Priority uint8

// WaitForever blocks without a timeout.
const WaitForever uint32 = math.MaxUint32

// TaskState is the scheduling state of a task.
type TaskState uint8

const (
	StateUnused TaskState = iota
	StateReady
	StateDelayed
	StateBlocked
	StateSuspended
)

func (s TaskState) String() string {
	switch s {
	case StateUnused:
		return "unused"
	case StateReady:
		return "ready"
	case StateDelayed:
		return "delayed"
	case StateBlocked:
		return "blocked"
	case StateSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// TaskFunc is a task entry point. Returning from it deletes the task.
type TaskFunc func(ctx *Context, arg any)

// SignalOptions control Context.WaitSignal.
type SignalOptions uint8

const (
	// WaitAny is satisfied by any bit of the mask.
	WaitAny SignalOptions = 0
	// WaitAll needs every bit of the mask.
	WaitAll SignalOptions = 1 << 0
	// ClearOnExit clears the mask bits from the pending set on success.
	ClearOnExit SignalOptions = 1 << 1
)

func signalsSatisfied(pending, mask uint32, opts SignalOptions) bool {
	if opts&WaitAll != 0 {
		return pending&mask == mask
	}
	return pending&mask != 0
}
