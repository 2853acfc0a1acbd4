package kernel

import (
	"errors"

	"myrtos/rtos/internal/heap"
)

var (
	ErrBadConfig     = errors.New("invalid kernel config")
	ErrNoMemory      = errors.New("out of kernel heap")
	ErrNoTaskID      = errors.New("no free task id")
	ErrBadPriority   = errors.New("priority out of range")
	ErrBadStackSize  = errors.New("stack too small")
	ErrNilFunc       = errors.New("nil task function")
	ErrBadQueueSize  = errors.New("queue length and item size must be non-zero")
	ErrBadSemaphore  = errors.New("semaphore initial count exceeds max")
	ErrStarted       = errors.New("kernel already started")
	ErrStackOverflow = errors.New("stack overflow")
	ErrHeapCorrupt   = heap.ErrCorrupt
)
