package kernel

import (
	"encoding/binary"
	"fmt"
)

// initStack writes the canary at the stack base and the initial exception
// frame at its top, and returns the saved stack pointer.
func (k *Kernel) initStack(t *tcb) uintptr {
	n := int(t.stackWords) * 4
	mem := k.heap.Bytes(t.stackBlk, n)
	clear(mem)
	for i := 0; i < canaryWords; i++ {
		binary.LittleEndian.PutUint32(mem[i*4:], stackCanary)
	}
	frame := mem[n-frameWords*4:]
	for i := 0; i < 8; i++ {
		binary.LittleEndian.PutUint32(frame[i*4:], unusedFrameReg)
	}
	hw := frame[8*4:]
	binary.LittleEndian.PutUint32(hw[0:], uint32(t.id)) // r0: task argument slot
	binary.LittleEndian.PutUint32(hw[20:], taskExitLR)
	binary.LittleEndian.PutUint32(hw[24:], entryPCMarker)
	binary.LittleEndian.PutUint32(hw[28:], initialXPSR)
	return uintptr(t.stackBlk) + uintptr(n-frameWords*4)
}

func (k *Kernel) stackIntact(t *tcb) bool {
	mem := k.heap.Bytes(t.stackBlk, canaryWords*4)
	if mem == nil {
		return false
	}
	for i := 0; i < canaryWords; i++ {
		if binary.LittleEndian.Uint32(mem[i*4:]) != stackCanary {
			return false
		}
	}
	return true
}

// checkStack reports a damaged canary of the task being switched away from.
// The fault is reported once per task and is not recovered.
func (k *Kernel) checkStack(id TaskID) {
	t := &k.tasks[id]
	if id == NoTask || t.state == StateUnused || t.overflowed || k.stackIntact(t) {
		return
	}
	t.overflowed = true
	k.publish(EventStackOverflow, id)
	k.triggerPanic(PanicInfo{
		TaskID: id,
		Task:   t.name,
		Value:  fmt.Errorf("%w in task %q", ErrStackOverflow, t.name),
	})
}
