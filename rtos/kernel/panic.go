package kernel

// PanicInfo contains details about a recovered task panic or a kernel fault.
type PanicInfo struct {
	TaskID TaskID
	Task   string
	Value  any
	Stack  []byte
}

// InPanicMode reports whether a task panic or a kernel fault has been reported.
func (k *Kernel) InPanicMode() bool {
	return k.panicActive.Load()
}

// SetPanicHandler installs the handler invoked on the first task panic or
// kernel fault. It must not panic and must not call into the kernel.
func (k *Kernel) SetPanicHandler(fn func(PanicInfo)) {
	k.panicHandler.Store(fn)
}

func (k *Kernel) triggerPanic(info PanicInfo) {
	k.panicOnce.Do(func() {
		k.panicActive.Store(true)
		if info.Stack == nil {
			info.Stack = captureStack()
		}
		if v := k.panicHandler.Load(); v != nil {
			if fn, ok := v.(func(PanicInfo)); ok && fn != nil {
				fn(info)
			}
		}
	})
}
