package kernel

import "fmt"

const (
	maxPriorityLimit = 32
	maxTaskLimit     = 63
)

// Config sizes the kernel. Zero numeric fields take the DefaultConfig value.
type Config struct {
	// MaxPriorities is the number of ready levels (1..32).
	MaxPriorities int
	// MaxTasks bounds the number of live tasks, idle included (2..63).
	MaxTasks int
	// TickRateHz is the nominal tick frequency used by tick-conversion helpers.
	TickRateHz int
	// HeapBytes sizes the static pool that backs TCBs, stacks and kernel objects.
	HeapBytes int
	// MinStackWords is the smallest stack CreateTask accepts.
	MinStackWords uint32
	// IdleStackWords is the stack given to the idle task.
	IdleStackWords uint32
	// NoTimeSlicing disables round robin on the tick among equal priorities.
	NoTimeSlicing bool
	// IdleHook runs on the idle task each time the system is about to sleep.
	// It must not block or call into the kernel.
	IdleHook func()
}

// DefaultConfig returns the configuration used by the demo system.
func DefaultConfig() Config {
	return Config{
		MaxPriorities:  32,
		MaxTasks:       32,
		TickRateHz:     1000,
		HeapBytes:      64 << 10,
		MinStackWords:  64,
		IdleStackWords: 128,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxPriorities == 0 {
		c.MaxPriorities = d.MaxPriorities
	}
	if c.MaxTasks == 0 {
		c.MaxTasks = d.MaxTasks
	}
	if c.TickRateHz == 0 {
		c.TickRateHz = d.TickRateHz
	}
	if c.HeapBytes == 0 {
		c.HeapBytes = d.HeapBytes
	}
	if c.MinStackWords == 0 {
		c.MinStackWords = d.MinStackWords
	}
	if c.IdleStackWords == 0 {
		c.IdleStackWords = d.IdleStackWords
	}
	return c
}

func (c Config) validate() error {
	if c.MaxPriorities < 1 || c.MaxPriorities > maxPriorityLimit {
		return fmt.Errorf("%w: MaxPriorities %d not in 1..%d", ErrBadConfig, c.MaxPriorities, maxPriorityLimit)
	}
	if c.MaxTasks < 2 || c.MaxTasks > maxTaskLimit {
		return fmt.Errorf("%w: MaxTasks %d not in 2..%d", ErrBadConfig, c.MaxTasks, maxTaskLimit)
	}
	if c.TickRateHz < 1 {
		return fmt.Errorf("%w: TickRateHz %d", ErrBadConfig, c.TickRateHz)
	}
	if c.IdleStackWords < c.MinStackWords {
		return fmt.Errorf("%w: IdleStackWords %d below MinStackWords %d", ErrBadConfig, c.IdleStackWords, c.MinStackWords)
	}
	if c.MinStackWords < minStackWords {
		return fmt.Errorf("%w: MinStackWords %d below the %d-word exception frame", ErrBadConfig, c.MinStackWords, minStackWords)
	}
	if c.HeapBytes < 1024 {
		return fmt.Errorf("%w: HeapBytes %d", ErrBadConfig, c.HeapBytes)
	}
	return nil
}

// MsToTicks converts milliseconds to ticks at the configured rate, rounding up.
func (c Config) MsToTicks(ms uint32) uint32 {
	hz := uint64(c.TickRateHz)
	if hz == 0 {
		hz = 1000
	}
	return uint32((uint64(ms)*hz + 999) / 1000)
}
