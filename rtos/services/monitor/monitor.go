// Package monitor renders the kernel task table on the display.
package monitor

import (
	"fmt"
	"io"

	"myrtos/hal"
	"myrtos/rtos/kernel"

	"tinygo.org/x/tinyfont/proggy"
	"tinygo.org/x/tinyterm"
)

type Service struct {
	k      *kernel.Kernel
	disp   hal.Display
	period uint32

	fb     hal.Framebuffer
	t      *tinyterm.Terminal
	queues []watched
}

type watched struct {
	name string
	q    *kernel.Queue
}

// New creates the monitor task, refreshing every period ticks. Without a
// framebuffer the task exits on its first run.
func New(k *kernel.Kernel, disp hal.Display, prio kernel.Priority, period uint32) (*Service, error) {
	if period == 0 {
		period = 1
	}
	s := &Service{k: k, disp: disp, period: period}
	if _, err := k.CreateTask("monitor", s.run, nil, 512, prio); err != nil {
		return nil, fmt.Errorf("monitor service: %w", err)
	}
	return s, nil
}

// Watch adds a queue to the fill table. Call it before the kernel starts.
func (s *Service) Watch(name string, q *kernel.Queue) {
	s.queues = append(s.queues, watched{name: name, q: q})
}

func (s *Service) run(ctx *kernel.Context, _ any) {
	if s.disp == nil {
		return
	}
	s.fb = s.disp.Framebuffer()
	if s.fb == nil {
		return
	}
	last := ctx.NowTick()
	for {
		s.render(ctx)
		ctx.DelayUntil(&last, s.period)
	}
}

func (s *Service) render(ctx *kernel.Context) {
	if s.k.InPanicMode() {
		return
	}
	s.t = tinyterm.NewTerminal(fbDisplay{fb: s.fb})
	s.t.Configure(&tinyterm.Config{
		Font:              &proggy.TinySZ8pt7b,
		FontHeight:        10,
		FontOffset:        6,
		UseSoftwareScroll: true,
	})
	s.fb.ClearRGB(0, 0, 0)

	heapErr := s.k.CheckHeap()
	fmt.Fprintf(s.t, "tick %d  switches %d\r\n", s.k.Ticks(), s.k.Switches())
	WriteHeap(s.t, s.k.HeapStats())
	if heapErr != nil {
		fmt.Fprintf(s.t, "\x1b[31m%v\x1b[0m\r\n", heapErr)
	}
	for _, w := range s.queues {
		WriteQueue(s.t, ctx, w.name, w.q)
	}
	fmt.Fprint(s.t, "\r\n")
	WriteTasks(s.t, s.k.Tasks())
	s.t.Display()
}

// WriteTasks writes a ps-style task table.
func WriteTasks(w io.Writer, tasks []kernel.TaskInfo) {
	fmt.Fprintf(w, "%-3s %-16s %-9s %4s %4s %5s\r\n", "ID", "NAME", "STATE", "PRIO", "BASE", "STACK")
	for _, ti := range tasks {
		mark := ' '
		if ti.Running {
			mark = '*'
		}
		fmt.Fprintf(w, "%-3d %-16s %-9s %4d %4d %5d%c\r\n",
			ti.ID, ti.Name, ti.State, ti.Priority, ti.BasePriority, ti.StackWords, mark)
	}
}

// WriteQueue writes the fill level of q as used/capacity and the item size.
func WriteQueue(w io.Writer, ctx *kernel.Context, name string, q *kernel.Queue) {
	used := q.Capacity() - q.Spaces(ctx)
	fmt.Fprintf(w, "queue %-8s %3d/%-3d x%dB\r\n", name, used, q.Capacity(), q.ItemSize())
}

// WriteHeap writes one line of heap usage.
func WriteHeap(w io.Writer, hs kernel.HeapStats) {
	fmt.Fprintf(w, "heap %d/%d free, low %d, allocs %d frees %d fails %d\r\n",
		hs.Free, hs.Size, hs.MinEverFree, hs.Allocs, hs.Frees, hs.Failures)
}
