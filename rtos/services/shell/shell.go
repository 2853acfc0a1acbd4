// Package shell is a line-oriented kernel console. Lines arrive through a
// queue fed from interrupt context and run on the shell task.
package shell

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"myrtos/rtos/kernel"
	"myrtos/rtos/services/monitor"

	"github.com/google/shlex"
)

// LineBytes is the size of one input queue item: a length byte and the text.
const LineBytes = 64

var (
	errUsage      = errors.New("usage")
	errNoSuchTask = errors.New("no such task")
)

type command struct {
	usage string
	help  string
	run   func(s *Service, ctx *kernel.Context, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help":    {"help", "list commands", (*Service).help},
		"ps":      {"ps", "list tasks", (*Service).ps},
		"heap":    {"heap", "heap usage and integrity", (*Service).heap},
		"ticks":   {"ticks", "tick count and context switches", (*Service).ticks},
		"suspend": {"suspend <id>", "suspend a task", (*Service).suspend},
		"resume":  {"resume <id>", "resume a task", (*Service).resume},
		"kill":    {"kill <id>", "delete a task", (*Service).kill},
		"signal":  {"signal <id> <bits>", "send signal bits", (*Service).signal},
		"notify":  {"notify <id>", "notify a task", (*Service).notify},
	}
}

type Service struct {
	k   *kernel.Kernel
	out io.Writer
	q   *kernel.Queue
}

// New creates the input queue and the shell task writing to out.
func New(k *kernel.Kernel, out io.Writer, prio kernel.Priority, queueLen int) (*Service, error) {
	q, err := k.NewQueue(queueLen, LineBytes)
	if err != nil {
		return nil, fmt.Errorf("shell service: %w", err)
	}
	s := &Service{k: k, out: out, q: q}
	if _, err := k.CreateTask("shell", s.run, nil, 256, prio); err != nil {
		q.Delete(nil)
		return nil, fmt.Errorf("shell service: %w", err)
	}
	return s, nil
}

// Queue returns the input line queue.
func (s *Service) Queue() *kernel.Queue { return s.q }

// Input queues one line from outside any task. Lines longer than
// LineBytes-1 are truncated. It reports false when the queue is full.
func (s *Service) Input(line string) bool {
	var item [LineBytes]byte
	n := copy(item[1:], line)
	item[0] = byte(n)
	ok, woken := s.q.SendFromISR(item[:])
	s.k.YieldFromISR(woken)
	return ok
}

func (s *Service) run(ctx *kernel.Context, _ any) {
	buf := make([]byte, LineBytes)
	for {
		if !s.q.Receive(ctx, buf, kernel.WaitForever) {
			continue
		}
		n := int(buf[0])
		if n > LineBytes-1 {
			n = LineBytes - 1
		}
		s.exec(ctx, string(buf[1:1+n]))
	}
}

func (s *Service) exec(ctx *kernel.Context, line string) {
	args, err := shlex.Split(line)
	if err != nil {
		fmt.Fprintf(s.out, "parse: %v\r\n", err)
		return
	}
	if len(args) == 0 {
		return
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(s.out, "%s: unknown command (try help)\r\n", args[0])
		return
	}
	if err := cmd.run(s, ctx, args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(s.out, "usage: %s\r\n", cmd.usage)
			return
		}
		fmt.Fprintf(s.out, "%s: %v\r\n", args[0], err)
	}
}

func (s *Service) help(_ *kernel.Context, _ []string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(s.out, "%-20s %s\r\n", commands[name].usage, commands[name].help)
	}
	return nil
}

func (s *Service) ps(_ *kernel.Context, _ []string) error {
	monitor.WriteTasks(s.out, s.k.Tasks())
	return nil
}

func (s *Service) heap(_ *kernel.Context, _ []string) error {
	monitor.WriteHeap(s.out, s.k.HeapStats())
	if err := s.k.CheckHeap(); err != nil {
		return err
	}
	fmt.Fprint(s.out, "heap ok\r\n")
	return nil
}

func (s *Service) ticks(_ *kernel.Context, _ []string) error {
	fmt.Fprintf(s.out, "tick %d switches %d\r\n", s.k.Ticks(), s.k.Switches())
	return nil
}

func (s *Service) suspend(ctx *kernel.Context, args []string) error {
	id, err := s.target(ctx, args, 1)
	if err != nil {
		return err
	}
	if !ctx.Suspend(id) {
		return errNoSuchTask
	}
	return nil
}

func (s *Service) resume(ctx *kernel.Context, args []string) error {
	id, err := s.target(ctx, args, 1)
	if err != nil {
		return err
	}
	if !ctx.Resume(id) {
		return fmt.Errorf("task %d is not suspended", id)
	}
	return nil
}

func (s *Service) kill(ctx *kernel.Context, args []string) error {
	id, err := s.target(ctx, args, 1)
	if err != nil {
		return err
	}
	if !ctx.Delete(id) {
		return fmt.Errorf("task %d cannot be deleted", id)
	}
	fmt.Fprintf(s.out, "task %d deleted\r\n", id)
	return nil
}

func (s *Service) signal(ctx *kernel.Context, args []string) error {
	id, err := s.target(ctx, args, 2)
	if err != nil {
		return err
	}
	bits, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil || bits == 0 {
		return errUsage
	}
	if !ctx.SendSignal(id, uint32(bits)) {
		return errNoSuchTask
	}
	return nil
}

func (s *Service) notify(ctx *kernel.Context, args []string) error {
	id, err := s.target(ctx, args, 1)
	if err != nil {
		return err
	}
	if !ctx.Notify(id) {
		return errNoSuchTask
	}
	return nil
}

// target parses args[0] as a task id or name. The shell refuses to act on
// itself.
func (s *Service) target(ctx *kernel.Context, args []string, want int) (kernel.TaskID, error) {
	if len(args) != want {
		return kernel.NoTask, errUsage
	}
	id, ok := s.lookup(args[0])
	if !ok {
		return kernel.NoTask, errNoSuchTask
	}
	if id == ctx.TaskID() {
		return kernel.NoTask, errors.New("refusing to act on the shell task")
	}
	return id, nil
}

func (s *Service) lookup(arg string) (kernel.TaskID, bool) {
	if n, err := strconv.ParseUint(arg, 10, 8); err == nil {
		if _, ok := s.k.Task(kernel.TaskID(n)); ok && n != 0 {
			return kernel.TaskID(n), true
		}
		return kernel.NoTask, false
	}
	for _, ti := range s.k.Tasks() {
		if strings.EqualFold(ti.Name, arg) {
			return ti.ID, true
		}
	}
	return kernel.NoTask, false
}
