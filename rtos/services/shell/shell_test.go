package shell

import (
	"bytes"
	"strconv"
	"strings"
	"sync"
	"testing"

	"myrtos/rtos/internal/ktest"
	"myrtos/rtos/kernel"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) take() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.buf.String()
	b.buf.Reset()
	return s
}

type fixture struct {
	h      *ktest.Harness
	sh     *Service
	out    *syncBuffer
	worker kernel.TaskID
	got    chan uint32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{h: ktest.New(t, kernel.Config{}), out: &syncBuffer{}, got: make(chan uint32, 8)}
	sh, err := New(f.h.K, f.out, 2, 4)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.sh = sh
	f.worker, err = f.h.K.CreateTask("worker", func(ctx *kernel.Context, _ any) {
		for {
			f.got <- ctx.WaitSignal(0xff, kernel.WaitForever, kernel.WaitAny|kernel.ClearOnExit)
		}
	}, nil, 128, 1)
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	f.h.Start()
	return f
}

func (f *fixture) run(t *testing.T, line string) string {
	t.Helper()
	if !f.sh.Input(line) {
		t.Fatalf("Input(%q) = false", line)
	}
	f.h.Settle()
	return f.out.take()
}

func (f *fixture) state(t *testing.T) kernel.TaskState {
	t.Helper()
	ti, ok := f.h.K.Task(f.worker)
	if !ok {
		t.Fatal("worker is gone")
	}
	return ti.State
}

func TestPsListsTasks(t *testing.T) {
	f := newFixture(t)
	out := f.run(t, "ps")
	for _, name := range []string{"idle", "shell", "worker"} {
		if !strings.Contains(out, name) {
			t.Errorf("ps output missing %q:\n%s", name, out)
		}
	}
}

func TestSuspendResumeByName(t *testing.T) {
	f := newFixture(t)
	if out := f.run(t, "suspend worker"); out != "" {
		t.Fatalf("suspend output = %q", out)
	}
	if got := f.state(t); got != kernel.StateSuspended {
		t.Fatalf("state after suspend = %v", got)
	}
	f.run(t, "resume worker")
	if got := f.state(t); got != kernel.StateBlocked {
		t.Fatalf("state after resume = %v, want blocked", got)
	}
	if out := f.run(t, "resume worker"); !strings.Contains(out, "not suspended") {
		t.Fatalf("second resume output = %q", out)
	}
}

func TestSignalReachesTask(t *testing.T) {
	f := newFixture(t)
	f.run(t, "signal worker 0x5")
	select {
	case got := <-f.got:
		if got != 0x5 {
			t.Fatalf("WaitSignal() = %#x, want 0x5", got)
		}
	default:
		t.Fatal("worker did not receive the signal")
	}
	if out := f.run(t, "signal worker nope"); !strings.HasPrefix(out, "usage: signal") {
		t.Fatalf("bad bits output = %q", out)
	}
}

func TestKillByID(t *testing.T) {
	f := newFixture(t)
	out := f.run(t, "kill "+strconv.Itoa(int(f.worker)))
	if !strings.Contains(out, "deleted") {
		t.Fatalf("kill output = %q", out)
	}
	if _, ok := f.h.K.Task(f.worker); ok {
		t.Fatal("worker still exists")
	}
	if out := f.run(t, "kill worker"); !strings.Contains(out, "no such task") {
		t.Fatalf("second kill output = %q", out)
	}
}

func TestShellRefusesItself(t *testing.T) {
	f := newFixture(t)
	out := f.run(t, "kill shell")
	if !strings.Contains(out, "refusing") {
		t.Fatalf("kill shell output = %q", out)
	}
	if out := f.run(t, "ticks"); !strings.HasPrefix(out, "tick ") {
		t.Fatalf("shell stopped answering: %q", out)
	}
}

func TestErrors(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		line string
		want string
	}{
		{"frobnicate", "unknown command"},
		{"suspend", "usage: suspend <id>"},
		{`notify "worker`, "parse:"},
		{"notify 99", "no such task"},
		{"", ""},
	}
	for _, tt := range tests {
		out := f.run(t, tt.line)
		if tt.want == "" {
			if out != "" {
				t.Errorf("%q output = %q, want none", tt.line, out)
			}
			continue
		}
		if !strings.Contains(out, tt.want) {
			t.Errorf("%q output = %q, want %q", tt.line, out, tt.want)
		}
	}
}

func TestHelpIsSorted(t *testing.T) {
	f := newFixture(t)
	lines := strings.Split(strings.TrimRight(f.run(t, "help"), "\r\n"), "\r\n")
	if len(lines) != len(commands) {
		t.Fatalf("help lines = %d, want %d", len(lines), len(commands))
	}
	if !strings.HasPrefix(lines[0], "heap") || !strings.HasPrefix(lines[len(lines)-1], "ticks") {
		t.Fatalf("help not sorted: %q", lines)
	}
}

func TestHeapCommand(t *testing.T) {
	f := newFixture(t)
	out := f.run(t, "heap")
	if !strings.Contains(out, "heap ok") {
		t.Fatalf("heap output = %q", out)
	}
}
