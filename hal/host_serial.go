//go:build !tinygo

package hal

import (
	"io"
	"os"
	"sync"

	"github.com/mattn/go-tty"
)

type hostSerial struct {
	mu sync.Mutex
	r  io.Reader
	w  io.Writer
	c  io.Closer
}

// openConsole puts the controlling terminal in raw mode. Without a terminal
// it falls back to stdio.
func openConsole() Serial {
	t, err := tty.Open()
	if err != nil {
		return &hostSerial{r: os.Stdin, w: os.Stdout}
	}
	return &hostSerial{r: t.Input(), w: t.Output(), c: t}
}

func (s *hostSerial) Read(p []byte) (int, error) {
	if s.r == nil {
		return 0, ErrNotImplemented
	}
	return s.r.Read(p)
}

func (s *hostSerial) Write(p []byte) (int, error) {
	if s.w == nil {
		return 0, ErrNotImplemented
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *hostSerial) Close() error {
	if s.c == nil {
		return nil
	}
	return s.c.Close()
}
