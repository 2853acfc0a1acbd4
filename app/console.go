package app

import (
	"context"
	"io"
	"strings"
	"sync"

	"myrtos/hal"
	"myrtos/rtos/services/shell"
)

// console feeds serial bytes and keyboard events through a line editor into
// the shell.
func (s *System) console(ctx context.Context) error {
	in := make(chan byte, 64)
	if ser := s.h.Serial(); ser != nil {
		go readSerial(ser, in)
	} else {
		in = nil
	}
	var keys <-chan hal.KeyEvent
	if inp := s.h.Input(); inp != nil {
		if kb := inp.Keyboard(); kb != nil {
			keys = kb.Events()
		}
	}

	out := s.consoleOut()
	ed := &lineEditor{echo: out, submit: func(line string) {
		if !s.shell.Input(line) {
			io.WriteString(out, "console: shell busy\r\n")
		}
	}}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			if b < 0x80 {
				ed.feed(rune(b))
			}
		case ev := <-keys:
			ed.key(ev)
		}
	}
}

// readSerial never returns while the console blocks in Read; it is left
// running at shutdown.
func readSerial(r io.Reader, out chan<- byte) {
	defer close(out)
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			out <- b
		}
		if err != nil {
			return
		}
	}
}

type lineEditor struct {
	echo   io.Writer
	buf    []rune
	submit func(string)
}

func (e *lineEditor) feed(r rune) {
	switch r {
	case '\r', '\n':
		line := string(e.buf)
		e.buf = e.buf[:0]
		if strings.TrimSpace(line) == "" {
			return
		}
		io.WriteString(e.echo, "\r\n")
		e.submit(line)
	case 0x7f, '\b':
		if len(e.buf) > 0 {
			e.buf = e.buf[:len(e.buf)-1]
			io.WriteString(e.echo, "\b \b")
		}
	case 0x03: // ^C
		e.buf = e.buf[:0]
		io.WriteString(e.echo, "^C\r\n")
	case 0x15: // ^U
		e.buf = e.buf[:0]
		io.WriteString(e.echo, "\r\x1b[K")
	default:
		if r < 0x20 || r >= 0x7f || len(e.buf) >= shell.LineBytes-1 {
			return
		}
		e.buf = append(e.buf, r)
		io.WriteString(e.echo, string(r))
	}
}

func (e *lineEditor) key(ev hal.KeyEvent) {
	if !ev.Press {
		return
	}
	switch ev.Code {
	case hal.KeyEnter:
		e.feed('\r')
	case hal.KeyBackspace:
		e.feed(0x7f)
	case hal.KeyUnknown:
		if ev.Rune != 0 {
			e.feed(ev.Rune)
		}
	}
}

// lineWriter turns a byte stream into hal.Logger lines.
type lineWriter struct {
	mu   sync.Mutex
	log  hal.Logger
	line []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, b := range p {
		switch b {
		case '\r':
		case '\n':
			if w.log != nil {
				w.log.WriteLineBytes(w.line)
			}
			w.line = w.line[:0]
		default:
			w.line = append(w.line, b)
		}
	}
	return len(p), nil
}
