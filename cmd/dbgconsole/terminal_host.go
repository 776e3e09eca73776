//go:build !windows

package main

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"
)

// LineSink receives one complete command line (without the trailing
// newline) each time the operator presses Enter.
type LineSink func(line string)

// TerminalHost reads raw stdin a byte at a time and assembles it into
// command lines for a LineSink, echoing locally since raw mode disables the
// terminal's own echo. Only instantiated from main() for interactive use —
// never in tests.
type TerminalHost struct {
	sink         LineSink
	buf          []byte
	stopCh       chan struct{}
	done         chan struct{}
	stopped      sync.Once
	fd           int
	nonblockSet  bool
	oldTermState *term.State
}

// NewTerminalHost creates a host adapter that feeds assembled command lines
// to sink.
func NewTerminalHost(sink LineSink) *TerminalHost {
	return &TerminalHost{
		sink:   sink,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start sets stdin to non-blocking raw mode and begins reading in a
// goroutine. Each byte is echoed and accumulated; on '\n' the line is
// dispatched to the sink and the buffer reset.
func (h *TerminalHost) Start() {
	h.fd = int(os.Stdin.Fd())

	oldState, err := term.MakeRaw(h.fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "terminal_host: failed to set raw mode: %v\n", err)
		close(h.done)
		return
	}
	h.oldTermState = oldState

	if err := syscall.SetNonblock(h.fd, true); err != nil {
		fmt.Fprintf(os.Stderr, "terminal_host: failed to set nonblocking stdin: %v\n", err)
		_ = term.Restore(h.fd, h.oldTermState)
		h.oldTermState = nil
		close(h.done)
		return
	}
	h.nonblockSet = true

	go func() {
		defer close(h.done)
		readBuf := make([]byte, 1)

		for {
			select {
			case <-h.stopCh:
				return
			default:
			}

			n, err := syscall.Read(h.fd, readBuf)
			if n > 0 {
				b := readBuf[0]
				// Raw mode sends CR for Enter; translate to LF.
				if b == '\r' {
					b = '\n'
				}
				// Modern terminals send 0x7F (DEL) for Backspace; translate to 0x08 (BS).
				if b == 0x7F {
					b = 0x08
				}
				h.feed(b)
			}
			if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			if err != nil {
				return
			}
			if n == 0 {
				time.Sleep(5 * time.Millisecond)
			}
		}
	}()
}

func (h *TerminalHost) feed(b byte) {
	switch b {
	case '\n':
		fmt.Print("\r\n")
		line := string(h.buf)
		h.buf = h.buf[:0]
		h.sink(line)
	case 0x08:
		if len(h.buf) > 0 {
			h.buf = h.buf[:len(h.buf)-1]
			fmt.Print("\b \b")
		}
	default:
		h.buf = append(h.buf, b)
		fmt.Printf("%c", b)
	}
}

// Stop terminates the stdin reading goroutine and restores stdin to
// blocking mode.
func (h *TerminalHost) Stop() {
	h.stopped.Do(func() {
		close(h.stopCh)
	})
	<-h.done
	if h.nonblockSet {
		_ = syscall.SetNonblock(h.fd, false)
		h.nonblockSet = false
	}
	if h.oldTermState != nil {
		_ = term.Restore(h.fd, h.oldTermState)
		h.oldTermState = nil
	}
}
