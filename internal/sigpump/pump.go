/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package sigpump is the client-side signal pump: it captures every
// signal the client process can legally catch and turns them into a
// stream the exec client loop can select over alongside the control
// socket, the same role signal_hook plays around a self-pipe in the
// original implementation. Go's os/signal already behaves like a
// non-blocking self-pipe internally, so no raw pipe is hand-rolled here.
package sigpump

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// catchable is every signal this pump installs a handler for: every
// signal syscall defines on this platform minus the ones that can never
// be caught or that would be nonsensical to forward to a remote child
// (SIGKILL, SIGSTOP are uncatchable; SIGILL, SIGFPE, SIGSEGV are
// synchronous faults the handling process itself is in no state to
// forward cleanly).
var catchable = []os.Signal{
	syscall.SIGHUP,
	syscall.SIGINT,
	syscall.SIGQUIT,
	syscall.SIGTRAP,
	syscall.SIGABRT,
	syscall.SIGBUS,
	syscall.SIGUSR1,
	syscall.SIGUSR2,
	syscall.SIGPIPE,
	syscall.SIGALRM,
	syscall.SIGTERM,
	syscall.SIGCHLD,
	syscall.SIGCONT,
	syscall.SIGTSTP,
	syscall.SIGTTIN,
	syscall.SIGTTOU,
	syscall.SIGIO,
	syscall.SIGXCPU,
	syscall.SIGXFSZ,
	syscall.SIGVTALRM,
	syscall.SIGPROF,
	syscall.SIGWINCH,
	syscall.SIGSYS,
}

// Pump installs handlers for every catchable signal and exposes them as a
// channel of os.Signal. It must be stopped exactly once via Close.
type Pump struct {
	ch     chan os.Signal
	mu     sync.Mutex
	closed bool
}

// New installs the handlers and starts capturing. Signals received before
// the first Wait call are buffered; a flood beyond the buffer loses
// duplicates, which is acceptable for a control channel that only cares
// about the most recent signal in flight.
func New() *Pump {
	ch := make(chan os.Signal, 16)
	signal.Notify(ch, catchable...)

	return &Pump{ch: ch}
}

// Wait resolves to the next captured signal, or ok=false once Close has
// been called and no further signal is pending.
func (p *Pump) Wait() (os.Signal, bool) {
	sig, ok := <-p.ch
	return sig, ok
}

// C exposes the raw channel for callers that want to select on it
// directly alongside other channels (e.g. the client run loop's recv
// channel), rather than blocking inside Wait.
func (p *Pump) C() <-chan os.Signal {
	return p.ch
}

// Close unregisters every handler installed by New. Safe to call more
// than once.
func (p *Pump) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	signal.Stop(p.ch)
	close(p.ch)
}
