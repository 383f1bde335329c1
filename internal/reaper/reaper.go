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

// Package reaper is the process-wide SIGCHLD watcher. A single Reaper
// drains every terminated child with one waitpid(-1, WNOHANG) loop per
// signal and fans results out to whoever registered interest in that
// pid, the same pattern as a self-pipe child watcher, built on
// os/signal instead of a raw signalfd.
//
// A spawner always registers interest with Watch after its child is
// already running, so a child that exits immediately can be reaped
// before Watch ever runs. Rather than block SIGCHLD across that window
// on a particular OS thread (which goroutines aren't pinned to and so
// can't reliably guarantee), results for a not-yet-watched pid are
// buffered until Watch is called.
package reaper

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Result is what a waited-for child left behind.
type Result struct {
	Pid      int
	Exited   bool
	ExitCode int
	Signaled bool
	Signal   syscall.Signal
}

// Reaper watches SIGCHLD and delivers each terminated child's wait
// status to whichever caller registered for that pid.
type Reaper struct {
	mu       sync.Mutex
	watchers map[int]chan Result
	// pending holds the wait status of a pid reaped before anyone called
	// Watch for it, so a spawner racing its own child's exit against its
	// own Watch call never loses the result: Build/Watch happen after
	// fork returns, with nothing blocking SIGCHLD in between, so a
	// fast-exiting child can be drained here first.
	pending map[int]Result
	sigCh   chan os.Signal
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a Reaper without starting it.
func New() *Reaper {
	return &Reaper{
		watchers: make(map[int]chan Result),
		pending:  make(map[int]Result),
	}
}

// Start installs the SIGCHLD handler and begins draining terminated
// children in a background goroutine. Calling Start twice is a no-op.
func (r *Reaper) Start() {
	r.mu.Lock()
	if r.sigCh != nil {
		r.mu.Unlock()
		return
	}

	r.sigCh = make(chan os.Signal, 8)
	r.stopCh = make(chan struct{})
	r.mu.Unlock()

	signal.Notify(r.sigCh, syscall.SIGCHLD)

	r.wg.Add(1)
	go r.loop()
}

// Stop removes the SIGCHLD handler and waits for the drain goroutine to
// exit.
func (r *Reaper) Stop() {
	r.mu.Lock()
	sigCh := r.sigCh
	stopCh := r.stopCh
	r.mu.Unlock()

	if sigCh == nil {
		return
	}

	signal.Stop(sigCh)
	close(stopCh)
	r.wg.Wait()
}

// Watch registers interest in pid's termination and returns a channel
// that receives exactly one Result. It is an error to Watch the same pid
// twice concurrently. If SIGCHLD for pid already arrived and was drained
// before this call (the spawn-then-register race), the buffered result
// is delivered on the returned channel immediately.
func (r *Reaper) Watch(pid int) (<-chan Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.watchers[pid]; exists {
		return nil, ErrorAlreadyRegistered.Error(nil)
	}

	ch := make(chan Result, 1)

	if res, ok := r.pending[pid]; ok {
		delete(r.pending, pid)
		ch <- res
		return ch, nil
	}

	r.watchers[pid] = ch
	return ch, nil
}

// Unwatch removes any pending registration for pid without waiting for
// it to terminate, used when the caller gives up on a registered pid
// before its result arrives (internal/conn does so when the
// StartedProcess reply cannot be sent).
func (r *Reaper) Unwatch(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.watchers, pid)
	delete(r.pending, pid)
}

func (r *Reaper) loop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopCh:
			return
		case <-r.sigCh:
			r.drain()
		}
	}
}

// drain repeatedly waitpid(-1, WNOHANG)s until no more children are
// immediately reapable, since a single SIGCHLD can coalesce more than
// one termination.
func (r *Reaper) drain() {
	for {
		var status unix.WaitStatus

		pid, err := unix.Wait4(-1, &status, unix.WNOHANG, nil)
		if err == unix.EINTR {
			continue
		}
		if err == unix.ECHILD || pid == 0 {
			return
		}
		if err != nil {
			return
		}

		r.deliver(pid, status)
	}
}

func (r *Reaper) deliver(pid int, status unix.WaitStatus) {
	res := Result{Pid: pid}

	switch {
	case status.Exited():
		res.Exited = true
		res.ExitCode = status.ExitStatus()
	case status.Signaled():
		res.Signaled = true
		res.Signal = status.Signal()
	}

	r.mu.Lock()
	ch, ok := r.watchers[pid]
	if ok {
		delete(r.watchers, pid)
	} else {
		// No one has called Watch for this pid yet: it raced its own
		// spawner's registration. Buffer it instead of dropping it so
		// the eventual Watch call still observes it.
		r.pending[pid] = res
	}
	r.mu.Unlock()

	if ok {
		ch <- res
		close(ch)
	}
}
