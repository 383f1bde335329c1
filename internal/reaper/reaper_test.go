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

package reaper_test

import (
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/runpd/runpd/internal/reaper"
)

func TestReaperDeliversExitCode(t *testing.T) {
	r := reaper.New()
	r.Start()
	defer r.Stop()

	cmd := exec.Command("/bin/sh", "-c", "exit 7")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	ch, err := r.Watch(cmd.Process.Pid)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	select {
	case res := <-ch:
		if !res.Exited || res.ExitCode != 7 {
			t.Fatalf("unexpected result: %+v", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reap")
	}
}

func TestReaperDeliversSignal(t *testing.T) {
	r := reaper.New()
	r.Start()
	defer r.Stop()

	cmd := exec.Command("/bin/sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	ch, err := r.Watch(cmd.Process.Pid)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	if err := cmd.Process.Signal(syscall.SIGKILL); err != nil {
		t.Fatalf("signal: %v", err)
	}

	select {
	case res := <-ch:
		if !res.Signaled || res.Signal != syscall.SIGKILL {
			t.Fatalf("unexpected result: %+v", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reap")
	}
}

func TestWatchRejectsDuplicateRegistration(t *testing.T) {
	r := reaper.New()

	if _, err := r.Watch(999999); err != nil {
		t.Fatalf("first watch: %v", err)
	}

	if _, err := r.Watch(999999); err == nil {
		t.Fatal("expected error on duplicate registration")
	}
}

func TestWatchDrainsReapBufferedBeforeRegistration(t *testing.T) {
	r := reaper.New()
	r.Start()
	defer r.Stop()

	cmd := exec.Command("/bin/sh", "-c", "exit 3")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	pid := cmd.Process.Pid

	// Give the reaper a chance to observe SIGCHLD and drain this pid
	// before anything calls Watch, the same race a fast-exiting spawn
	// hits between Build returning and conn.Handle registering it.
	time.Sleep(100 * time.Millisecond)

	ch, err := r.Watch(pid)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	select {
	case res := <-ch:
		if !res.Exited || res.ExitCode != 3 {
			t.Fatalf("unexpected result: %+v", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for buffered reap")
	}
}

func TestUnwatchRemovesRegistration(t *testing.T) {
	r := reaper.New()

	if _, err := r.Watch(123456); err != nil {
		t.Fatalf("watch: %v", err)
	}

	r.Unwatch(123456)

	if _, err := r.Watch(123456); err != nil {
		t.Fatalf("re-watch after unwatch: %v", err)
	}
}
