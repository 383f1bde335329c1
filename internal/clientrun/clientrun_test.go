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

package clientrun_test

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/runpd/runpd/internal/clientrun"
	"github.com/runpd/runpd/internal/conn"
	"github.com/runpd/runpd/internal/fdio"
	"github.com/runpd/runpd/internal/reaper"
	"github.com/runpd/runpd/internal/sigpump"
	"github.com/runpd/runpd/internal/wire"
)

func newTestLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func serveOne(t *testing.T, path string) *reaper.Reaper {
	t.Helper()

	ln, err := fdio.Listen(path, 0o600)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	r := reaper.New()
	r.Start()
	t.Cleanup(r.Stop)

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		_ = conn.Handle(c, r, newTestLogger(), nil)
	}()

	t.Cleanup(func() { ln.Close() })

	return r
}

func TestExecAndRunReportsExitCode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "control.sock")
	serveOne(t, path)

	var client *fdio.Conn
	var err error
	for i := 0; i < 100; i++ {
		client, err = fdio.Dial(path)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	body := wire.ExecBody{
		Program: "/bin/sh",
		Argv:    []string{"-c", "exit 7"},
		IOFlags: wire.NewIOFlags(),
		Uid:     -1,
		Gid:     -1,
	}

	sp, hangup, err := clientrun.Exec(client, body, nil)
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if hangup {
		t.Fatalf("unexpected hangup")
	}
	if !sp.Success {
		t.Fatalf("spawn failed: %+v", sp)
	}

	pump := sigpump.New()
	defer pump.Close()

	code := clientrun.Run(client, pump, newTestLogger())
	if code != 7 {
		t.Fatalf("expected exit code 7, got %d", code)
	}
}

func TestExecReportsHangupWhenServerGone(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "control.sock")

	ln, err := fdio.Listen(path, 0o600)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		c.Close()
	}()

	var client *fdio.Conn
	for i := 0; i < 100; i++ {
		client, err = fdio.Dial(path)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	defer ln.Close()

	body := wire.ExecBody{
		Program: "/bin/true",
		IOFlags: wire.NewIOFlags(),
		Uid:     -1,
		Gid:     -1,
	}

	time.Sleep(50 * time.Millisecond)

	_, hangup, err := clientrun.Exec(client, body, nil)
	if err == nil && !hangup {
		t.Fatalf("expected hangup or transport error, got sp ok")
	}
}
