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

package conn_test

import (
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/runpd/runpd/internal/conn"
	"github.com/runpd/runpd/internal/fdio"
	"github.com/runpd/runpd/internal/reaper"
	"github.com/runpd/runpd/internal/wire"
)

func newTestLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func dialPair(t *testing.T) (server, client *fdio.Conn, cleanup func()) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "control.sock")

	l, err := fdio.Listen(path, 0o600)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	acceptCh := make(chan *fdio.Conn, 1)
	go func() {
		c, acceptErr := l.Accept()
		if acceptErr != nil {
			close(acceptCh)
			return
		}
		acceptCh <- c
	}()

	client, err = fdio.Dial(path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	s := <-acceptCh

	return s, client, func() {
		_ = l.Close()
		_ = client.Close()
	}
}

func sendExec(t *testing.T, client *fdio.Conn, body wire.ExecBody, fds []int) {
	t.Helper()

	encoded, err := wire.EncodeExecBody(body)
	if err != nil {
		t.Fatalf("encode exec body: %v", err)
	}

	header, err := wire.EncodeRequest(wire.Request{Tag: wire.TagExec, BodySize: uint64(len(encoded))})
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}

	if err = client.Send(header, nil); err != nil {
		t.Fatalf("send header: %v", err)
	}
	if err = client.Send(encoded, fds); err != nil {
		t.Fatalf("send body: %v", err)
	}
}

func TestHandleExecEchoesExitCode(t *testing.T) {
	server, client, cleanup := dialPair(t)
	defer cleanup()

	rp := reaper.New()
	rp.Start()
	defer rp.Stop()

	outR, outW, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer outR.Close()

	devNull, err := os.Open(os.DevNull)
	if err != nil {
		t.Fatalf("open devnull: %v", err)
	}
	defer devNull.Close()

	ioFlags := wire.NewIOFlags()
	ioFlags.Set(wire.IOOut)

	body := wire.ExecBody{
		Program: "/bin/sh",
		Argv:    []string{"-c", "echo hello"},
		IOFlags: ioFlags,
		Uid:     -1,
		Gid:     -1,
	}

	done := make(chan error, 1)
	go func() { done <- conn.Handle(server, rp, newTestLogger(), nil) }()

	sendExec(t, client, body, []int{int(outW.Fd())})
	outW.Close()

	started, _, err := client.Recv()
	if err != nil {
		t.Fatalf("recv started: %v", err)
	}
	sp, err := wire.DecodeStartedProcess(started)
	if err != nil {
		t.Fatalf("decode started: %v", err)
	}
	if !sp.Success {
		t.Fatalf("spawn failed: %+v", sp)
	}

	result, _, err := client.Recv()
	if err != nil {
		t.Fatalf("recv result: %v", err)
	}
	pr, err := wire.DecodeProcessResult(result)
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if pr.Tag != wire.ResultExit || pr.Payload != 0 {
		t.Fatalf("unexpected result: %+v", pr)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Handle returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Handle to finish")
	}

	buf := make([]byte, 64)
	n, _ := outR.Read(buf)
	if string(buf[:n]) != "hello\n" {
		t.Fatalf("unexpected child output: %q", buf[:n])
	}
}

func TestHandleExecReportsNonzeroExit(t *testing.T) {
	server, client, cleanup := dialPair(t)
	defer cleanup()

	rp := reaper.New()
	rp.Start()
	defer rp.Stop()

	devNull, err := os.Open(os.DevNull)
	if err != nil {
		t.Fatalf("open devnull: %v", err)
	}
	defer devNull.Close()

	body := wire.ExecBody{
		Program: "/bin/sh",
		Argv:    []string{"-c", "exit 7"},
		IOFlags: wire.NewIOFlags(),
		Uid:     -1,
		Gid:     -1,
	}

	done := make(chan error, 1)
	go func() { done <- conn.Handle(server, rp, newTestLogger(), nil) }()

	sendExec(t, client, body, nil)

	if _, _, err := client.Recv(); err != nil {
		t.Fatalf("recv started: %v", err)
	}

	result, _, err := client.Recv()
	if err != nil {
		t.Fatalf("recv result: %v", err)
	}
	pr, err := wire.DecodeProcessResult(result)
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if pr.Tag != wire.ResultExit || pr.Payload != 7 {
		t.Fatalf("unexpected result: %+v", pr)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Handle to finish")
	}
}

func TestHandleStopSendsSIGINTToSelf(t *testing.T) {
	server, client, cleanup := dialPair(t)
	defer cleanup()

	rp := reaper.New()
	rp.Start()
	defer rp.Stop()

	// handleStop delivers a real SIGINT to this process; capture it so the
	// test binary itself doesn't terminate on the default action.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	defer signal.Stop(sigCh)

	req, err := wire.EncodeRequest(wire.Request{Tag: wire.TagStop})
	if err != nil {
		t.Fatalf("encode stop: %v", err)
	}
	if err = client.Send(req, nil); err != nil {
		t.Fatalf("send stop: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- conn.Handle(server, rp, newTestLogger(), nil) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Handle returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Handle to finish")
	}

	select {
	case <-sigCh:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for self-delivered SIGINT")
	}
}
