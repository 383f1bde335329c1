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

package server_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/runpd/runpd/internal/fdio"
	"github.com/runpd/runpd/internal/server"
	"github.com/runpd/runpd/internal/wire"
)

func newTestLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestServerAcceptsAndRunsExec(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "control.sock")

	s := server.New(server.Config{SocketPath: path, SocketPerm: 0o600}, newTestLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(ctx) }()

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

	devNull, err := os.Open(os.DevNull)
	if err != nil {
		t.Fatalf("open devnull: %v", err)
	}
	defer devNull.Close()

	body := wire.ExecBody{
		Program: "/bin/sh",
		Argv:    []string{"-c", "exit 3"},
		IOFlags: wire.NewIOFlags(),
		Uid:     -1,
		Gid:     -1,
	}
	encoded, err := wire.EncodeExecBody(body)
	if err != nil {
		t.Fatalf("encode body: %v", err)
	}
	header, err := wire.EncodeRequest(wire.Request{Tag: wire.TagExec, BodySize: uint64(len(encoded))})
	if err != nil {
		t.Fatalf("encode header: %v", err)
	}
	if err = client.Send(header, nil); err != nil {
		t.Fatalf("send header: %v", err)
	}
	if err = client.Send(encoded, nil); err != nil {
		t.Fatalf("send body: %v", err)
	}

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
	if pr.Tag != wire.ResultExit || pr.Payload != 3 {
		t.Fatalf("unexpected result: %+v", pr)
	}

	cancel()

	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for server shutdown")
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected socket file to be removed, stat err = %v", err)
	}
}
