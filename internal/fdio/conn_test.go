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

package fdio_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/runpd/runpd/internal/fdio"
)

func TestSendRecvRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "control.sock")

	l, err := fdio.Listen(path, 0o600)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()

	serverDone := make(chan struct{})
	var recvData []byte
	var recvRights []int
	var recvErr error

	go func() {
		defer close(serverDone)

		conn, acceptErr := l.Accept()
		if acceptErr != nil {
			recvErr = acceptErr
			return
		}
		defer conn.Close()

		recvData, recvRights, recvErr = conn.Recv()
	}()

	client, err := fdio.Dial(path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	tmp, err := os.CreateTemp(dir, "payload")
	if err != nil {
		t.Fatalf("create temp: %v", err)
	}
	defer tmp.Close()

	payload := []byte("hello from client")
	if err := client.Send(payload, []int{int(tmp.Fd())}); err != nil {
		t.Fatalf("send: %v", err)
	}

	<-serverDone

	if recvErr != nil {
		t.Fatalf("recv: %v", recvErr)
	}
	if string(recvData) != string(payload) {
		t.Fatalf("payload mismatch: got %q, want %q", recvData, payload)
	}
	if len(recvRights) != 1 {
		t.Fatalf("expected 1 right, got %d", len(recvRights))
	}

	h := fdio.NewHandle(recvRights[0])
	defer h.Close()

	fd := h.Take()
	if fd < 0 {
		t.Fatalf("invalid fd taken: %d", fd)
	}
}

func TestSendRejectsTooManyRights(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "control.sock")

	l, err := fdio.Listen(path, 0o600)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()

	client, err := fdio.Dial(path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	rights := make([]int, fdio.MaxRights+1)
	for i := range rights {
		rights[i] = int(os.Stdin.Fd())
	}

	if err := client.Send([]byte("x"), rights); err == nil {
		t.Fatal("expected error for too many rights")
	}
}

func TestHandleCloseIsIdempotentAfterTake(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer w.Close()

	h := fdio.NewHandle(int(r.Fd()))
	fd := h.Take()
	if fd != int(r.Fd()) {
		t.Fatalf("take returned %d, want %d", fd, r.Fd())
	}

	// Close after Take must be a no-op; the caller now owns fd via r.
	if err := h.Close(); err != nil {
		t.Fatalf("close after take: %v", err)
	}

	_ = r.Close()
}
