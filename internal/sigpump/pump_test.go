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

package sigpump_test

import (
	"syscall"
	"testing"
	"time"

	"github.com/runpd/runpd/internal/sigpump"
)

func TestPumpDeliversCapturedSignal(t *testing.T) {
	p := sigpump.New()
	defer p.Close()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("self-signal: %v", err)
	}

	select {
	case sig := <-p.C():
		if sig != syscall.SIGUSR1 {
			t.Fatalf("unexpected signal: %v", sig)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for captured signal")
	}
}

func TestPumpCloseStopsDelivery(t *testing.T) {
	p := sigpump.New()
	p.Close()

	if _, ok := p.Wait(); ok {
		t.Fatal("expected Wait to report closed after Close")
	}
}
