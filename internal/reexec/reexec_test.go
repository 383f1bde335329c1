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

package reexec_test

import (
	"os"
	"testing"

	"github.com/runpd/runpd/internal/reexec"
)

func TestInitDispatchesRegisteredName(t *testing.T) {
	const name = "runpd-test-reexec-entry"

	called := false
	reexec.Register(name, func() { called = true })

	saved := os.Args
	defer func() { os.Args = saved }()

	os.Args = []string{name}

	if !reexec.Init() {
		t.Fatal("expected Init to dispatch the registered entry")
	}
	if !called {
		t.Fatal("registered function was not invoked")
	}
}

func TestInitIgnoresUnregisteredName(t *testing.T) {
	saved := os.Args
	defer func() { os.Args = saved }()

	os.Args = []string{"not-a-registered-entry-point"}

	if reexec.Init() {
		t.Fatal("expected Init to return false for an unregistered name")
	}
}

func TestCommandSetsSentinelArgv0(t *testing.T) {
	cmd := reexec.Command("runpd-child", "a", "b")

	if len(cmd.Args) != 3 || cmd.Args[0] != "runpd-child" {
		t.Fatalf("unexpected args: %v", cmd.Args)
	}
}
