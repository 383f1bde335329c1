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

// Package reexec lets the runpd binary re-invoke itself as a fresh,
// single-threaded process to run a registered entry point before the
// process image is replaced by the requested child program. Go gives no
// safe way to run arbitrary code between fork and exec in a
// multi-threaded process (no equivalent of an unsafe pre_exec closure);
// self-reexec sidesteps that by starting over from main() in a new
// process where doing so is safe.
package reexec

import (
	"os"
	"os/exec"
)

var registry = map[string]func(){}

// Register associates name with fn. When the reexec'd process is started
// with os.Args[0] equal to name, Init runs fn and returns true instead
// of letting the caller fall through to its normal main().
func Register(name string, fn func()) {
	registry[name] = fn
}

// Init checks os.Args[0] against the registry and, on a match, runs the
// registered function and returns true. The caller of Init must exit
// the process (os.Exit) once the registered function returns, never fall
// back into the regular command dispatch.
func Init() bool {
	if len(os.Args) == 0 {
		return false
	}

	fn, ok := registry[os.Args[0]]
	if !ok {
		return false
	}

	fn()
	return true
}

// Self returns the path this process should exec to reenter Init, i.e.
// /proc/self/exe on Linux so the reexec keeps working after the original
// binary on disk is replaced or removed.
func Self() string {
	if path, err := os.Readlink("/proc/self/exe"); err == nil {
		return path
	}

	if exe, err := os.Executable(); err == nil {
		return exe
	}

	return os.Args[0]
}

// Command builds an *exec.Cmd that reexecs the current binary with
// argv[0] set to name, so that a child process's Init call dispatches to
// the function registered under that name.
func Command(name string, args ...string) *exec.Cmd {
	cmd := &exec.Cmd{
		Path: Self(),
		Args: append([]string{name}, args...),
	}
	return cmd
}
