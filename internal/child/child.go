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

// Package child spawns a target program as described by a Spec, using a
// self-reexec helper to run the syscalls that must happen after fork but
// before exec (new session, new process group, parent-death signal,
// detaching the controlling terminal, nohup). Go cannot run arbitrary
// code in that window inside a multi-threaded process, so the helper
// does it as a freshly started, single-threaded process instead; see
// internal/reexec.
package child

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/runpd/runpd/internal/reexec"
)

const reexecName = "runpd-child"

const specEnvVar = "RUNPD_CHILD_SPEC"

func init() {
	reexec.Register(reexecName, runInit)
}

// Build starts the reexec helper that will become the target program
// described by spec. stdin, stdout and stderr are the already-resolved
// streams for the child (os.DevNull-backed files for any stream the
// caller didn't request); Build never closes them. It returns as soon as
// the helper confirms the target program was successfully exec'd, or an
// error describing why it wasn't; the returned *os.Process.Pid is the
// same pid throughout, exec never changes it.
func Build(spec Spec, stdin, stdout, stderr *os.File) (*os.Process, error) {
	payload, err := json.Marshal(spec)
	if err != nil {
		return nil, ErrorMarshalSpec.Error(err)
	}

	errRead, errWrite, err := os.Pipe()
	if err != nil {
		return nil, ErrorSpawn.Error(err)
	}
	defer errRead.Close()

	cmd := reexec.Command(reexecName)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = append(os.Environ(), specEnvVar+"="+string(payload))
	cmd.ExtraFiles = []*os.File{errWrite}

	if err = cmd.Start(); err != nil {
		_ = errWrite.Close()
		return nil, ErrorSpawn.Error(err)
	}

	_ = errWrite.Close()

	buf := make([]byte, 4096)
	n, _ := readAll(errRead, buf)

	if n > 0 {
		_ = cmd.Process.Kill()
		msg := string(bytes.TrimRight(buf[:n], "\x00"))
		return nil, ErrorExec.Error(fmt.Errorf("%s", msg))
	}

	return cmd.Process, nil
}

// readAll drains r until EOF or buf is full, tolerating short reads; it
// exists only so Build doesn't need its own retry loop around a single
// partial Read from the error pipe.
func readAll(r *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, nil
		}
	}
	return total, nil
}

// runInit is the reexec entry point: it is the entire body of the freshly
// started helper process. It never returns; it either execs into the
// target program or reports failure on fd 3 and exits.
func runInit() {
	errPipe := os.NewFile(3, "runpd-child-errpipe")

	fail := func(e error) {
		if errPipe != nil && e != nil {
			_, _ = errPipe.WriteString(e.Error())
		}
		os.Exit(1)
	}

	raw := os.Getenv(specEnvVar)
	if raw == "" {
		fail(ErrorMissingSpec.Error(nil))
		return
	}

	var spec Spec
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		fail(ErrorUnmarshalSpec.Error(err))
		return
	}

	if err := preExec(spec); err != nil {
		fail(ErrorPreExec.Error(err))
		return
	}

	path := spec.Program
	if resolved, err := exec.LookPath(spec.Program); err == nil {
		path = resolved
	}

	argv := append([]string{spec.Program}, spec.Argv...)

	envp := spec.Env
	if len(envp) == 0 {
		envp = environWithoutSpec()
	}

	if errPipe != nil {
		markCloseOnExec(errPipe)
	}

	err := execInto(path, argv, envp)
	fail(ErrorExec.Error(err))
}

// environWithoutSpec is the helper's inherited environment minus the
// specEnvVar entry Build added to carry the Spec payload across the
// reexec boundary; a child that inherits (spec.Env empty) must see the
// daemon's own environment, not that internal control variable.
func environWithoutSpec() []string {
	all := os.Environ()
	out := make([]string, 0, len(all))
	prefix := specEnvVar + "="
	for _, kv := range all {
		if strings.HasPrefix(kv, prefix) {
			continue
		}
		out = append(out, kv)
	}
	return out
}
