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

package child_test

import (
	"testing"

	"github.com/runpd/runpd/internal/child"
	"github.com/runpd/runpd/internal/wire"
)

func TestSpecFromExecBodyMapsFlags(t *testing.T) {
	startup := wire.NewStartupFlags()
	startup.Set(wire.StartupSession)
	startup.Set(wire.StartupNohup)

	body := wire.ExecBody{
		Program: "/bin/sleep",
		Argv:    []string{"sleep", "1"},
		Cwd:     "/tmp",
		Env: []wire.EnvVar{
			{Name: "FOO", Value: "bar"},
		},
		StartupFlags: startup,
		IOFlags:      wire.NewIOFlags(),
		Pgid:         0,
		Uid:          -1,
		Gid:          -1,
		Deathsig:     15,
		Connsig:      1,
	}

	spec := child.SpecFromExecBody(body, 4242)

	if spec.Program != body.Program || spec.Cwd != body.Cwd {
		t.Fatalf("scalar fields not preserved: %+v", spec)
	}
	if !spec.Session || !spec.Nohup {
		t.Fatalf("expected Session and Nohup set, got %+v", spec)
	}
	if spec.ProcessGroup || spec.DetachTerminal || spec.ControllingTerminal {
		t.Fatalf("unexpected flag set: %+v", spec)
	}
	if len(spec.Env) != 1 || spec.Env[0] != "FOO=bar" {
		t.Fatalf("env not translated to NAME=VALUE form: %+v", spec.Env)
	}
	if spec.ParentPid != 4242 {
		t.Fatalf("parent pid not set: %+v", spec)
	}
}

func TestSpecFromExecBodyNilFlags(t *testing.T) {
	body := wire.ExecBody{Program: "/bin/true"}

	spec := child.SpecFromExecBody(body, 1)

	if spec.ProcessGroup || spec.Session || spec.DetachTerminal || spec.Nohup || spec.ControllingTerminal {
		t.Fatalf("expected all flags false with nil StartupFlags, got %+v", spec)
	}
}
