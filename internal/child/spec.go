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

package child

import "github.com/runpd/runpd/internal/wire"

// Spec is the plain, JSON-friendly translation of a wire.ExecBody used to
// carry an exec request across the self-reexec boundary. The reexec
// helper is a brand new process with no memory of the connection that
// requested it, so everything it needs travels either as Spec (via an
// environment variable) or as inherited file descriptors.
type Spec struct {
	Program string   `json:"program"`
	Argv    []string `json:"argv"`
	Cwd     string   `json:"cwd"`
	Env     []string `json:"env"` // "NAME=VALUE"; empty means inherit the daemon's own environment

	ProcessGroup        bool `json:"process_group"`
	Session             bool `json:"session"`
	DetachTerminal      bool `json:"detach_terminal"`
	Nohup               bool `json:"nohup"`
	ControllingTerminal bool `json:"controlling_terminal"`

	Pgid     int32 `json:"pgid"`
	Uid      int32 `json:"uid"`
	Gid      int32 `json:"gid"`
	Deathsig int32 `json:"deathsig"`

	ParentPid int `json:"parent_pid"`
}

// SpecFromExecBody translates a decoded wire.ExecBody into a Spec ready to
// be handed to Build.
func SpecFromExecBody(b wire.ExecBody, parentPid int) Spec {
	env := make([]string, 0, len(b.Env))
	for _, e := range b.Env {
		env = append(env, e.Name+"="+e.Value)
	}

	s := Spec{
		Program:   b.Program,
		Argv:      b.Argv,
		Cwd:       b.Cwd,
		Env:       env,
		Pgid:      b.Pgid,
		Uid:       b.Uid,
		Gid:       b.Gid,
		Deathsig:  b.Deathsig,
		ParentPid: parentPid,
	}

	if b.StartupFlags != nil {
		s.ProcessGroup = b.StartupFlags.Test(wire.StartupProcessGroup)
		s.Session = b.StartupFlags.Test(wire.StartupSession)
		s.DetachTerminal = b.StartupFlags.Test(wire.StartupDetachTerminal)
		s.Nohup = b.StartupFlags.Test(wire.StartupNohup)
		s.ControllingTerminal = b.StartupFlags.Test(wire.StartupControllingTerminal)
	}

	return s
}
