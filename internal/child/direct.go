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

import (
	"os"
	"os/exec"
)

// ExecDirect runs preExec and execInto in the calling process itself,
// with no fork and no reexec helper. It is for the case where a client
// has no daemon to talk to and simply becomes the target program,
// applying the same pre-exec semantics Build gives a spawned child.
//
// On success it never returns. On failure it returns the error that
// would otherwise have been reported on the reexec helper's error pipe.
func ExecDirect(spec Spec) error {
	if err := preExec(spec); err != nil {
		return ErrorPreExec.Error(err)
	}

	path := spec.Program
	if resolved, err := exec.LookPath(spec.Program); err == nil {
		path = resolved
	}

	argv := append([]string{spec.Program}, spec.Argv...)

	envp := spec.Env
	if len(envp) == 0 {
		envp = os.Environ()
	}

	return ErrorExec.Error(execInto(path, argv, envp))
}
