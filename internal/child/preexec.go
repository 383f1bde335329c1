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
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// preExec runs every step that the original implementation performed
// inside an unsafe pre_exec closure between fork and exec. Here it runs
// as the entire body of a freshly started, single-threaded process, so
// each syscall is as safe as it would be in any other Go program.
//
// Order matters: the parent-death signal must be armed before anything
// else can fail and leave an orphan behind, and process-group/session
// changes must happen before nohup disconnects the controlling terminal
// from the perspective of signal delivery.
func preExec(spec Spec) error {
	if spec.Deathsig != 0 {
		if err := unix.Prctl(unix.PR_SET_PDEATHSIG, uintptr(spec.Deathsig), 0, 0, 0); err != nil {
			return err
		}
		if os.Getppid() != spec.ParentPid {
			os.Exit(128)
		}
	}

	if spec.DetachTerminal {
		if err := detachControllingTerminal(); err != nil {
			return err
		}
	}

	if spec.ProcessGroup {
		pgid := int(spec.Pgid)
		if err := unix.Setpgid(0, pgid); err != nil {
			return err
		}
	}

	if spec.Session {
		if _, err := unix.Setsid(); err != nil {
			return err
		}
	}

	if spec.ControllingTerminal {
		if err := acquireControllingTerminal(); err != nil {
			return err
		}
	}

	if spec.Nohup {
		signal.Ignore(syscall.SIGHUP)
	}

	if spec.Cwd != "" {
		if err := os.Chdir(spec.Cwd); err != nil {
			return err
		}
	}

	if spec.Gid >= 0 {
		if err := syscall.Setgid(int(spec.Gid)); err != nil {
			return err
		}
	}

	if spec.Uid >= 0 {
		if err := syscall.Setuid(int(spec.Uid)); err != nil {
			return err
		}
	}

	return nil
}

// detachControllingTerminal opens /dev/tty and issues TIOCNOTTY, mirroring
// disconnect_controlling_terminal: a process with no controlling terminal
// at all is not an error here, only ioctl failures on an open tty are.
func detachControllingTerminal() error {
	f, err := os.OpenFile("/dev/tty", os.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		return nil
	}
	defer f.Close()

	return unix.IoctlSetInt(int(f.Fd()), unix.TIOCNOTTY, 0)
}

// acquireControllingTerminal makes fd 0 this (now session-leader)
// process's controlling terminal via TIOCSCTTY.
func acquireControllingTerminal() error {
	return unix.IoctlSetInt(0, unix.TIOCSCTTY, 1)
}

// execInto replaces the running process image with path, argv, envp. On
// success it never returns.
func execInto(path string, argv, envp []string) error {
	return syscall.Exec(path, argv, envp)
}

// markCloseOnExec arms FD_CLOEXEC on f so a successful execInto closes it
// automatically, which is how Build's error pipe read turns into an EOF
// that signals success rather than failure.
func markCloseOnExec(f *os.File) {
	unix.CloseOnExec(int(f.Fd()))
}
