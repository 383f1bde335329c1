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

package conn

import (
	stderrors "errors"
	"os"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/runpd/runpd/internal/child"
	"github.com/runpd/runpd/internal/fdio"
	"github.com/runpd/runpd/internal/reaper"
	"github.com/runpd/runpd/internal/wire"
)

// Hooks lets the caller observe connection lifecycle events for metrics
// without conn depending on any particular metrics backend. Every method
// is optional; a nil Hooks is valid and every call becomes a no-op.
type Hooks struct {
	OnSpawned     func()
	OnSpawnFailed func()
	OnReaped      func()
}

func (h *Hooks) spawned() {
	if h != nil && h.OnSpawned != nil {
		h.OnSpawned()
	}
}

func (h *Hooks) spawnFailed() {
	if h != nil && h.OnSpawnFailed != nil {
		h.OnSpawnFailed()
	}
}

func (h *Hooks) reaped() {
	if h != nil && h.OnReaped != nil {
		h.OnReaped()
	}
}

// Handle drives one accepted connection to completion. It never returns
// an error for conditions the protocol itself defines (malformed client
// input, disconnect, spawn failure); those are logged and the connection
// simply reaches its terminal state. It returns an error for transport
// failures on the connection socket that prevented a clean terminal
// transition, when a started child cannot be registered with the reaper,
// and when a Stop request fails to signal the daemon.
func Handle(c *fdio.Conn, rp *reaper.Reaper, log *logrus.Entry, hooks *Hooks) error {
	data, _, err := c.Recv()
	if err != nil {
		return ErrorRecvHeader.Error(err)
	}

	req, err := wire.DecodeRequest(data)
	if err != nil {
		log.WithError(err).Warn("malformed request header")
		return nil
	}

	switch req.Tag {
	case wire.TagStop:
		return handleStop(log)
	case wire.TagExec:
		return handleExec(c, rp, log, hooks, req)
	default:
		log.Warn("unknown request tag")
		return nil
	}
}

func handleStop(log *logrus.Entry) error {
	log.Info("stop requested")
	if err := syscall.Kill(os.Getpid(), syscall.SIGINT); err != nil {
		return ErrorSelfSignal.Error(err)
	}
	return nil
}

func handleExec(c *fdio.Conn, rp *reaper.Reaper, log *logrus.Entry, hooks *Hooks, req wire.Request) error {
	data, rights, err := c.Recv()
	if err != nil {
		return ErrorRecvBody.Error(err)
	}
	handles := fdio.NewHandles(rights)
	defer handles.CloseRemaining()

	body, err := wire.DecodeExecBody(data, req.BodySize)
	if err != nil {
		log.WithError(err).Warn("malformed exec body")
		return nil
	}

	if wire.IOFlagCount(body.IOFlags) != len(handles) {
		log.Warn("io_flags popcount does not match descriptors received")
		return nil
	}

	log = log.WithField("program", body.Program)

	stdin, stdout, stderr, err := assignStdio(body, handles)
	if err != nil {
		log.WithError(err).Warn("failed to prepare stdio for child")
		return replySpawnFailure(c, err)
	}
	defer stdin.Close()
	defer stdout.Close()
	defer stderr.Close()

	spec := child.SpecFromExecBody(body, os.Getpid())

	proc, err := child.Build(spec, stdin, stdout, stderr)
	if err != nil {
		hooks.spawnFailed()
		log.WithError(err).Warn("process failed to start")
		return replySpawnFailure(c, err)
	}

	pid := proc.Pid
	log = log.WithField("pid", pid)
	log.Info("process started")
	hooks.spawned()

	resultCh, err := rp.Watch(pid)
	if err != nil {
		log.WithError(err).Error("failed to register pid with reaper")
		_ = proc.Kill()
		return ErrorWatchPid.Error(err)
	}

	reply, err := wire.EncodeStartedProcess(wire.StartedProcess{
		Success: true,
		Message: "success",
		Errno:   0,
		Pid:     int32(pid),
	})
	if err != nil {
		rp.Unwatch(pid)
		return ErrorSendReply.Error(err)
	}
	if err = c.Send(reply, nil); err != nil {
		rp.Unwatch(pid)
		return ErrorSendReply.Error(err)
	}

	isGroupLeader := body.StartupFlags != nil &&
		(body.StartupFlags.Test(wire.StartupProcessGroup) || body.StartupFlags.Test(wire.StartupSession))
	connsig := resolveSignal(body.Connsig, syscall.SIGKILL)

	return runChild(c, rp, log, hooks, pid, isGroupLeader, connsig, resultCh)
}

func replySpawnFailure(c *fdio.Conn, cause error) error {
	reply, err := wire.EncodeStartedProcess(wire.StartedProcess{
		Success: false,
		Message: cause.Error(),
		Errno:   int32(errno(cause)),
		Pid:     -1,
	})
	if err != nil {
		return ErrorSendReply.Error(err)
	}
	if err = c.Send(reply, nil); err != nil {
		return ErrorSendReply.Error(err)
	}
	return nil
}

// errno unwraps err (which may be wrapped in errors.Error's parent chain)
// down to the raw syscall.Errno the OS reported, or 0 if none is found.
func errno(err error) int {
	var e syscall.Errno
	if stderrors.As(err, &e) {
		return int(e)
	}
	return 0
}

// runChild is the Running state: it selects between the reaper's exit
// notification for pid and the next client datagram, re-arming the recv
// side after every signal so neither source starves the other.
func runChild(c *fdio.Conn, rp *reaper.Reaper, log *logrus.Entry, hooks *Hooks, pid int, isGroupLeader bool, connsig syscall.Signal, resultCh <-chan reaper.Result) error {
	type recvResult struct {
		data []byte
		err  error
	}

	recvOnce := func() <-chan recvResult {
		out := make(chan recvResult, 1)
		go func() {
			data, _, err := c.Recv()
			out <- recvResult{data: data, err: err}
		}()
		return out
	}

	recvCh := recvOnce()

	for {
		select {
		case res := <-resultCh:
			hooks.reaped()
			return sendFinalResult(c, log, pid, res)

		case rr := <-recvCh:
			if rr.err != nil {
				log.WithError(rr.err).Warn("client error, disconnecting process")
				deliverSignal(int32(pid), int32(connsig), isGroupLeader)
				<-resultCh
				hooks.reaped()
				return nil
			}
			if len(rr.data) == 0 {
				log.Warn("client disconnected")
				deliverSignal(int32(pid), int32(connsig), isGroupLeader)
				<-resultCh
				hooks.reaped()
				return nil
			}

			sig, err := wire.DecodeSignal(rr.data)
			if err != nil {
				log.WithError(err).Warn("malformed signal datagram")
				recvCh = recvOnce()
				continue
			}

			deliverSignal(int32(pid), int32(sig), isGroupLeader)
			recvCh = recvOnce()
		}
	}
}

func sendFinalResult(c *fdio.Conn, log *logrus.Entry, pid int, res reaper.Result) error {
	var result wire.ProcessResult
	switch {
	case res.Exited:
		log.WithField("code", res.ExitCode).Info("process exited")
		result = wire.ProcessResult{Tag: wire.ResultExit, Payload: int32(res.ExitCode)}
	case res.Signaled:
		log.WithField("signal", res.Signal).Info("process exited by signal")
		result = wire.ProcessResult{Tag: wire.ResultSignal, Payload: int32(res.Signal)}
	default:
		log.Warn("process exited with undefined reason")
		result = wire.ProcessResult{Tag: wire.ResultUndefined}
	}

	if err := c.CloseRead(); err != nil {
		log.WithError(err).Warn("failed to shut down read half before final result")
	}

	data, err := wire.EncodeProcessResult(result)
	if err != nil {
		return ErrorSendResult.Error(err)
	}

	if err = c.Send(data, nil); err != nil {
		return ErrorSendResult.Error(err)
	}

	return nil
}

// deliverSignal sends sigval to pid, targeting its process group instead
// of the process itself when sigval is negative and the child leads a
// group; killpg falling back to kill on ESRCH per spec.
func deliverSignal(pid int32, sigval int32, isGroupLeader bool) {
	targetGroup := sigval < 0
	if targetGroup {
		sigval = -sigval
	}

	sig := syscall.Signal(sigval)

	if targetGroup && isGroupLeader {
		if err := syscall.Kill(-int(pid), sig); err != nil {
			if err == syscall.ESRCH {
				_ = syscall.Kill(int(pid), sig)
			}
		}
		return
	}

	_ = syscall.Kill(int(pid), sig)
}

func resolveSignal(v int32, fallback syscall.Signal) syscall.Signal {
	if v <= 0 {
		return fallback
	}
	return syscall.Signal(v)
}

// assignStdio maps the received descriptor handles onto stdin/stdout/
// stderr per spec invariant 2: bit IN consumes slot 0, OUT slot 1, ERR
// slot 2, in that order among the bits actually set; any stream whose
// bit is clear (or when io_flags is empty altogether) is nulled to
// /dev/null instead.
func assignStdio(body wire.ExecBody, handles fdio.Handles) (stdin, stdout, stderr *os.File, err error) {
	next := 0
	take := func(bit uint) (*os.File, error) {
		if body.IOFlags != nil && body.IOFlags.Test(bit) {
			f := os.NewFile(uintptr(handles[next].Take()), "")
			next++
			return f, nil
		}
		return os.OpenFile(os.DevNull, os.O_RDWR, 0)
	}

	if stdin, err = take(wire.IOIn); err != nil {
		return nil, nil, nil, err
	}
	if stdout, err = take(wire.IOOut); err != nil {
		_ = stdin.Close()
		return nil, nil, nil, err
	}
	if stderr, err = take(wire.IOErr); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, nil, nil, err
	}

	return stdin, stdout, stderr, nil
}
