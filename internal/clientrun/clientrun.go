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

package clientrun

import (
	"os"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/runpd/runpd/internal/fdio"
	"github.com/runpd/runpd/internal/sigpump"
	"github.com/runpd/runpd/internal/wire"
)

// Exit codes not tied to the child's own exit status or signal number.
const (
	ExitServerUnreachable = 128
	ExitHangup            = 128
	ExitUndefined         = 127
	ExitSpawnFailed       = 126
	ExitCLIParse          = 2
	ExitNoProgram         = 0
)

// groupTargeted is every signal the run loop forwards with process-group
// semantics (negated wire value) rather than process semantics.
func groupTargeted(sig syscall.Signal) bool {
	switch sig {
	case syscall.SIGTSTP, syscall.SIGSTOP, syscall.SIGCONT, syscall.SIGTTIN, syscall.SIGTTOU:
		return true
	default:
		return false
	}
}

// Exec sends the exec request (header, body, stdio descriptors) and
// waits for StartedProcess. hangup reports the 0-byte-disconnect case
// distinctly from a decode/transport error.
func Exec(c *fdio.Conn, body wire.ExecBody, stdioFds []int) (reply wire.StartedProcess, hangup bool, err error) {
	encoded, err := wire.EncodeExecBody(body)
	if err != nil {
		return wire.StartedProcess{}, false, ErrorSendRequest.Error(err)
	}

	header, err := wire.EncodeRequest(wire.Request{Tag: wire.TagExec, BodySize: uint64(len(encoded))})
	if err != nil {
		return wire.StartedProcess{}, false, ErrorSendRequest.Error(err)
	}

	if err = c.Send(header, nil); err != nil {
		return wire.StartedProcess{}, false, ErrorSendRequest.Error(err)
	}
	if err = c.Send(encoded, stdioFds); err != nil {
		return wire.StartedProcess{}, false, ErrorSendRequest.Error(err)
	}

	data, _, err := c.Recv()
	if err != nil {
		return wire.StartedProcess{}, false, ErrorRecvReply.Error(err)
	}
	if len(data) == 0 {
		return wire.StartedProcess{}, true, nil
	}

	sp, err := wire.DecodeStartedProcess(data)
	if err != nil {
		return wire.StartedProcess{}, false, ErrorMalformedReply.Error(err)
	}

	return sp, false, nil
}

// Stop sends a Stop request over c.
func Stop(c *fdio.Conn) error {
	req, err := wire.EncodeRequest(wire.Request{Tag: wire.TagStop})
	if err != nil {
		return ErrorSendRequest.Error(err)
	}
	if err = c.Send(req, nil); err != nil {
		return ErrorSendRequest.Error(err)
	}
	return nil
}

// Run drives the client's run loop (spec step §4.8.5): it selects
// between the server's terminal datagram and the next signal caught by
// pump, forwarding signals and translating the terminal result into the
// process exit code this invocation should use.
func Run(c *fdio.Conn, pump *sigpump.Pump, log *logrus.Entry) int {
	type recvResult struct {
		data []byte
		err  error
	}

	recvCh := make(chan recvResult, 1)
	go func() {
		data, _, err := c.Recv()
		recvCh <- recvResult{data: data, err: err}
	}()

	for {
		select {
		case rr := <-recvCh:
			if rr.err != nil {
				log.WithError(rr.err).Warn("server connection error")
				return ExitHangup
			}
			if len(rr.data) == 0 {
				log.Warn("server disconnected")
				return ExitHangup
			}

			pr, err := wire.DecodeProcessResult(rr.data)
			if err != nil {
				log.WithError(err).Warn("malformed result datagram")
				return ExitUndefined
			}

			switch pr.Tag {
			case wire.ResultExit:
				return int(pr.Payload)
			case wire.ResultSignal:
				return 128 + int(pr.Payload)
			default:
				return ExitUndefined
			}

		case sig, ok := <-pump.C():
			if !ok {
				continue
			}

			ssig, isSyscall := sig.(syscall.Signal)
			if !isSyscall {
				continue
			}

			wireVal := int32(ssig)
			if groupTargeted(ssig) {
				wireVal = -wireVal
			}

			data, err := wire.EncodeSignal(wire.Signal(wireVal))
			if err != nil {
				log.WithError(err).Warn("failed to encode signal datagram")
				continue
			}
			if err = c.Send(data, nil); err != nil {
				log.WithError(err).Warn("failed to relay signal to server")
				continue
			}

			if ssig == syscall.SIGTSTP || ssig == syscall.SIGSTOP {
				_ = syscall.Kill(os.Getpid(), syscall.SIGSTOP)
			}
		}
	}
}
