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

import "github.com/runpd/runpd/errors"

const (
	ErrorRecvHeader errors.CodeError = iota + errors.MinPkgConn
	ErrorRecvBody
	ErrorIOFlagMismatch
	ErrorSendReply
	ErrorSendResult
	ErrorWatchPid
	ErrorSelfSignal
)

func init() {
	errors.RegisterIdFctMessage(ErrorRecvHeader, getMessage)
}

func getMessage(code errors.CodeError) string {
	switch code {
	case ErrorRecvHeader:
		return "failed to receive the request header datagram"
	case ErrorRecvBody:
		return "failed to receive the exec body datagram"
	case ErrorIOFlagMismatch:
		return "number of descriptors received does not match io_flags"
	case ErrorSendReply:
		return "failed to send the StartedProcess reply"
	case ErrorSendResult:
		return "failed to send the final ProcessResult"
	case ErrorWatchPid:
		return "failed to register the spawned pid with the reaper"
	case ErrorSelfSignal:
		return "failed to deliver a signal to this process"
	}

	return ""
}
