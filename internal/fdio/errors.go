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

package fdio

import "github.com/runpd/runpd/errors"

const (
	ErrorDial errors.CodeError = iota + errors.MinPkgFdio
	ErrorListen
	ErrorAccept
	ErrorSend
	ErrorReceive
	ErrorTooManyRights
	ErrorNoSuchSocket
	ErrorNotSeqPacket
)

func init() {
	errors.RegisterIdFctMessage(ErrorDial, getMessage)
}

func getMessage(code errors.CodeError) string {
	switch code {
	case ErrorDial:
		return "unable to connect to the control socket"
	case ErrorListen:
		return "unable to bind the control socket"
	case ErrorAccept:
		return "unable to accept an incoming connection"
	case ErrorSend:
		return "unable to send a datagram over the control socket"
	case ErrorReceive:
		return "unable to receive a datagram from the control socket"
	case ErrorTooManyRights:
		return "peer sent more file descriptors than this message can carry"
	case ErrorNoSuchSocket:
		return "control socket path does not exist"
	case ErrorNotSeqPacket:
		return "underlying connection is not a SOCK_SEQPACKET unix socket"
	}

	return ""
}
