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

package wire

import "github.com/runpd/runpd/errors"

const (
	ErrorShortBuffer errors.CodeError = iota + errors.MinPkgWire
	ErrorInvalidTag
	ErrorInvalidString
	ErrorBodySizeMismatch
	ErrorIOFlagMismatch
	ErrorStringTooLarge
)

func init() {
	errors.RegisterIdFctMessage(ErrorShortBuffer, getMessage)
}

func getMessage(code errors.CodeError) string {
	switch code {
	case ErrorShortBuffer:
		return "datagram is too short to decode the expected message"
	case ErrorInvalidTag:
		return "unknown tag for this message variant"
	case ErrorInvalidString:
		return "string field is not valid utf-8 or overruns the buffer"
	case ErrorBodySizeMismatch:
		return "exec body datagram length does not match the declared body_size"
	case ErrorIOFlagMismatch:
		return "number of stdio descriptors received does not match the io_flags popcount"
	case ErrorStringTooLarge:
		return "string field length prefix exceeds the maximum allowed size"
	}

	return ""
}
