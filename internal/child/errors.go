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

import "github.com/runpd/runpd/errors"

const (
	ErrorSpawn errors.CodeError = iota + errors.MinPkgChild
	ErrorExec
	ErrorPreExec
	ErrorMarshalSpec
	ErrorUnmarshalSpec
	ErrorMissingSpec
)

func init() {
	errors.RegisterIdFctMessage(ErrorSpawn, getMessage)
}

func getMessage(code errors.CodeError) string {
	switch code {
	case ErrorSpawn:
		return "unable to start the reexec helper process"
	case ErrorExec:
		return "target program could not be executed"
	case ErrorPreExec:
		return "a pre-exec step failed before the target program could be started"
	case ErrorMarshalSpec:
		return "unable to encode the child spec for the reexec helper"
	case ErrorUnmarshalSpec:
		return "unable to decode the child spec received from the parent process"
	case ErrorMissingSpec:
		return "reexec helper started without a child spec in its environment"
	}

	return ""
}
