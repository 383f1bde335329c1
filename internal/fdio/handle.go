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

import "golang.org/x/sys/unix"

// Handle owns a single raw file descriptor received over the control
// socket. A Handle must be resolved exactly once: either Take (the
// descriptor moves to the caller, e.g. to be dup2'd into a child's stdio)
// or Close (the descriptor is discarded unused). Letting a Handle go out
// of scope without calling either leaks the fd; callers that are certain
// they always call one or the other may ignore the return value.
type Handle struct {
	fd   int
	done bool
}

// NewHandle wraps a raw descriptor received via Recv.
func NewHandle(fd int) *Handle {
	return &Handle{fd: fd}
}

// Take returns the underlying descriptor and marks the Handle resolved
// without closing it.
func (h *Handle) Take() int {
	h.done = true
	return h.fd
}

// Close releases the descriptor if it has not already been taken.
func (h *Handle) Close() error {
	if h.done {
		return nil
	}
	h.done = true
	return unix.Close(h.fd)
}

// Handles wraps a batch of raw descriptors as returned by Recv, in the
// order they were received.
type Handles []*Handle

// NewHandles wraps a slice of raw descriptors.
func NewHandles(fds []int) Handles {
	hs := make(Handles, len(fds))
	for i, fd := range fds {
		hs[i] = NewHandle(fd)
	}
	return hs
}

// CloseRemaining closes every Handle in the batch that has not yet been
// taken. Call it on any error path after a partial Take sequence so
// descriptors that were never claimed don't leak.
func (hs Handles) CloseRemaining() {
	for _, h := range hs {
		_ = h.Close()
	}
}
