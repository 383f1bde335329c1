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

// Package conn drives one accepted connection from request parsing
// through spawn, signal relay and final result, per connection state
// machine:
//
//	Start --recv(header)--> Parsed
//	Parsed(Stop)          --> send SIGINT to self --> Terminal
//	Parsed(Exec)          --recvfds(body+stdio)--> Spawning
//	Spawning (Ok child)   --send StartedProcess(success)--> Running
//	Spawning (Err e)      --send StartedProcess(failure, errno=e)--> Terminal
//	Running               --select(child_exit, client_recv)--> ...
//	Terminal
//
// Running is implemented as a plain Go select over two channels: the
// reaper's exit notification for this pid, and the result of the next
// Recv on the control socket, re-armed after each client datagram so
// neither source starves the other.
package conn
