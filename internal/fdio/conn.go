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

import (
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// MaxRights bounds the number of file descriptors a single datagram may
// carry. The protocol only ever needs stdin/stdout/stderr, but a generous
// cap keeps a future message kind from silently truncating.
const MaxRights = 16

// MaxDatagram is the largest payload this package will read in one
// recvmsg call. SOCK_SEQPACKET preserves message boundaries, so a buffer
// this size comfortably holds the largest ExecBody the wire package can
// produce without needing a length-prefixed stream.
const MaxDatagram = 64 * 1024

// Conn is a SOCK_SEQPACKET unix socket connection capable of carrying
// file descriptors alongside its datagrams.
type Conn struct {
	uc *net.UnixConn
}

// NewConn wraps an already-established unixpacket connection.
func NewConn(uc *net.UnixConn) *Conn {
	return &Conn{uc: uc}
}

// Dial connects to the control socket at path.
func Dial(path string) (*Conn, error) {
	addr := &net.UnixAddr{Name: path, Net: "unixpacket"}

	uc, err := net.DialUnix("unixpacket", nil, addr)
	if err != nil {
		return nil, ErrorDial.Error(err)
	}

	return &Conn{uc: uc}, nil
}

// Listener accepts incoming SOCK_SEQPACKET connections on a bound path.
type Listener struct {
	ul   *net.UnixListener
	path string
}

// Listen binds the control socket at path with the given permissions.
func Listen(path string, perm os.FileMode) (*Listener, error) {
	addr := &net.UnixAddr{Name: path, Net: "unixpacket"}

	_ = os.Remove(path)

	ul, err := net.ListenUnix("unixpacket", addr)
	if err != nil {
		return nil, ErrorListen.Error(err)
	}

	if err = os.Chmod(path, perm); err != nil {
		_ = ul.Close()
		return nil, ErrorListen.Error(err)
	}

	return &Listener{ul: ul, path: path}, nil
}

// Accept waits for and returns the next connection.
func (l *Listener) Accept() (*Conn, error) {
	uc, err := l.ul.AcceptUnix()
	if err != nil {
		return nil, ErrorAccept.Error(err)
	}

	return &Conn{uc: uc}, nil
}

// Close stops accepting new connections and removes the socket file.
func (l *Listener) Close() error {
	err := l.ul.Close()
	_ = os.Remove(l.path)
	return err
}

// Addr returns the bound socket path.
func (l *Listener) Addr() string {
	return l.path
}

// Send writes a single datagram, optionally carrying rights (open file
// descriptors) as SCM_RIGHTS ancillary data. Send never closes rights;
// the caller still owns them once Send returns.
func (c *Conn) Send(data []byte, rights []int) error {
	if len(rights) > MaxRights {
		return ErrorTooManyRights.Error(nil)
	}

	var oob []byte
	if len(rights) > 0 {
		oob = unix.UnixRights(rights...)
	}

	raw, err := c.uc.SyscallConn()
	if err != nil {
		return ErrorSend.Error(err)
	}

	var sendErr error
	ctrlErr := raw.Write(func(fd uintptr) bool {
		sendErr = unix.Sendmsg(int(fd), data, oob, nil, 0)
		return sendErr != unix.EAGAIN
	})
	if ctrlErr != nil {
		return ErrorSend.Error(ctrlErr)
	}
	if sendErr != nil {
		return ErrorSend.Error(sendErr)
	}

	return nil
}

// Recv reads a single datagram and returns any rights received alongside
// it. Received descriptors are already marked close-on-exec; Linux gives
// us no MSG_CMSG_CLOEXEC from Go's net package, so Recv fixes each fd up
// by hand right after recvmsg returns, the same window the kernel flag
// would close.
func (c *Conn) Recv() (data []byte, rights []int, err error) {
	buf := make([]byte, MaxDatagram)
	oob := make([]byte, unix.CmsgSpace(MaxRights*4))

	raw, err := c.uc.SyscallConn()
	if err != nil {
		return nil, nil, ErrorReceive.Error(err)
	}

	var n, oobn int
	var recvErr error
	ctrlErr := raw.Read(func(fd uintptr) bool {
		n, oobn, _, _, recvErr = unix.Recvmsg(int(fd), buf, oob, 0)
		return recvErr != unix.EAGAIN
	})
	if ctrlErr != nil {
		return nil, nil, ErrorReceive.Error(ctrlErr)
	}
	if recvErr != nil {
		return nil, nil, ErrorReceive.Error(recvErr)
	}

	rights, err = parseRights(oob[:oobn])
	if err != nil {
		return nil, nil, err
	}

	return buf[:n], rights, nil
}

func parseRights(oob []byte) ([]int, error) {
	if len(oob) == 0 {
		return nil, nil
	}

	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, ErrorReceive.Error(err)
	}

	var rights []int
	for i := range msgs {
		fds, err := unix.ParseUnixRights(&msgs[i])
		if err != nil {
			continue
		}

		for _, fd := range fds {
			unix.CloseOnExec(fd)
			rights = append(rights, fd)
		}
	}

	if len(rights) > MaxRights {
		for _, fd := range rights {
			_ = unix.Close(fd)
		}
		return nil, ErrorTooManyRights.Error(nil)
	}

	return rights, nil
}

// CloseRead shuts down the read half of the connection, per spec: once a
// ProcessResult has been sent, the server never reads from this
// connection again but keeps the write half open long enough to flush it.
func (c *Conn) CloseRead() error {
	if err := c.uc.CloseRead(); err != nil {
		return ErrorSend.Error(err)
	}
	return nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.uc.Close()
}

// File returns a duplicated *os.File backing this connection, useful for
// handing the connection's descriptor across a self-reexec.
func (c *Conn) File() (*os.File, error) {
	return c.uc.File()
}
