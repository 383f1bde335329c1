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

package server

import (
	"context"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/runpd/runpd/internal/conn"
	"github.com/runpd/runpd/internal/fdio"
	"github.com/runpd/runpd/internal/metrics"
	"github.com/runpd/runpd/internal/reaper"
	"github.com/runpd/runpd/ioutils/fileDescriptor"
)

// Config is everything the accept loop needs to bind and run the
// control socket.
type Config struct {
	SocketPath string
	SocketPerm os.FileMode

	// MinFileDescriptors is the soft RLIMIT_NOFILE this server asks for
	// before accepting connections; 0 skips the raise attempt entirely.
	MinFileDescriptors int
}

// Server owns the listener and reaper for one control socket. The zero
// value is not usable; build one with New.
type Server struct {
	cfg     Config
	log     *logrus.Entry
	metrics *metrics.Metrics

	listener *fdio.Listener
	reaper   *reaper.Reaper
	wg       sync.WaitGroup
}

// New builds a Server. m may be nil; every metrics call becomes a no-op.
func New(cfg Config, log *logrus.Entry, m *metrics.Metrics) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}

	return &Server{
		cfg:     cfg,
		log:     log,
		metrics: m,
		reaper:  reaper.New(),
	}
}

// Run binds the control socket, starts the reaper, and accepts
// connections until ctx is cancelled. It always attempts to unlink the
// socket file before returning, whether ctx was cancelled or an accept
// error forced an early exit.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.MinFileDescriptors > 0 {
		cur, max, err := fileDescriptor.SystemFileDescriptor(s.cfg.MinFileDescriptors)
		if err != nil {
			s.log.WithError(ErrorRaiseLimit.Error(err)).Warn("failed to raise file descriptor limit")
		} else {
			s.log.WithFields(logrus.Fields{"current": cur, "max": max}).Debug("file descriptor limit")
		}
	}

	l, err := fdio.Listen(s.cfg.SocketPath, s.cfg.SocketPerm)
	if err != nil {
		return ErrorListen.Error(err)
	}
	s.listener = l
	defer l.Close()

	s.reaper.Start()
	defer s.reaper.Stop()

	s.log.WithField("path", s.cfg.SocketPath).Info("server started")

	acceptErrCh := make(chan error, 1)
	go s.acceptLoop(acceptErrCh)

	select {
	case <-ctx.Done():
		s.log.Info("shutting down")
	case err := <-acceptErrCh:
		s.log.WithError(err).Error("accept loop terminated")
		s.wg.Wait()
		return err
	}

	_ = l.Close()
	s.wg.Wait()

	return nil
}

func (s *Server) acceptLoop(errCh chan<- error) {
	for {
		c, err := s.listener.Accept()
		if err != nil {
			errCh <- err
			return
		}

		s.wg.Add(1)
		go s.serve(c)
	}
}

func (s *Server) serve(c *fdio.Conn) {
	defer s.wg.Done()
	defer c.Close()

	id := uuid.NewString()
	log := s.log.WithField("conn_id", id)

	hooks := &conn.Hooks{
		OnSpawned:     s.metrics.Spawned,
		OnSpawnFailed: s.metrics.SpawnFailed,
		OnReaped:      s.metrics.Reaped,
	}

	s.metrics.Accepted()
	defer s.metrics.Closed()

	if err := conn.Handle(c, s.reaper, log, hooks); err != nil {
		log.WithError(err).Warn("connection ended with a transport error")
	}
}
