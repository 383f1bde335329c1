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

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"

	"github.com/runpd/runpd/internal/logging"
	"github.com/runpd/runpd/internal/metrics"
	"github.com/runpd/runpd/internal/server"
)

var (
	flagParents     bool
	flagSetuid      int
	flagSetgid      int
	flagSetsid      bool
	flagSetpgid     string
	flagNotty       bool
	flagSocketPerm  uint32
	flagMinFDs      int
	flagMetricsBind string
)

func newStartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start PATH",
		Aliases: []string{"serve"},
		Short:   "bind the control socket and accept exec requests",
		Args:    cobra.ExactArgs(1),
		RunE:    runStart,
	}

	cmd.Flags().BoolVar(&flagParents, "parents", false, "create the socket's parent directories")
	cmd.Flags().IntVar(&flagSetuid, "setuid", -1, "drop the daemon's own privileges to this uid before binding")
	cmd.Flags().IntVar(&flagSetgid, "setgid", -1, "drop the daemon's own privileges to this gid before binding")
	cmd.Flags().BoolVar(&flagSetsid, "setsid", false, "make the daemon itself a session leader")
	cmd.Flags().StringVar(&flagSetpgid, "setpgid", "", "make the daemon itself a process group leader (optionally of a given pgid)")
	cmd.Flags().Lookup("setpgid").NoOptDefVal = "0"
	cmd.Flags().BoolVar(&flagNotty, "notty", false, "detach the daemon's own controlling terminal")
	cmd.Flags().Uint32Var(&flagSocketPerm, "socket-perm", 0o660, "permission bits for the control socket")
	cmd.Flags().IntVar(&flagMinFDs, "min-fds", 0, "raise RLIMIT_NOFILE to at least this value (0 to skip)")
	cmd.Flags().StringVar(&flagMetricsBind, "metrics-bind", "", "address to serve Prometheus metrics on (empty disables it)")

	return cmd
}

func runStart(cmd *cobra.Command, args []string) error {
	path := args[0]

	if flagParents {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
	}

	if err := selfConfigure(cmd); err != nil {
		return err
	}

	log := logging.New(logging.ParseLevel(viper.GetString("log-level")), nil).WithField("component", "runpd")

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	if flagMetricsBind != "" {
		go serveMetrics(flagMetricsBind, reg, log)
	}

	srv := server.New(server.Config{
		SocketPath:         path,
		SocketPerm:         os.FileMode(flagSocketPerm),
		MinFileDescriptors: flagMinFDs,
	}, log, m)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return srv.Run(ctx)
}

// selfConfigure applies the daemon's own process-group/session/terminal/
// privilege flags. These target the runpd process itself, not any
// spawned child; they use the same syscalls internal/child's pre-exec
// step does, just inline instead of across a reexec boundary.
func selfConfigure(cmd *cobra.Command) error {
	if cmd.Flags().Changed("setpgid") {
		pgid, err := strconv.Atoi(flagSetpgid)
		if err != nil {
			return err
		}
		if err = unix.Setpgid(0, pgid); err != nil {
			return err
		}
	}

	if flagSetsid {
		if _, err := unix.Setsid(); err != nil {
			return err
		}
	}

	if flagNotty {
		if f, err := os.OpenFile("/dev/tty", os.O_RDWR, 0); err == nil {
			_ = unix.IoctlSetInt(int(f.Fd()), unix.TIOCNOTTY, 0)
			f.Close()
		}
	}

	if flagSetgid >= 0 {
		if err := syscall.Setgid(flagSetgid); err != nil {
			return err
		}
	}

	if flagSetuid >= 0 {
		if err := syscall.Setuid(flagSetuid); err != nil {
			return err
		}
	}

	return nil
}

// serveMetrics exposes reg on addr under /metrics until the process
// exits; the daemon keeps running even if the listener fails to bind.
func serveMetrics(addr string, reg *prometheus.Registry, log *logrus.Entry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	log.WithField("addr", addr).Info("serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Warn("metrics listener stopped")
	}
}
