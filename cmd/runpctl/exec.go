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
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/runpd/runpd/internal/child"
	"github.com/runpd/runpd/internal/clientrun"
	"github.com/runpd/runpd/internal/fdio"
	"github.com/runpd/runpd/internal/logging"
	"github.com/runpd/runpd/internal/sigpump"
	"github.com/runpd/runpd/internal/wire"
)

var (
	execConnect  string
	execEnv      []string
	execCwd      string
	execSetuid   int
	execSetgid   int
	execSetsid   bool
	execSetpgid  string
	execNotty    bool
	execDeathsig string
)

func newExecCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec [flags] -- PROGRAM [ARGS...]",
		Short: "run a program, directly or through a runpd daemon",
		RunE:  runExec,
	}

	cmd.Flags().StringVar(&execConnect, "connect", "", "control socket to drive the program through (empty execs directly)")
	cmd.Flags().StringArrayVarP(&execEnv, "env", "e", nil, "NAME=VALUE, repeatable; any use replaces the inherited environment")
	cmd.Flags().StringVarP(&execCwd, "chdir", "w", "", "working directory for the program")
	cmd.Flags().IntVar(&execSetuid, "setuid", -1, "uid to switch to before exec")
	cmd.Flags().IntVar(&execSetgid, "setgid", -1, "gid to switch to before exec")
	cmd.Flags().BoolVar(&execSetsid, "setsid", false, "start the program as a session leader")
	cmd.Flags().StringVar(&execSetpgid, "setpgid", "", "start the program as leader of (or joining) a process group")
	cmd.Flags().Lookup("setpgid").NoOptDefVal = "0"
	cmd.Flags().BoolVar(&execNotty, "notty", false, "detach the program's controlling terminal")
	cmd.Flags().StringVar(&execDeathsig, "deathsig", "SIGKILL", "signal (name or number) delivered to the program if its parent dies")

	return cmd
}

func runExec(cmd *cobra.Command, args []string) error {
	dash := cmd.Flags().ArgsLenAtDash()
	var program string
	var programArgs []string

	if dash >= 0 && dash < len(args) {
		program = args[dash]
		programArgs = args[dash+1:]
	} else if len(args) > 0 {
		program = args[0]
		programArgs = args[1:]
	}

	if program == "" {
		return nil
	}

	deathsig, err := parseSignal(execDeathsig)
	if err != nil {
		return err
	}

	var pgid int32
	hasPgid := cmd.Flags().Changed("setpgid")
	if hasPgid {
		v, err := strconv.Atoi(execSetpgid)
		if err != nil {
			return err
		}
		pgid = int32(v)
	}

	if execConnect == "" {
		spec := child.Spec{
			Program:             program,
			Argv:                programArgs,
			Cwd:                 execCwd,
			Env:                 execEnv,
			ProcessGroup:        hasPgid,
			Session:             execSetsid,
			DetachTerminal:      execNotty,
			ControllingTerminal: false,
			Pgid:                pgid,
			Uid:                 int32(execSetuid),
			Gid:                 int32(execSetgid),
			Deathsig:            deathsig,
			ParentPid:           os.Getppid(),
		}

		err := child.ExecDirect(spec)
		fmt.Fprintln(os.Stderr, color.RedString("runpctl: %v", err))
		os.Exit(clientrun.ExitSpawnFailed)
		return nil
	}

	return runConnected(program, programArgs, pgid, hasPgid, deathsig)
}

func runConnected(program string, programArgs []string, pgid int32, hasPgid bool, deathsig int32) error {
	c, err := fdio.Dial(execConnect)
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("runpctl: %v", err))
		os.Exit(clientrun.ExitServerUnreachable)
		return nil
	}
	defer c.Close()

	pump := sigpump.New()
	defer pump.Close()

	startup := wire.NewStartupFlags()
	if hasPgid {
		startup.Set(wire.StartupProcessGroup)
	}
	if execSetsid {
		startup.Set(wire.StartupSession)
	}
	if execNotty {
		startup.Set(wire.StartupDetachTerminal)
	}

	ioFlags := wire.NewIOFlags()
	ioFlags.Set(wire.IOIn)
	ioFlags.Set(wire.IOOut)
	ioFlags.Set(wire.IOErr)

	body := wire.ExecBody{
		Program:      program,
		Argv:         programArgs,
		Cwd:          execCwd,
		Env:          splitEnv(execEnv),
		StartupFlags: startup,
		IOFlags:      ioFlags,
		Pgid:         pgid,
		Uid:          int32(execSetuid),
		Gid:          int32(execSetgid),
		Deathsig:     deathsig,
		Connsig:      int32(syscall.SIGKILL),
	}

	sp, hangup, err := clientrun.Exec(c, body, []int{0, 1, 2})
	if hangup {
		os.Exit(clientrun.ExitHangup)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("runpctl: %v", err))
		os.Exit(clientrun.ExitServerUnreachable)
	}
	if !sp.Success {
		fmt.Fprintln(os.Stderr, color.RedString("runpctl: %s", sp.Message))
		os.Exit(clientrun.ExitSpawnFailed)
	}

	log := logging.New(logging.InfoLevel, os.Stderr).WithField("component", "runpctl")
	os.Exit(clientrun.Run(c, pump, log))

	return nil
}

func splitEnv(pairs []string) []wire.EnvVar {
	out := make([]wire.EnvVar, 0, len(pairs))
	for _, p := range pairs {
		name, value, _ := strings.Cut(p, "=")
		out = append(out, wire.EnvVar{Name: name, Value: value})
	}
	return out
}
