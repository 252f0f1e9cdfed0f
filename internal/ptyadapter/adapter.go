// Package ptyadapter spawns shell processes attached to a pseudo-terminal
// and exposes write/resize/kill operations plus data/exit callbacks. It is
// the only package in the tree that touches the operating system's PTY
// facility, adapted from the teacher's TerminalSession
// (handler/terminal/terminal.go) and generalized to the data/exit callback
// contract the session manager requires instead of a blocking Read loop
// owned by the caller.
package ptyadapter

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
)

// SessionIdentityEnvVar is the name of the environment variable carrying
// the owning session's ID into the child process, used by hook scripts to
// address the notification endpoint.
const SessionIdentityEnvVar = "TERMHUB_SESSION_ID"

// Opts configures a new Adapter.
type Opts struct {
	Shell     string
	Argv      []string
	Cwd       string
	Cols      int
	Rows      int
	Env       map[string]string
	SessionID string
}

// DataFunc receives raw PTY output bytes. It must be cheap; expensive work
// is the subscriber's problem.
type DataFunc func(data []byte)

// ExitFunc receives the child process's exit code.
type ExitFunc func(code int)

// Adapter owns one PTY-attached child process.
type Adapter struct {
	ptmx    *os.File
	cmd     *exec.Cmd
	usePgrp bool

	mu       sync.Mutex
	closed   bool
	dataFn   DataFunc
	exitFn   ExitFunc
	closeCh  chan struct{}
}

// Spawn forks a child attached to a PTY master. It is the only operation
// whose errors propagate synchronously to the caller; all others are
// logged and swallowed per the design's error-handling rules.
func Spawn(opts Opts) (*Adapter, error) {
	shell := opts.Shell
	if shell == "" {
		shell = os.Getenv("SHELL")
		if shell == "" {
			shell = "/bin/sh"
		}
	}
	cols, rows := opts.Cols, opts.Rows
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}

	cmd := exec.Command(shell, opts.Argv...)
	if opts.Cwd != "" {
		cmd.Dir = opts.Cwd
	}
	cmd.Env = buildEnv(opts.Env, opts.SessionID)

	usePgrp := runtime.GOOS == "linux"
	if usePgrp {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Cols: uint16(cols),
		Rows: uint16(rows),
	})
	if err != nil {
		return nil, fmt.Errorf("spawn pty: %w", err)
	}

	a := &Adapter{
		ptmx:    ptmx,
		cmd:     cmd,
		usePgrp: usePgrp,
		closeCh: make(chan struct{}),
	}
	go a.readLoop()
	go a.waitLoop()
	return a, nil
}

// buildEnv overlays the inherited environment with TERM, COLORTERM and the
// session-identity variable, plus any caller-supplied overrides.
func buildEnv(overlay map[string]string, sessionID string) []string {
	systemEnv := os.Environ()
	override := make(map[string]bool, len(overlay))
	for k := range overlay {
		override[k] = true
	}

	env := make([]string, 0, len(systemEnv)+len(overlay)+3)
	for _, kv := range systemEnv {
		idx := -1
		for i, c := range kv {
			if c == '=' {
				idx = i
				break
			}
		}
		if idx > 0 && !override[kv[:idx]] {
			env = append(env, kv)
		}
	}
	for k, v := range overlay {
		env = append(env, k+"="+v)
	}
	env = append(env, "TERM=xterm-256color", "COLORTERM=truecolor")
	if sessionID != "" {
		env = append(env, SessionIdentityEnvVar+"="+sessionID)
	}
	return env
}

// OnData registers the callback invoked with every chunk of PTY output.
func (a *Adapter) OnData(fn DataFunc) {
	a.mu.Lock()
	a.dataFn = fn
	a.mu.Unlock()
}

// OnExit registers the callback invoked once when the child process exits.
func (a *Adapter) OnExit(fn ExitFunc) {
	a.mu.Lock()
	a.exitFn = fn
	a.mu.Unlock()
}

func (a *Adapter) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := a.ptmx.Read(buf)
		if n > 0 {
			a.mu.Lock()
			fn := a.dataFn
			a.mu.Unlock()
			if fn != nil {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				fn(chunk)
			}
		}
		if err != nil {
			return
		}
	}
}

func (a *Adapter) waitLoop() {
	err := a.cmd.Wait()
	code := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}
	a.mu.Lock()
	a.closed = true
	fn := a.exitFn
	a.mu.Unlock()
	select {
	case <-a.closeCh:
	default:
		close(a.closeCh)
	}
	if fn != nil {
		fn(code)
	}
}

// Write sends bytes to the PTY's input. Errors are logged and swallowed
// per the design's failure semantics for PTY I/O.
func (a *Adapter) Write(data []byte) {
	if _, err := a.ptmx.Write(data); err != nil {
		logrus.WithError(err).Warn("ptyadapter: write failed")
	}
}

// Resize changes the PTY's terminal dimensions. Errors are logged and
// swallowed.
func (a *Adapter) Resize(cols, rows int) {
	if err := pty.Setsize(a.ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)}); err != nil {
		logrus.WithError(err).Warn("ptyadapter: resize failed")
	}
}

// Kill terminates the child process (its process group on Linux) and
// closes the PTY master. Safe to call more than once.
func (a *Adapter) Kill() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()

	_ = a.ptmx.Close()
	if a.cmd.Process != nil {
		pid := a.cmd.Process.Pid
		if a.usePgrp {
			_ = syscall.Kill(-pid, syscall.SIGKILL)
		} else {
			_ = a.cmd.Process.Kill()
		}
	}
}

// Done returns a channel closed once the child process has exited.
func (a *Adapter) Done() <-chan struct{} {
	return a.closeCh
}

