// Package proxy owns the reverse-proxy child process and tells it when to
// reload its route table.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"golang.org/x/sys/unix"
)

// Sidecar is a handle to the proxy process. A Sidecar returned by Spawn owns
// the child and reaps it; one returned by Attach only signals it.
type Sidecar struct {
	pid     int
	cmd     *exec.Cmd
	logFile *os.File

	done chan struct{}
	once sync.Once
}

// Spawn starts binary with args, appending stdout and stderr to logPath.
func Spawn(binary string, args []string, logPath string) (*Sidecar, error) {
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open proxy log: %w", err)
	}
	cmd := exec.Command(binary, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("start proxy %s: %w", binary, err)
	}
	s := &Sidecar{
		pid:     cmd.Process.Pid,
		cmd:     cmd,
		logFile: logFile,
		done:    make(chan struct{}),
	}
	go s.wait()
	slog.Info("proxy started", "binary", binary, "pid", s.pid, "log", logPath)
	return s, nil
}

// Attach returns a handle to an already running proxy process.
func Attach(pid int) (*Sidecar, error) {
	if pid <= 0 {
		return nil, fmt.Errorf("invalid proxy pid %d", pid)
	}
	if err := unix.Kill(pid, 0); err != nil {
		return nil, fmt.Errorf("proxy pid %d: %w", pid, err)
	}
	return &Sidecar{pid: pid}, nil
}

func (s *Sidecar) wait() {
	err := s.cmd.Wait()
	s.logFile.Close()
	close(s.done)
	if err != nil {
		slog.Warn("proxy exited", "pid", s.pid, "error", err)
		return
	}
	slog.Info("proxy exited", "pid", s.pid)
}

func (s *Sidecar) Pid() int { return s.pid }

// Done is closed when a spawned proxy exits. It is nil for attached handles.
func (s *Sidecar) Done() <-chan struct{} { return s.done }

func (s *Sidecar) Signal(sig unix.Signal) error {
	if s.done != nil {
		select {
		case <-s.done:
			return fmt.Errorf("proxy pid %d has exited", s.pid)
		default:
		}
	}
	return unix.Kill(s.pid, sig)
}

// Stop sends SIGTERM and, for spawned processes, waits for exit or ctx.
func (s *Sidecar) Stop(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		if sigErr := s.Signal(unix.SIGTERM); sigErr != nil && !errors.Is(sigErr, unix.ESRCH) {
			err = sigErr
			return
		}
		if s.done == nil {
			return
		}
		select {
		case <-s.done:
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}
