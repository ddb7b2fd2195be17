// Package supervisor implements the Process Supervisor (spec.md §4.13): it
// detects an already-running TARS instance by scanning the process table,
// adopts it if found, otherwise can spawn one, and exposes a uniform
// start/stop/kill/restart surface over OS signals regardless of which path
// produced the managed PID. It also runs a small local control server other
// host processes (a CLI, a menubar helper) can use to query status.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/ntars/tars/pkg/protocol"
)

const (
	restartMaxAttempts = 10
	restartDelay       = 5 * time.Second
)

// Config wires the Supervisor's dependencies.
type Config struct {
	// BinaryPath is the executable to spawn for Start, typically the
	// currently running binary's own path (os.Args[0] resolved).
	BinaryPath string
	// ServeArgs are the arguments passed to BinaryPath on Start, e.g.
	// []string{"serve"}.
	ServeArgs []string
	// ProcessName is the executable basename go-ps reports for an
	// externally started instance to adopt, e.g. "tarsd".
	ProcessName string
	MaxParallel int
	// OnNotify delivers a one-shot owner notification on crash/restart
	// (spec.md §4.13's self-healing: auto-restart with owner notice).
	OnNotify func(text string)
}

// Supervisor manages a single TARS OS process, whether it was spawned by
// Start or discovered and adopted via Adopt.
type Supervisor struct {
	cfg Config

	mu           sync.Mutex
	cmd          *exec.Cmd
	pid          int
	adopted      bool
	startedAt    time.Time
	restartCount int
	activeTasks  func() int
}

// New creates a Supervisor. Call Adopt once at startup before Start, so a
// pre-existing instance is picked up instead of duplicated.
func New(cfg Config) *Supervisor {
	return &Supervisor{cfg: cfg}
}

// SetActiveTasksFunc wires a poll for the dispatcher's current in-flight
// task count, surfaced in Status. Optional.
func (s *Supervisor) SetActiveTasksFunc(f func() int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeTasks = f
}

// TrackSelf registers the current process as the managed instance, for the
// common case where the Supervisor runs inside the very engine process it
// reports on (as opposed to watching an externally spawned/adopted one). A
// later Restart still spawns a genuine replacement process via Start.
func (s *Supervisor) TrackSelf() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pid = os.Getpid()
	s.adopted = true
	s.startedAt = time.Now()
}

// Adopt scans the process table for an externally started instance
// matching cfg.ProcessName and, if found, adopts it instead of spawning a
// new one. It is not an error for no match to be found.
func (s *Supervisor) Adopt() error {
	if s.cfg.ProcessName == "" {
		return nil
	}
	procs, err := ps.Processes()
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}

	self := os.Getpid()
	for _, p := range procs {
		if p.Pid() == self || p.Pid() == os.Getppid() {
			continue
		}
		if p.Executable() != s.cfg.ProcessName {
			continue
		}
		s.mu.Lock()
		s.pid = p.Pid()
		s.adopted = true
		s.startedAt = time.Now()
		s.mu.Unlock()
		slog.Info("supervisor: adopted existing process", "pid", p.Pid())
		return nil
	}
	return nil
}

// Start spawns a new child process if none is currently managed.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.pid != 0 {
		s.mu.Unlock()
		return fmt.Errorf("already running (pid %d)", s.pid)
	}
	s.mu.Unlock()

	if s.cfg.BinaryPath == "" {
		return fmt.Errorf("no binary path configured")
	}

	cmd := exec.Command(s.cfg.BinaryPath, s.cfg.ServeArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.pid = cmd.Process.Pid
	s.adopted = false
	s.startedAt = time.Now()
	s.mu.Unlock()

	slog.Info("supervisor: started child process", "pid", cmd.Process.Pid)
	go s.wait(cmd)
	return nil
}

func (s *Supervisor) wait(cmd *exec.Cmd) {
	err := cmd.Wait()

	s.mu.Lock()
	pid := s.pid
	wasManaged := s.cmd == cmd
	if wasManaged {
		s.pid = 0
		s.cmd = nil
	}
	s.mu.Unlock()

	if !wasManaged {
		return // superseded by a later Start/Restart
	}
	if err == nil {
		return // clean exit, e.g. a deliberate Stop
	}
	slog.Warn("supervisor: child process exited unexpectedly", "pid", pid, "error", err)
	s.maybeRestart()
}

func (s *Supervisor) maybeRestart() {
	s.mu.Lock()
	if s.restartCount >= restartMaxAttempts {
		attempts := s.restartCount
		s.mu.Unlock()
		slog.Error("supervisor: restart attempts exhausted, giving up", "attempts", attempts)
		if s.cfg.OnNotify != nil {
			s.cfg.OnNotify(fmt.Sprintf("tars crashed %d times and hit the restart limit; not restarting again", attempts))
		}
		return
	}
	s.restartCount++
	attempt := s.restartCount
	s.mu.Unlock()

	time.Sleep(restartDelay)
	if err := s.Start(context.Background()); err != nil {
		slog.Error("supervisor: automatic restart failed", "attempt", attempt, "error", err)
		return
	}
	if s.cfg.OnNotify != nil {
		s.cfg.OnNotify("tars crashed and was automatically restarted")
	}
}

// Stop asks the managed process to shut down gracefully.
func (s *Supervisor) Stop(ctx context.Context) error {
	if err := s.signal(syscall.SIGTERM); err != nil {
		return err
	}
	s.clearIfSelfTracked()
	return nil
}

// clearIfSelfTracked drops the tracked pid immediately for a TrackSelf'd
// instance: there is no child exec.Cmd whose wait() goroutine will ever
// clear it, since the signaled process is this one.
func (s *Supervisor) clearIfSelfTracked() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		s.pid = 0
		s.adopted = false
	}
}

// Kill forcibly terminates the managed process. reason is logged only; the
// cooperative in-process kill switch is a separate mechanism the Brain's
// agent loops watch directly.
func (s *Supervisor) Kill(ctx context.Context, reason string) error {
	slog.Info("supervisor: kill requested", "reason", reason)
	if err := s.signal(syscall.SIGKILL); err != nil {
		return err
	}
	s.clearIfSelfTracked()
	return nil
}

// Restart stops then starts the managed process.
func (s *Supervisor) Restart(ctx context.Context) error {
	if s.pidSet() {
		if err := s.Stop(ctx); err != nil {
			return fmt.Errorf("stop: %w", err)
		}
		s.awaitExit(5 * time.Second)
	}
	s.mu.Lock()
	s.restartCount = 0
	s.mu.Unlock()
	return s.Start(ctx)
}

func (s *Supervisor) pidSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pid != 0
}

func (s *Supervisor) awaitExit(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !s.pidSet() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (s *Supervisor) signal(sig syscall.Signal) error {
	s.mu.Lock()
	pid := s.pid
	s.mu.Unlock()
	if pid == 0 {
		return fmt.Errorf("no process running")
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(sig); err != nil {
		return fmt.Errorf("signal %d: %w", pid, err)
	}
	return nil
}

// Status reports the managed process's current state.
func (s *Supervisor) Status(ctx context.Context) protocol.ProcessStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := 0
	if s.activeTasks != nil {
		active = s.activeTasks()
	}
	var startedAt string
	if s.pid != 0 {
		startedAt = s.startedAt.Format(time.RFC3339)
	}
	return protocol.ProcessStatus{
		Running:      s.pid != 0,
		PID:          s.pid,
		Adopted:      s.adopted,
		StartedAt:    startedAt,
		ActiveTasks:  active,
		MaxParallel:  s.cfg.MaxParallel,
		RestartCount: s.restartCount,
	}
}
