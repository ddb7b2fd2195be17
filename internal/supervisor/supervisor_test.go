package supervisor

import (
	"context"
	"testing"
	"time"
)

func TestStatusReportsNotRunningInitially(t *testing.T) {
	s := New(Config{MaxParallel: 2})
	status := s.Status(context.Background())
	if status.Running {
		t.Fatal("expected not running before Start/Adopt")
	}
	if status.MaxParallel != 2 {
		t.Fatalf("expected max_parallel echoed through, got %d", status.MaxParallel)
	}
}

func TestStartSpawnsChildAndStopTerminatesIt(t *testing.T) {
	s := New(Config{BinaryPath: "/bin/sleep", ServeArgs: []string{"30"}})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	status := s.Status(context.Background())
	if !status.Running || status.PID == 0 {
		t.Fatalf("expected a running managed pid, got %+v", status)
	}
	if status.Adopted {
		t.Fatal("a spawned process should not be reported as adopted")
	}

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected a second Start to fail while one is already running")
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !s.Status(context.Background()).Running {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected managed process to exit after Stop")
}

func TestKillOnUnmanagedProcessReturnsError(t *testing.T) {
	s := New(Config{})
	if err := s.Kill(context.Background(), "test"); err == nil {
		t.Fatal("expected an error killing a process that was never started")
	}
}

func TestAdoptFindsNoMatchWithoutProcessName(t *testing.T) {
	s := New(Config{})
	if err := s.Adopt(); err != nil {
		t.Fatalf("Adopt with no ProcessName configured should be a no-op, got: %v", err)
	}
	if s.Status(context.Background()).Running {
		t.Fatal("expected nothing adopted")
	}
}

