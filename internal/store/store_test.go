package store

import (
	"context"
	"os"
	"testing"
)

// Exercising AppendAction/Migrate/Open against a real Postgres instance is
// left to integration testing (TARS_TEST_POSTGRES_DSN); this package has no
// logic to unit test beyond connection-string/env resolution, matching the
// teacher's store/pg package, which ships without unit tests for the same
// reason.

func TestDefaultMigrationsDirHonorsEnvOverride(t *testing.T) {
	t.Setenv("TARS_MIGRATIONS_DIR", "/tmp/custom-migrations")
	if got := defaultMigrationsDir(); got != "/tmp/custom-migrations" {
		t.Fatalf("expected env override honored, got %q", got)
	}
}

func TestOpenAndMigrateAgainstLiveDatabase(t *testing.T) {
	dsn := os.Getenv("TARS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TARS_TEST_POSTGRES_DSN not set, skipping live integration test")
	}

	if err := Migrate(dsn, "../../migrations"); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	s, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.AppendAction(ctx, "task_test", "external", "hello"); err != nil {
		t.Fatalf("AppendAction: %v", err)
	}
	if err := s.RecordTaskStarted(ctx, "task_test", "trace_test", "external", "single"); err != nil {
		t.Fatalf("RecordTaskStarted: %v", err)
	}
	if err := s.RecordTaskCompleted(ctx, "task_test", "done", ""); err != nil {
		t.Fatalf("RecordTaskCompleted: %v", err)
	}
	if err := s.SaveProposal(ctx, "prop_test", "fp_test", 3, "desc", "dev task", true, false, "", []string{"task_test"}); err != nil {
		t.Fatalf("SaveProposal: %v", err)
	}
	ids, err := s.ProposalTaskIDs(ctx, "prop_test")
	if err != nil {
		t.Fatalf("ProposalTaskIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != "task_test" {
		t.Fatalf("expected [task_test], got %v", ids)
	}
}
