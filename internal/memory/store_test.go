package memory

import (
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return s
}

func TestSaveUpsertsByKey(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Save(CategoryPreference, "coffee", "black, no sugar"); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if _, err := s.Save(CategoryPreference, "coffee", "oat milk latte"); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	content := s.readFile(s.prefsFile)
	if strings.Count(content, "**coffee**") != 1 {
		t.Fatalf("expected a single coffee entry after upsert, got:\n%s", content)
	}
	if !strings.Contains(content, "oat milk latte") {
		t.Fatalf("expected updated value, got:\n%s", content)
	}
}

func TestRecallFindsSubstringAndTokenMatches(t *testing.T) {
	s := newTestStore(t)
	s.Save(CategoryContext, "project", "working on the tars gateway rewrite")

	if got := s.Recall("gateway rewrite"); strings.Contains(got, "No memories found") {
		t.Fatalf("expected a match, got: %s", got)
	}
	if got := s.Recall("nonexistent query xyz"); !strings.Contains(got, "No memories found") {
		t.Fatalf("expected no match, got: %s", got)
	}
}

func TestDeleteSpecificKey(t *testing.T) {
	s := newTestStore(t)
	s.Save(CategoryPreference, "coffee", "black")
	s.Save(CategoryPreference, "music", "jazz")

	if _, err := s.Delete(string(CategoryPreference), "coffee"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	content := s.readFile(s.prefsFile)
	if strings.Contains(content, "**coffee**") {
		t.Fatalf("expected coffee entry removed, got:\n%s", content)
	}
	if !strings.Contains(content, "**music**") {
		t.Fatalf("expected music entry to survive, got:\n%s", content)
	}
}

func TestDeleteAllWipesEverything(t *testing.T) {
	s := newTestStore(t)
	s.Save(CategoryPreference, "coffee", "black")
	s.Save(CategoryProject, "tars", "rewrite in go")
	s.LogAction("note", "reminder", true, "ok")

	if _, err := s.Delete("all", ""); err != nil {
		t.Fatalf("Delete(all) error: %v", err)
	}

	if strings.Contains(s.readFile(s.prefsFile), "**coffee**") {
		t.Fatal("expected preferences cleared")
	}
	if len(s.readLogEntries()) != 0 {
		t.Fatal("expected history cleared")
	}
}

func TestLogActionAppendsEntry(t *testing.T) {
	s := newTestStore(t)
	s.LogAction("test", "input", true, "result")
	if len(s.readLogEntries()) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(s.readLogEntries()))
	}
}

func TestGetContextSummaryFreshStoreShowsContextOrPlaceholder(t *testing.T) {
	s := newTestStore(t)
	summary := s.GetContextSummary()
	if !strings.Contains(summary, "Current Context") && summary != "_No memory yet._" {
		t.Fatalf("unexpected summary: %s", summary)
	}
}

func TestListAllFiltersByCategory(t *testing.T) {
	s := newTestStore(t)
	s.Save(CategoryPreference, "coffee", "black")

	result := s.ListAll(string(CategoryPreference))
	if !strings.Contains(result.Content, "coffee") {
		t.Fatalf("expected coffee entry in filtered list, got: %s", result.Content)
	}

	empty := s.ListAll(string(CategoryCredential))
	if !strings.Contains(empty.Content, "No credentials") {
		t.Fatalf("expected empty credentials message, got: %s", empty.Content)
	}
}
