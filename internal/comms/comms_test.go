package comms

import "testing"

func TestHandoffIsPopOnce(t *testing.T) {
	h := New()
	h.Handoff("browser", "coder", "logged in, on dashboard", "scrape the table")

	first := h.GetHandoffContext("coder")
	if first == "" {
		t.Fatal("expected handoff text on first read")
	}

	second := h.GetHandoffContext("coder")
	if second == first {
		t.Fatal("expected second read to not repeat the same handoff text")
	}
}

func TestGetHandoffContextFallsBackToScratchpad(t *testing.T) {
	h := New()
	h.WriteScratchpad("login_url", "https://example.com/login", "urls", "research")

	ctx := h.GetHandoffContext("coder")
	if ctx == "" {
		t.Fatal("expected scratchpad summary fallback, got empty string")
	}
}

func TestReadScratchpadByType(t *testing.T) {
	h := New()
	h.WriteScratchpad("a", "1", "facts", "research")
	h.WriteScratchpad("b", "2", "facts", "research")
	h.WriteScratchpad("c", "3", "urls", "browser")

	facts := h.ReadScratchpadByType("facts")
	if len(facts) != 2 {
		t.Fatalf("expected 2 fact entries, got %d", len(facts))
	}
}

func TestReadScratchpadMissingKey(t *testing.T) {
	h := New()
	if _, ok := h.ReadScratchpad("missing"); ok {
		t.Fatal("expected missing key to report not-found")
	}
}

func TestClearWipesEverything(t *testing.T) {
	h := New()
	h.WriteScratchpad("k", "v", "facts", "research")
	h.Handoff("research", "coder", "ctx", "task")
	h.Send("research", "coder", "hello", "info")

	h.Clear()

	if _, ok := h.ReadScratchpad("k"); ok {
		t.Fatal("expected scratchpad cleared")
	}
	if h.GetHandoffContext("coder") != "" {
		t.Fatal("expected handoff cleared")
	}
	if h.ConversationLog() != "No inter-agent communications yet." {
		t.Fatal("expected message log cleared")
	}
}
