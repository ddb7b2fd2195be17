package streamparser

import (
	"sync"
	"testing"
	"time"
)

func collectOne(mergeWindow time.Duration) (*Parser, *Batch, *sync.WaitGroup) {
	var wg sync.WaitGroup
	wg.Add(1)
	var got Batch
	p := New(mergeWindow, func(b Batch) {
		got = b
		wg.Done()
	})
	return p, &got, &wg
}

func TestSingleMessageEmitsSingleBatch(t *testing.T) {
	p, got, wg := collectOne(20 * time.Millisecond)
	p.Ingest("what's the weather", "external")
	wg.Wait()

	if got.BatchType != BatchSingle {
		t.Fatalf("expected single, got %s", got.BatchType)
	}
	if got.MergedText != "what's the weather" {
		t.Fatalf("unexpected merged text: %q", got.MergedText)
	}
}

func TestCorrectionMerge(t *testing.T) {
	p, got, wg := collectOne(50 * time.Millisecond)
	p.Ingest("book a flight toronto to london march 15", "external")
	p.Ingest("actually make it amsterdam", "external")
	wg.Wait()

	if got.BatchType != BatchCorrection {
		t.Fatalf("expected correction, got %s", got.BatchType)
	}
	if !contains(got.MergedText, "amsterdam") || !contains(got.MergedText, "toronto") {
		t.Fatalf("expected merged text to reference both messages, got %q", got.MergedText)
	}
}

func TestAdditionMerge(t *testing.T) {
	p, got, wg := collectOne(50 * time.Millisecond)
	p.Ingest("remind me to call mom", "external")
	p.Ingest("also water the plants", "external")
	wg.Wait()

	if got.BatchType != BatchAddition {
		t.Fatalf("expected addition, got %s", got.BatchType)
	}
	if !contains(got.MergedText, "call mom") || !contains(got.MergedText, "water the plants") {
		t.Fatalf("expected both tasks in merged text, got %q", got.MergedText)
	}
}

func TestAdditionMergeKeepsMiddleMessages(t *testing.T) {
	p, got, wg := collectOne(50 * time.Millisecond)
	p.Ingest("remind me to call mom", "external")
	p.Ingest("pick up groceries on the way home", "external")
	p.Ingest("also water the plants", "external")
	wg.Wait()

	if got.BatchType != BatchAddition {
		t.Fatalf("expected addition, got %s", got.BatchType)
	}
	for _, want := range []string{"call mom", "groceries", "water the plants"} {
		if !contains(got.MergedText, want) {
			t.Fatalf("expected %q in merged text, got %q", want, got.MergedText)
		}
	}
}

func TestMultiTaskSplitsOnConnective(t *testing.T) {
	p, got, wg := collectOne(20 * time.Millisecond)
	p.Ingest("email the team then schedule the meeting", "external")
	wg.Wait()

	if got.BatchType != BatchMultiTask {
		t.Fatalf("expected multi_task, got %s", got.BatchType)
	}
	if len(got.IndividualTasks) != 2 {
		t.Fatalf("expected 2 individual tasks, got %v", got.IndividualTasks)
	}
}

func TestForceFlushEmptiesBufferImmediately(t *testing.T) {
	var got Batch
	var called bool
	p := New(time.Hour, func(b Batch) {
		got = b
		called = true
	})
	p.Ingest("shutting down now", "dev")
	p.ForceFlush()

	if !called {
		t.Fatal("expected ForceFlush to emit synchronously")
	}
	if got.MergedText != "shutting down now" {
		t.Fatalf("unexpected merged text: %q", got.MergedText)
	}
}

func TestForceFlushNoOpOnEmptyWindow(t *testing.T) {
	called := false
	p := New(time.Hour, func(b Batch) { called = true })
	p.ForceFlush()
	if called {
		t.Fatal("expected ForceFlush to be a no-op on an empty window")
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (haystack == needle || indexOf(haystack, needle) >= 0)
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
