package specialists

import (
	"testing"

	"github.com/ntars/tars/internal/agentloop"
)

func TestAllSpecialistsRegisterDoneAndStuck(t *testing.T) {
	specs := []*Spec{
		NewBrowserSpec(),
		NewCoderSpec(".", nil),
		NewSystemSpec("."),
		NewResearchSpec(),
		NewFileSpec(nil),
		NewScreenSpec(""),
	}
	for _, s := range specs {
		if _, ok := s.Tools.Get("done"); !ok {
			t.Fatalf("%s: missing done tool", s.Name)
		}
		if _, ok := s.Tools.Get("stuck"); !ok {
			t.Fatalf("%s: missing stuck tool", s.Name)
		}
		if s.SystemPrompt == "" {
			t.Fatalf("%s: empty system prompt", s.Name)
		}
	}
}

func TestRejectPrematureDoneEnforcesMinimumActions(t *testing.T) {
	ok, reason := rejectPrematureDone(&agentloop.State{ActionCount: 0, ErrorCount: 0})
	if ok {
		t.Fatalf("expected rejection with zero actions, reason: %s", reason)
	}
}
