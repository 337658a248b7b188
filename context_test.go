package txserver

import (
	"strings"
	"testing"
	"time"
)

func TestDeadCheck(t *testing.T) {
	opCtx := NewOperationContextWithDeadline(time.Hour)
	if iss := opCtx.DeadCheck("start"); iss != nil {
		t.Fatalf("fresh context should not be expired: %v", iss)
	}

	expired := NewOperationContextWithDeadline(time.Nanosecond)
	time.Sleep(time.Millisecond)
	iss := expired.DeadCheck("loop")
	if iss == nil {
		t.Fatal("expired context should fail the dead check")
	}
	if iss.Code != IssueTypeTooCostly {
		t.Errorf("Code = %s, want too-costly", iss.Code)
	}
	if !strings.Contains(iss.Diagnostics, "loop") {
		t.Errorf("diagnostics should name the place: %q", iss.Diagnostics)
	}
}

func TestSeeContextCycle(t *testing.T) {
	opCtx := NewOperationContext()
	if iss := opCtx.SeeContext("http://example.org/vs/a"); iss != nil {
		t.Fatalf("first entry should succeed: %v", iss)
	}
	if iss := opCtx.SeeContext("http://example.org/vs/b"); iss != nil {
		t.Fatalf("distinct entry should succeed: %v", iss)
	}

	iss := opCtx.SeeContext("http://example.org/vs/a")
	if iss == nil {
		t.Fatal("re-entry should fail")
	}
	if iss.Code != IssueTypeBusinessRule {
		t.Errorf("Code = %s, want business-rule", iss.Code)
	}
	// The diagnostics carry the cycle path.
	if !strings.Contains(iss.Diagnostics, "vs/a -> ") && !strings.Contains(iss.Diagnostics, "vs/b") {
		t.Errorf("diagnostics should carry the cycle path: %q", iss.Diagnostics)
	}

	opCtx.LeaveContext("http://example.org/vs/a")
	if iss := opCtx.SeeContext("http://example.org/vs/a"); iss != nil {
		t.Errorf("after leaving, re-entry should succeed: %v", iss)
	}
}

func TestCopySharesDeadlineAndStack(t *testing.T) {
	parent := NewOperationContextWithDeadline(time.Hour)
	parent.Languages = []string{"de", "en"}
	if iss := parent.SeeContext("http://example.org/vs/outer"); iss != nil {
		t.Fatal(iss)
	}

	child := parent.Copy()
	if child.RequestID != parent.RequestID {
		t.Error("copy should share the request id")
	}
	if !child.Deadline().Equal(parent.Deadline()) {
		t.Error("copy should share the deadline")
	}
	// The child sees the parent's evaluation stack: recursive imports must
	// detect cycles across copies.
	if iss := child.SeeContext("http://example.org/vs/outer"); iss == nil {
		t.Error("copy should share the context stack")
	}

	// Diagnostics stay local to each context.
	child.Log("child detail %d", 1)
	if len(parent.LogEntries()) != 0 {
		t.Error("parent should not see child log entries")
	}
}

func TestForkIsolatesStack(t *testing.T) {
	parent := NewOperationContextWithDeadline(time.Hour)
	parent.Languages = []string{"en"}
	if iss := parent.SeeContext("http://example.org/vs/shared"); iss != nil {
		t.Fatal(iss)
	}

	fork := parent.Fork()
	if fork.RequestID != parent.RequestID {
		t.Error("fork should keep the request id")
	}
	if !fork.Deadline().Equal(parent.Deadline()) {
		t.Error("fork should keep the deadline")
	}
	// An independent operation starts with a fresh evaluation stack:
	// entering a url the parent holds is not a cycle.
	if iss := fork.SeeContext("http://example.org/vs/shared"); iss != nil {
		t.Errorf("fork should not share the evaluation stack: %v", iss)
	}
	// And the fork's entries stay invisible to the parent.
	parent.LeaveContext("http://example.org/vs/shared")
	if iss := parent.SeeContext("http://example.org/vs/shared"); iss != nil {
		t.Errorf("parent stack should be unaffected by the fork: %v", iss)
	}
}

func TestMarkPhase(t *testing.T) {
	opCtx := NewOperationContext()
	opCtx.MarkPhase("parse")
	opCtx.MarkPhase("evaluate")
	timings := opCtx.Timings()
	if len(timings) != 2 {
		t.Fatalf("timings = %d, want 2", len(timings))
	}
	if timings[0].Place != "parse" || timings[1].Place != "evaluate" {
		t.Errorf("places = %s, %s", timings[0].Place, timings[1].Place)
	}
}
