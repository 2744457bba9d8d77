package deliberation

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func newTestModerator(client *stubLLM) *Moderator {
	return NewModerator(client, defaultConfig())
}

func TestParseProposal(t *testing.T) {
	resp := `DECISION: iterate
REASONING: The second step contradicts the material.
FEEDBACK: Fix the gradient direction in step 2.
CONVERGENCE_SCORE: 0.55`

	d, err := parseProposal(resp)
	if err != nil {
		t.Fatalf("parseProposal error: %v", err)
	}
	if d.Outcome != OutcomeIterate {
		t.Fatalf("expected iterate, got %s", d.Outcome)
	}
	if d.Feedback != "Fix the gradient direction in step 2." {
		t.Fatalf("unexpected feedback: %q", d.Feedback)
	}
	if d.ConvergenceScore != 0.55 {
		t.Fatalf("unexpected score: %v", d.ConvergenceScore)
	}
}

func TestParseProposalMissingDecision(t *testing.T) {
	if _, err := parseProposal("REASONING: looks fine to me"); err == nil {
		t.Fatal("expected error for missing DECISION line")
	}
	if _, err := parseProposal("DECISION: ship it"); err == nil {
		t.Fatal("expected error for unrecognized decision")
	}
}

func TestParseProposalFeedbackNone(t *testing.T) {
	d, err := parseProposal("DECISION: converged\nFEEDBACK: none\nCONVERGENCE_SCORE: 0.92")
	if err != nil {
		t.Fatalf("parseProposal error: %v", err)
	}
	if d.Feedback != "" {
		t.Fatalf("expected empty feedback, got %q", d.Feedback)
	}
}

func TestApplyOverrides(t *testing.T) {
	m := newTestModerator(nil)

	tests := []struct {
		name     string
		proposal Outcome
		tally    SeverityTally
		round    int
		max      int
		want     Outcome
	}{
		{"clean round converges regardless of proposal", OutcomeIterate, SeverityTally{}, 1, 3, OutcomeConverged},
		{"single medium still converges", OutcomeIterate, SeverityTally{Medium: 1}, 1, 3, OutcomeConverged},
		{"two mediums keep iterating", OutcomeIterate, SeverityTally{Medium: 2}, 1, 3, OutcomeIterate},
		{"converged proposal with critical demotes to iterate", OutcomeConverged, SeverityTally{Critical: 1}, 1, 3, OutcomeIterate},
		{"converged proposal with critical at round limit escalates", OutcomeConverged, SeverityTally{Critical: 1}, 3, 3, OutcomeEscalation},
		{"critical count at threshold escalates", OutcomeIterate, SeverityTally{Critical: 2}, 1, 3, OutcomeEscalation},
		{"critical count at threshold escalates even if proposal converged", OutcomeConverged, SeverityTally{Critical: 3}, 1, 3, OutcomeEscalation},
		{"iterate at round limit aborts", OutcomeIterate, SeverityTally{High: 1}, 3, 3, OutcomeDeadlock},
		{"iterate with rounds left stands", OutcomeIterate, SeverityTally{High: 1}, 2, 3, OutcomeIterate},
		{"zero issues at single round limit converges", OutcomeIterate, SeverityTally{}, 1, 1, OutcomeConverged},
		{"one critical at single round limit escalates", OutcomeConverged, SeverityTally{Critical: 1}, 1, 1, OutcomeEscalation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.applyOverrides(&Decision{Outcome: tt.proposal}, tt.tally, tt.round, tt.max)
			if got.Outcome != tt.want {
				t.Fatalf("got %s, want %s", got.Outcome, tt.want)
			}
		})
	}
}

func TestNeverConvergedWithCritical(t *testing.T) {
	m := newTestModerator(nil)
	for round := 1; round <= 3; round++ {
		for critical := 1; critical <= 4; critical++ {
			for _, proposal := range []Outcome{OutcomeConverged, OutcomeIterate, OutcomeEscalation, OutcomeDeadlock} {
				got := m.applyOverrides(&Decision{Outcome: proposal}, SeverityTally{Critical: critical}, round, 3)
				if got.Outcome == OutcomeConverged {
					t.Fatalf("converged with %d critical issues (round %d, proposal %s)", critical, round, proposal)
				}
			}
		}
	}
}

func TestDecideProposalFailureAborts(t *testing.T) {
	m := newTestModerator(&stubLLM{err: errors.New("model unavailable")})
	state := &WorkflowState{
		Query: Query{Text: "q"},
		Round: 1,
		Draft: newDraft("answer", nil),
	}
	d := m.Decide(context.Background(), state, 3)
	if d.Outcome != OutcomeDeadlock {
		t.Fatalf("expected abort_deadlock on proposal failure, got %s", d.Outcome)
	}
}

func TestDecideFillsIterateFeedback(t *testing.T) {
	m := newTestModerator(&stubLLM{response: "DECISION: iterate\nCONVERGENCE_SCORE: 0.4"})
	state := &WorkflowState{
		Query: Query{Text: "q"},
		Round: 1,
		Draft: newDraft("answer", nil),
		Issues: []Issue{
			{Type: IssueLogicFlaw, Severity: SeverityHigh, Description: "step 2 does not follow"},
			{Type: IssueFactContradiction, Severity: SeverityLow, Description: "minor date slip"},
		},
	}
	d := m.Decide(context.Background(), state, 3)
	if d.Outcome != OutcomeIterate {
		t.Fatalf("expected iterate, got %s", d.Outcome)
	}
	if !strings.Contains(d.Feedback, "step 2 does not follow") {
		t.Fatalf("feedback should carry the high issue, got %q", d.Feedback)
	}
	if strings.Contains(d.Feedback, "minor date slip") {
		t.Fatalf("low issue should not appear in feedback, got %q", d.Feedback)
	}
}

func TestPrioritizedFeedbackFallsBackToMedium(t *testing.T) {
	fb := prioritizedFeedback([]Issue{
		{Severity: SeverityMedium, Description: "clarify the learning rate"},
		{Severity: SeverityMedium, Description: "cite the source for step 3"},
		{Severity: SeverityLow, Description: "typo"},
	})
	if !strings.Contains(fb, "clarify the learning rate") || !strings.Contains(fb, "cite the source for step 3") {
		t.Fatalf("expected medium issues in feedback, got %q", fb)
	}
}
