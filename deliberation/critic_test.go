package deliberation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sweetpotato0/deliberate/message"
)

// passRouter answers by system-prompt substring and fails the pass
// whose prompt contains failOn.
type passRouter struct {
	responses map[string]string
	failOn    string
}

func (p *passRouter) Generate(ctx context.Context, msgs []*message.Message) (*message.Message, error) {
	system := ""
	for _, m := range msgs {
		if m.Role == message.RoleSystem {
			system = m.Content
		}
	}
	if p.failOn != "" && strings.Contains(system, p.failOn) {
		return nil, errors.New("model unavailable")
	}
	for key, resp := range p.responses {
		if strings.Contains(system, key) {
			return message.NewMessage(message.RoleAssistant, resp), nil
		}
	}
	return nil, errors.New("no canned response")
}

func TestParseIssues(t *testing.T) {
	resp := `step 2 | high | The inference does not follow from step 1.
step 4 | critical | Circular reasoning.
this line has no pipes and is skipped
only one pipe | skipped too
step 5 | blocker | Unknown severity defaults to medium.`

	issues := parseIssues(resp, IssueLogicFlaw)
	if len(issues) != 3 {
		t.Fatalf("expected 3 issues, got %d", len(issues))
	}
	if issues[0].Severity != SeverityHigh || issues[0].StepRef != "step 2" {
		t.Fatalf("unexpected first issue: %+v", issues[0])
	}
	if issues[1].Severity != SeverityCritical {
		t.Fatalf("unexpected second issue: %+v", issues[1])
	}
	if issues[2].Severity != SeverityMedium {
		t.Fatalf("unknown severity must default to medium, got %s", issues[2].Severity)
	}
}

func TestParseIssuesNoIssues(t *testing.T) {
	if issues := parseIssues("NO ISSUES", IssueFactContradiction); len(issues) != 0 {
		t.Fatalf("expected no issues, got %d", len(issues))
	}
	if issues := parseIssues("  no issues  ", IssueFactContradiction); len(issues) != 0 {
		t.Fatalf("expected no issues for lowercase variant, got %d", len(issues))
	}
}

func TestParseIssuesClaimField(t *testing.T) {
	issues := parseIssues("the sky is green | critical | Not in the material.", IssueHallucination)
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(issues))
	}
	if issues[0].Claim != "the sky is green" {
		t.Fatalf("non-logic passes record the claim, got %+v", issues[0])
	}
	if issues[0].StepRef != "" {
		t.Fatalf("non-logic passes leave StepRef empty, got %q", issues[0].StepRef)
	}
}

func TestCriticRunsAllPasses(t *testing.T) {
	client := &stubLLM{response: "claim | medium | Weakly supported."}
	c := NewCritic(client, defaultConfig())

	issues, err := c.Review(context.Background(), newDraft("answer", nil), testPassages())
	if err != nil {
		t.Fatalf("Review error: %v", err)
	}
	// One record per pass, concatenated without dedup.
	if len(issues) != 3 {
		t.Fatalf("expected 3 issues (one per pass), got %d", len(issues))
	}
	types := map[IssueType]bool{}
	for _, is := range issues {
		types[is.Type] = true
	}
	for _, want := range []IssueType{IssueLogicFlaw, IssueFactContradiction, IssueHallucination} {
		if !types[want] {
			t.Fatalf("missing pass %s in %v", want, types)
		}
	}
	if client.calls != 3 {
		t.Fatalf("expected 3 model calls, got %d", client.calls)
	}
}

func TestCriticPassFailureKeepsOtherFindings(t *testing.T) {
	client := &passRouter{
		responses: map[string]string{
			"logic reviewer":    "step 1 | critical | The conclusion contradicts step 1.",
			"grounding auditor": "NO ISSUES",
		},
		failOn: "fact checker",
	}
	c := NewCritic(client, defaultConfig())

	issues, err := c.Review(context.Background(), newDraft("answer", nil), testPassages())
	if err == nil {
		t.Fatal("the failed pass must surface in the returned error")
	}
	if len(issues) != 2 {
		t.Fatalf("expected the critical finding plus the failed-pass marker, got %+v", issues)
	}
	tally := Tally(issues)
	if tally.Critical != 1 || tally.Medium != 1 {
		t.Fatalf("unexpected tally: %+v", tally)
	}
}

func TestAssessOverall(t *testing.T) {
	tests := []struct {
		name  string
		tally SeverityTally
		label string
		score float64
	}{
		{"clean", SeverityTally{}, "acceptable", 0},
		{"critical dominates", SeverityTally{Critical: 1, Low: 1}, "major_revisions_required", 2.5},
		{"many high", SeverityTally{High: 3}, "significant_revisions_required", 3},
		{"one high", SeverityTally{High: 1, Low: 1}, "minor_revisions_suggested", 2},
		{"volume alone", SeverityTally{Low: 4}, "minor_revisions_suggested", 1},
		{"minor", SeverityTally{Medium: 1, Low: 1}, "acceptable_with_minor_issues", 1.5},
	}
	for _, tt := range tests {
		label, score := assessOverall(tt.tally)
		if label != tt.label || score != tt.score {
			t.Fatalf("%s: assessOverall = %q, %v; want %q, %v", tt.name, label, score, tt.label, tt.score)
		}
	}
}

func TestTally(t *testing.T) {
	tally := Tally([]Issue{
		{Severity: SeverityLow},
		{Severity: SeverityMedium},
		{Severity: SeverityMedium},
		{Severity: SeverityCritical},
	})
	if tally.Low != 1 || tally.Medium != 2 || tally.High != 0 || tally.Critical != 1 {
		t.Fatalf("unexpected tally: %+v", tally)
	}
	if tally.Total() != 4 {
		t.Fatalf("unexpected total: %d", tally.Total())
	}
}
