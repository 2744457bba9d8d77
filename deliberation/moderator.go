package deliberation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sweetpotato0/deliberate/llm"
	"github.com/sweetpotato0/deliberate/pkg/logging"
)

const defaultModeratorPrompt = `You are the moderator of a structured answer-review debate.
Given the current answer, the reviewers' issues and the round number, decide how the debate proceeds.

Decisions:
- converged: the answer is ready
- iterate: the answer needs another revision round
- abort_deadlock: the debate is stuck and further rounds will not help
- escalate_with_warning: deliver the answer but flag serious unresolved problems

Respond in exactly this format:
DECISION: <one of the four decisions>
REASONING: <why>
FEEDBACK: <concrete guidance for the next revision, or "none">
CONVERGENCE_SCORE: <0.00 to 1.00>`

// Moderator decides after each review round whether the debate
// continues, converges or terminates abnormally.
type Moderator struct {
	client llm.Client
	cfg    *Config
	logger *slog.Logger
}

func NewModerator(client llm.Client, cfg *Config) *Moderator {
	return &Moderator{
		client: client,
		cfg:    cfg,
		logger: logging.WithComponent("moderator"),
	}
}

// Decide produces the round verdict. The model proposes, the override
// rules dispose: whatever the model says, the returned decision always
// satisfies the severity and round-bound rules.
func (m *Moderator) Decide(ctx context.Context, state *WorkflowState, maxRounds int) *Decision {
	tally := Tally(state.Issues)

	proposal, err := m.propose(ctx, state, tally)
	if err != nil {
		m.logger.Warn("decision proposal failed, aborting debate", "error", err)
		return &Decision{
			Outcome:   OutcomeDeadlock,
			Reasoning: "The moderator could not produce a decision; terminating to avoid an unbounded debate.",
		}
	}

	decision := m.applyOverrides(proposal, tally, state.Round, maxRounds)
	if decision.Outcome == OutcomeIterate && decision.Feedback == "" {
		decision.Feedback = prioritizedFeedback(state.Issues)
	}

	m.logger.Info("round decided",
		"round", state.Round,
		"outcome", decision.Outcome,
		"convergence", decision.ConvergenceScore,
		"critical", tally.Critical,
	)
	return decision
}

func (m *Moderator) propose(ctx context.Context, state *WorkflowState, tally SeverityTally) (*Decision, error) {
	var issueLines strings.Builder
	for _, is := range state.Issues {
		fmt.Fprintf(&issueLines, "- [%s/%s] %s\n", is.Type, is.Severity, is.Description)
	}
	if tally.Total() == 0 {
		issueLines.WriteString("(no issues raised)\n")
	}

	user := fmt.Sprintf(
		"Round %d of %d\n\nAnswer:\n%s\n\nReviewer Issues (%d critical, %d high, %d medium, %d low):\n%s",
		state.Round, m.cfg.MaxRounds, state.Draft.Content,
		tally.Critical, tally.High, tally.Medium, tally.Low,
		issueLines.String(),
	)

	resp, err := llm.Complete(ctx, m.client, m.cfg.ModeratorPrompt, user)
	if err != nil {
		return nil, err
	}
	return parseProposal(resp)
}

// parseProposal reads the DECISION / REASONING / FEEDBACK /
// CONVERGENCE_SCORE lines. A missing or unrecognized DECISION is a
// proposal failure.
func parseProposal(resp string) (*Decision, error) {
	d := &Decision{}
	haveDecision := false
	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "DECISION:"):
			raw := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "DECISION:")))
			switch Outcome(raw) {
			case OutcomeConverged, OutcomeIterate, OutcomeDeadlock, OutcomeEscalation:
				d.Outcome = Outcome(raw)
				haveDecision = true
			}
		case strings.HasPrefix(line, "REASONING:"):
			d.Reasoning = strings.TrimSpace(strings.TrimPrefix(line, "REASONING:"))
		case strings.HasPrefix(line, "FEEDBACK:"):
			fb := strings.TrimSpace(strings.TrimPrefix(line, "FEEDBACK:"))
			if !strings.EqualFold(fb, "none") {
				d.Feedback = fb
			}
		case strings.HasPrefix(line, "CONVERGENCE_SCORE:"):
			raw := strings.TrimSpace(strings.TrimPrefix(line, "CONVERGENCE_SCORE:"))
			if score, err := strconv.ParseFloat(raw, 64); err == nil {
				d.ConvergenceScore = clamp01(score)
			}
		}
	}
	if !haveDecision {
		return nil, fmt.Errorf("proposal missing a valid DECISION line: %q", firstLine(resp))
	}
	return d, nil
}

// applyOverrides enforces the debate rules on top of the model's
// proposal, in fixed priority order:
//
//  1. critical issues at or above the escalation threshold always
//     escalate with a warning
//  2. a converged proposal with any critical issue is demoted: iterate
//     if rounds remain, escalate otherwise
//  3. no critical or high issues and at most one medium promotes to
//     converged
//  4. an iterate verdict with no rounds left becomes abort_deadlock
func (m *Moderator) applyOverrides(proposal *Decision, tally SeverityTally, round, maxRounds int) *Decision {
	d := *proposal

	switch {
	case tally.Critical >= m.cfg.CriticalEscalationThreshold:
		d.Outcome = OutcomeEscalation
		d.Reasoning = fmt.Sprintf("%d critical issues remain unresolved; delivering with a warning.", tally.Critical)

	case d.Outcome == OutcomeConverged && tally.Critical > 0:
		if round >= maxRounds {
			d.Outcome = OutcomeEscalation
			d.Reasoning = "Critical issues remain at the round limit; delivering with a warning."
		} else {
			d.Outcome = OutcomeIterate
			d.Reasoning = "Cannot converge while critical issues are open."
		}

	case tally.Critical == 0 && tally.High == 0 && tally.Medium <= 1:
		d.Outcome = OutcomeConverged
		if d.ConvergenceScore == 0 {
			d.ConvergenceScore = 0.9
		}
	}

	if d.Outcome == OutcomeIterate && round >= maxRounds {
		d.Outcome = OutcomeDeadlock
		d.Reasoning = fmt.Sprintf("Round limit of %d reached without convergence.", maxRounds)
	}
	return &d
}

// prioritizedFeedback turns the round's issues into revision guidance,
// worst severity first. Low issues never make the cut on their own.
func prioritizedFeedback(issues []Issue) string {
	pick := func(min Severity) []string {
		var lines []string
		for _, is := range issues {
			if is.Severity >= min {
				lines = append(lines, fmt.Sprintf("- [%s] %s", is.Severity, is.Description))
			}
		}
		return lines
	}
	lines := pick(SeverityHigh)
	if len(lines) == 0 {
		lines = pick(SeverityMedium)
	}
	if len(lines) == 0 {
		return "Tighten the reasoning and ensure every claim cites the course material."
	}
	return "Address the following issues:\n" + strings.Join(lines, "\n")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
