package deliberation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/sweetpotato0/deliberate/llm"
	"github.com/sweetpotato0/deliberate/pkg/logging"
	"github.com/sweetpotato0/deliberate/pkg/telemetry"
	"github.com/sweetpotato0/deliberate/retrieval"
)

const defaultLogicPrompt = `You are a rigorous logic reviewer.
Examine the reasoning chain for flaws: invalid inferences, circular reasoning, unsupported jumps, contradictions between steps.
Report each flaw on its own line in the exact format:
step reference | severity | description
Severity is one of: low, medium, high, critical.
If the reasoning is sound, respond with exactly: NO ISSUES`

const defaultFactPrompt = `You are a fact checker.
Compare every claim in the answer against the provided course material.
Report each contradiction on its own line in the exact format:
claim | severity | description
Severity is one of: low, medium, high, critical.
If every claim is consistent with the material, respond with exactly: NO ISSUES`

const defaultGroundingPrompt = `You are a grounding auditor.
Identify claims in the answer that are NOT supported by any passage in the course material.
Report each unsupported claim on its own line in the exact format:
claim | severity | description
Severity is one of: low, medium, high, critical.
If every claim is grounded in the material, respond with exactly: NO ISSUES`

// Critic runs the three review passes over a draft.
type Critic struct {
	client llm.Client
	cfg    *Config
	logger *slog.Logger
}

func NewCritic(client llm.Client, cfg *Config) *Critic {
	return &Critic{
		client: client,
		cfg:    cfg,
		logger: logging.WithComponent("critic"),
	}
}

type reviewPass struct {
	issueType IssueType
	prompt    string
}

// Review runs the logic, fact and grounding passes concurrently and
// returns their issues concatenated. Nothing is deduplicated: the same
// problem flagged by two passes counts twice when tallying severity.
// A failed pass never discards the other passes' findings: it leaves a
// medium issue noting the unverified dimension, and the joined errors
// come back for the caller's error log.
func (c *Critic) Review(ctx context.Context, draft *Draft, passages []retrieval.Passage) ([]Issue, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "critic.review")
	var reviewErr error
	defer func() { telemetry.End(span, reviewErr) }()

	passes := []reviewPass{
		{IssueLogicFlaw, c.cfg.LogicPrompt},
		{IssueFactContradiction, c.cfg.FactPrompt},
		{IssueHallucination, c.cfg.GroundingPrompt},
	}

	results := make([][]Issue, len(passes))
	errs := make([]error, len(passes))
	g, gctx := errgroup.WithContext(ctx)
	for i, pass := range passes {
		g.Go(func() error {
			issues, err := c.runPass(gctx, pass, draft, passages)
			if err != nil {
				c.logger.Warn("review pass failed", "pass", pass.issueType, "error", err)
				errs[i] = fmt.Errorf("%s review: %w", pass.issueType, err)
				results[i] = []Issue{{
					Type:        pass.issueType,
					Severity:    SeverityMedium,
					Description: fmt.Sprintf("%s verification could not be completed: %v", pass.issueType, err),
				}}
				return nil
			}
			results[i] = issues
			return nil
		})
	}
	_ = g.Wait() // Branches never return errors; partial failure is tolerated.
	reviewErr = errors.Join(errs...)

	var all []Issue
	for _, issues := range results {
		all = append(all, issues...)
	}

	tally := Tally(all)
	label, score := assessOverall(tally)
	span.SetAttributes(
		attribute.Int("issues.total", tally.Total()),
		attribute.Int("issues.critical", tally.Critical),
		attribute.Int("issues.high", tally.High),
		attribute.String("assessment.label", label),
		attribute.Float64("assessment.score", score),
	)
	c.logger.Info("review complete",
		"draft", draft.ID,
		"issues", tally.Total(),
		"critical", tally.Critical,
		"assessment", label,
		"severity_score", score,
	)
	return all, reviewErr
}

// assessOverall condenses the combined issue list into a quality label
// plus the average severity weight on a 0-4 scale. Telemetry only; the
// moderator's rule table never reads it.
func assessOverall(tally SeverityTally) (string, float64) {
	total := tally.Total()
	if total == 0 {
		return "acceptable", 0
	}
	weighted := 4*tally.Critical + 3*tally.High + 2*tally.Medium + tally.Low
	score := float64(weighted) / float64(total)
	switch {
	case tally.Critical > 0:
		return "major_revisions_required", score
	case tally.High > 2:
		return "significant_revisions_required", score
	case tally.High > 0 || total > 3:
		return "minor_revisions_suggested", score
	default:
		return "acceptable_with_minor_issues", score
	}
}

func (c *Critic) runPass(ctx context.Context, pass reviewPass, draft *Draft, passages []retrieval.Passage) ([]Issue, error) {
	user := fmt.Sprintf("Answer:\n%s\n\nReasoning Steps:\n%s\n\nCourse Material:\n%s",
		draft.Content, formatSteps(draft.Steps), formatContext(topPassages(passages, c.cfg.ContextTopK)))

	resp, err := llm.Complete(ctx, c.client, pass.prompt, user)
	if err != nil {
		return nil, err
	}
	return parseIssues(resp, pass.issueType), nil
}

// parseIssues reads "reference | severity | description" records, one
// per line. Lines that don't fit the shape are skipped, not errors.
func parseIssues(resp string, issueType IssueType) []Issue {
	var issues []Issue
	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.EqualFold(line, "NO ISSUES") {
			continue
		}
		parts := strings.SplitN(line, "|", 3)
		if len(parts) != 3 {
			continue
		}
		ref := strings.TrimSpace(parts[0])
		desc := strings.TrimSpace(parts[2])
		if desc == "" {
			continue
		}
		issue := Issue{
			Type:        issueType,
			Severity:    ParseSeverity(parts[1]),
			Description: desc,
		}
		if issueType == IssueLogicFlaw {
			issue.StepRef = ref
		} else {
			issue.Claim = ref
		}
		issues = append(issues, issue)
	}
	return issues
}

func formatSteps(steps []ReasoningStep) string {
	if len(steps) == 0 {
		return "(none given)"
	}
	var b strings.Builder
	for _, st := range steps {
		fmt.Fprintf(&b, "%d. %s (confidence: %.2f)\n", st.Index, st.Thought, st.Confidence)
	}
	return strings.TrimSpace(b.String())
}
