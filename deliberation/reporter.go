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

const defaultReporterPrompt = `You are an educational reporter producing the final answer for a student.
Structure the answer into the requested sections. Be clear, pedagogical and faithful to the deliberated content.
Never add claims that are not in the deliberated answer.

Respond in exactly this format, one section per block:
SECTION: <section_name>
<section content>
`

const defaultIndicatorPrompt = `You rate the quality of a finished educational answer.
Rate each dimension from 0 to 1.

Respond in exactly this format:
COMPLETENESS: <0.00 to 1.00>
CLARITY: <0.00 to 1.00>
ACCURACY: <0.00 to 1.00>
PEDAGOGICAL_VALUE: <0.00 to 1.00>`

const escalationWarning = "Note: this answer is delivered with unresolved reviewer concerns. Verify the flagged points against the course material before relying on them."

// Section names for converged answers.
var convergedSections = []string{"introduction", "step_by_step_solution", "key_takeaways"}

// Section names for answers that did not converge.
var incompleteSections = []string{"introduction", "partial_solution", "unresolved_areas", "recommendations"}

// Reporter synthesizes the final structured answer from the terminal
// workflow state.
type Reporter struct {
	client llm.Client
	cfg    *Config
	logger *slog.Logger
}

func NewReporter(client llm.Client, cfg *Config) *Reporter {
	return &Reporter{
		client: client,
		cfg:    cfg,
		logger: logging.WithComponent("reporter"),
	}
}

// Report builds the final answer. The synthesis strategy follows the
// terminal outcome; a missing draft yields a minimal zero-confidence
// answer rather than an error.
func (r *Reporter) Report(ctx context.Context, state *WorkflowState) *FinalAnswer {
	if state.Draft == nil {
		return r.minimalAnswer(state)
	}

	outcome := OutcomeDeadlock
	score := 0.0
	if state.Decision != nil {
		outcome = state.Decision.Outcome
		score = state.Decision.ConvergenceScore
	}

	wanted := incompleteSections
	if outcome == OutcomeConverged {
		wanted = convergedSections
	}

	sections := r.synthesize(ctx, state, outcome, wanted)
	if outcome == OutcomeEscalation {
		sections["introduction"] = escalationWarning + "\n\n" + sections["introduction"]
	}

	answer := &FinalAnswer{
		Sections:          sections,
		Confidence:        r.confidence(outcome, score),
		Sources:           collectSources(state, r.cfg.MaxSources),
		QualityIndicators: r.assessQuality(ctx, state, outcome, sections),
	}
	r.logger.Info("answer synthesized",
		"outcome", outcome,
		"confidence", answer.Confidence,
		"sections", len(sections),
	)
	return answer
}

func (r *Reporter) synthesize(ctx context.Context, state *WorkflowState, outcome Outcome, wanted []string) map[string]string {
	user := fmt.Sprintf(
		"Question: %s\n\nDebate outcome: %s after %d round(s)\n\nDeliberated Answer:\n%s\n\nRequired sections, in order: %s",
		state.Query.Text, outcome, state.Round, state.Draft.Content, strings.Join(wanted, ", "),
	)
	if tally := Tally(state.Issues); outcome != OutcomeConverged && tally.Total() > 0 {
		user += fmt.Sprintf("\n\nUnresolved issues:\n%s", formatIssues(state.Issues))
	}

	resp, err := llm.Complete(ctx, r.client, r.cfg.ReporterPrompt, user)
	if err != nil {
		r.logger.Warn("synthesis failed, sectioning the draft directly", "error", err)
		return fallbackSections(state, wanted)
	}

	sections := parseSections(resp, wanted)
	for name, content := range sections {
		if content == "" || hasPlaceholders(content) {
			r.logger.Warn("synthesized section unusable", "section", name)
			return fallbackSections(state, wanted)
		}
	}
	return sections
}

// parseSections splits a "SECTION: name" formatted response. Unknown
// section names are folded into the nearest preceding known one;
// missing sections get an empty entry so the caller can detect them.
func parseSections(resp string, wanted []string) map[string]string {
	known := make(map[string]bool, len(wanted))
	for _, w := range wanted {
		known[w] = true
	}

	sections := make(map[string]string, len(wanted))
	current := ""
	var buf strings.Builder
	flush := func() {
		if current != "" {
			sections[current] = strings.TrimSpace(buf.String())
		}
		buf.Reset()
	}
	for _, line := range strings.Split(resp, "\n") {
		if name, ok := strings.CutPrefix(strings.TrimSpace(line), "SECTION:"); ok {
			name = strings.ToLower(strings.TrimSpace(name))
			if known[name] {
				flush()
				current = name
				continue
			}
		}
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	flush()

	for _, w := range wanted {
		if _, ok := sections[w]; !ok {
			sections[w] = ""
		}
	}
	return sections
}

// fallbackSections builds sections deterministically from the draft
// when synthesis fails or produces unusable text.
func fallbackSections(state *WorkflowState, wanted []string) map[string]string {
	sections := make(map[string]string, len(wanted))
	for _, name := range wanted {
		switch name {
		case "introduction":
			sections[name] = fmt.Sprintf("This answer addresses: %s", state.Query.Text)
		case "step_by_step_solution", "partial_solution":
			sections[name] = state.Draft.Content
		case "key_takeaways":
			sections[name] = takeaways(state.Draft)
		case "unresolved_areas":
			if tally := Tally(state.Issues); tally.Total() > 0 {
				sections[name] = formatIssues(state.Issues)
			} else {
				sections[name] = "The debate ended before all aspects could be verified."
			}
		case "recommendations":
			sections[name] = "Review the cited course material directly and consult an instructor for the unresolved points."
		}
	}
	return sections
}

func takeaways(draft *Draft) string {
	if len(draft.Steps) == 0 {
		return "See the solution above."
	}
	var lines []string
	for _, st := range draft.Steps {
		lines = append(lines, "- "+st.Thought)
	}
	return strings.Join(lines, "\n")
}

// confidence derives the reported confidence from the outcome. A
// converged debate reports its convergence score as-is; a debate that
// ended any other way caps it no matter how high the score was.
func (r *Reporter) confidence(outcome Outcome, score float64) float64 {
	if outcome == OutcomeConverged {
		return clamp01(score)
	}
	return min(clamp01(score), r.cfg.ConfidenceCap)
}

// collectSources lists the distinct passage sources, first-seen order,
// capped at limit.
func collectSources(state *WorkflowState, limit int) []string {
	if state.Retrieval == nil {
		return nil
	}
	seen := make(map[string]bool)
	var sources []string
	for _, p := range state.Retrieval.Passages {
		if p.Source == "" || seen[p.Source] {
			continue
		}
		seen[p.Source] = true
		sources = append(sources, p.Source)
		if len(sources) >= limit {
			break
		}
	}
	return sources
}

var indicatorNames = []string{"completeness", "clarity", "accuracy", "pedagogical_value"}

func (r *Reporter) assessQuality(ctx context.Context, state *WorkflowState, outcome Outcome, sections map[string]string) map[string]float64 {
	var b strings.Builder
	for name, content := range sections {
		fmt.Fprintf(&b, "[%s]\n%s\n\n", name, content)
	}
	user := fmt.Sprintf("Question: %s\n\nAnswer:\n%s", state.Query.Text, b.String())

	resp, err := llm.Complete(ctx, r.client, r.cfg.IndicatorPrompt, user)
	if err != nil {
		r.logger.Warn("quality indicator assessment failed, using defaults", "error", err)
		return defaultIndicators(outcome, state.Round)
	}

	indicators := parseIndicators(resp)
	if len(indicators) < len(indicatorNames) {
		return defaultIndicators(outcome, state.Round)
	}
	return indicators
}

func parseIndicators(resp string) map[string]float64 {
	indicators := make(map[string]float64)
	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(line)
		for _, name := range indicatorNames {
			prefix := strings.ToUpper(name) + ":"
			if rest, ok := strings.CutPrefix(line, prefix); ok {
				if score, parseErr := parseFloatStrict(rest); parseErr == nil {
					indicators[name] = clamp01(score)
				}
			}
		}
	}
	return indicators
}

// defaultIndicators is the deterministic fallback: converged answers
// score well, and every extra round spent costs a little completeness.
func defaultIndicators(outcome Outcome, rounds int) map[string]float64 {
	base := 0.5
	if outcome == OutcomeConverged {
		base = 0.8
	}
	penalty := 0.05 * float64(rounds-1)
	if penalty < 0 {
		penalty = 0
	}
	indicators := make(map[string]float64, len(indicatorNames))
	for _, name := range indicatorNames {
		indicators[name] = clamp01(base - penalty)
	}
	return indicators
}

func (r *Reporter) minimalAnswer(state *WorkflowState) *FinalAnswer {
	return &FinalAnswer{
		Sections: map[string]string{
			"introduction": fmt.Sprintf(
				"The question %q could not be answered: the deliberation produced no draft.", state.Query.Text),
		},
		Confidence:        0,
		Sources:           collectSources(state, r.cfg.MaxSources),
		QualityIndicators: map[string]float64{},
	}
}

func parseFloatStrict(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func formatIssues(issues []Issue) string {
	var lines []string
	for _, is := range issues {
		lines = append(lines, fmt.Sprintf("- [%s/%s] %s", is.Type, is.Severity, is.Description))
	}
	return strings.Join(lines, "\n")
}
