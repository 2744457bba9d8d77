package deliberation

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/sweetpotato0/deliberate/llm"
	"github.com/sweetpotato0/deliberate/pkg/logging"
	"github.com/sweetpotato0/deliberate/retrieval"
)

const defaultStrategistPrompt = `You are an expert educational strategist.
Construct a step-by-step answer to the student's question using ONLY the provided course material.
Every claim must be traceable to the retrieved context. Never invent facts.

Respond with JSON:
{
  "answer": "the full answer text",
  "reasoning_steps": [
    {"thought": "step description", "confidence": 0.9}
  ]
}`

const defaultRefinePrompt = `You are an expert educational strategist revising a previous answer.
Address every piece of reviewer feedback while staying grounded in the provided course material.
Do not reintroduce problems the reviewers already flagged.

Respond with JSON:
{
  "answer": "the revised answer text",
  "reasoning_steps": [
    {"thought": "step description", "confidence": 0.9}
  ]
}`

// Patterns a model sometimes leaks from its own prompt template.
var placeholderPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\{[a-z_]+\}`),
	regexp.MustCompile(`\{\{[a-z_]+\}\}`),
	regexp.MustCompile(`\[INSERT[^\]]*\]`),
}

// Phrases that claim the context is empty. When passages were in fact
// provided, a draft built on this claim is unusable.
var emptyContextClaims = []string{
	"no context provided",
	"no course material",
	"context is empty",
	"no relevant information was provided",
}

// Strategist drafts answers from retrieved material and refines them
// against reviewer feedback.
type Strategist struct {
	client llm.Client
	cfg    *Config
	logger *slog.Logger
}

func NewStrategist(client llm.Client, cfg *Config) *Strategist {
	return &Strategist{
		client: client,
		cfg:    cfg,
		logger: logging.WithComponent("strategist"),
	}
}

type draftPayload struct {
	Answer         string `json:"answer"`
	ReasoningSteps []struct {
		Thought    string  `json:"thought"`
		Confidence float64 `json:"confidence"`
	} `json:"reasoning_steps"`
}

// Draft produces the first draft for a query.
func (s *Strategist) Draft(ctx context.Context, q Query, passages []retrieval.Passage) (*Draft, error) {
	user := fmt.Sprintf("Question: %s\n\nCourse Material:\n%s",
		q.Text, formatContext(topPassages(passages, s.cfg.ContextTopK)))
	if q.DomainInstruction != "" {
		user = q.DomainInstruction + "\n\n" + user
	}
	return s.generate(ctx, s.cfg.StrategistPrompt, user, passages)
}

// Refine produces a new draft addressing the moderator's feedback. The
// result always carries a fresh ID.
func (s *Strategist) Refine(ctx context.Context, q Query, prev *Draft, feedback string, passages []retrieval.Passage) (*Draft, error) {
	user := fmt.Sprintf("Question: %s\n\nPrevious Answer:\n%s\n\nReviewer Feedback:\n%s\n\nCourse Material:\n%s",
		q.Text, prev.Content, feedback, formatContext(topPassages(passages, s.cfg.ContextTopK)))
	if q.DomainInstruction != "" {
		user = q.DomainInstruction + "\n\n" + user
	}
	return s.generate(ctx, s.cfg.RefinePrompt, user, passages)
}

func (s *Strategist) generate(ctx context.Context, system, user string, passages []retrieval.Passage) (*Draft, error) {
	resp, err := llm.Complete(ctx, s.client, system, user)
	if err != nil {
		return nil, fmt.Errorf("strategist generate: %w", err)
	}

	content, steps := s.parseResponse(resp)
	if !usableDraft(content, len(passages) > 0) {
		s.logger.Warn("draft unusable, extracting answer from material",
			"placeholders", hasPlaceholders(content),
		)
		content = extractAnswer(passages)
		steps = []ReasoningStep{{
			Index:      1,
			Thought:    "Assembled the most relevant statements directly from the course material.",
			Confidence: 0.5,
		}}
	}
	return newDraft(content, steps), nil
}

// parseResponse decodes the model output, falling back from strict JSON
// to an embedded object to treating the whole text as the answer.
func (s *Strategist) parseResponse(resp string) (string, []ReasoningStep) {
	payload, err := decodeJSON[draftPayload](resp)
	if err != nil {
		var ok bool
		payload, ok = extractJSON[draftPayload](resp)
		if !ok || payload.Answer == "" {
			text := strings.TrimSpace(resp)
			return text, []ReasoningStep{{
				Index:      1,
				Thought:    "Answered directly without an explicit reasoning chain.",
				Confidence: 0.6,
			}}
		}
	}

	steps := make([]ReasoningStep, 0, len(payload.ReasoningSteps))
	for i, st := range payload.ReasoningSteps {
		steps = append(steps, ReasoningStep{
			Index:      i + 1,
			Thought:    st.Thought,
			Confidence: clamp01(st.Confidence),
		})
	}
	return strings.TrimSpace(payload.Answer), steps
}

// usableDraft rejects empty drafts, template-placeholder leaks, and
// claims of missing context when context was in fact supplied.
func usableDraft(content string, haveContext bool) bool {
	if strings.TrimSpace(content) == "" {
		return false
	}
	if hasPlaceholders(content) {
		return false
	}
	if haveContext && claimsEmptyContext(content) {
		return false
	}
	return true
}

func hasPlaceholders(content string) bool {
	for _, p := range placeholderPatterns {
		if p.MatchString(content) {
			return true
		}
	}
	return false
}

func claimsEmptyContext(content string) bool {
	lower := strings.ToLower(content)
	for _, claim := range emptyContextClaims {
		if strings.Contains(lower, claim) {
			return true
		}
	}
	return false
}

// extractAnswer builds a deterministic answer from the passages
// themselves. Running it on its own output yields the same text.
func extractAnswer(passages []retrieval.Passage) string {
	if len(passages) == 0 {
		return "The course material does not contain enough information to answer this question."
	}
	var lines []string
	seen := make(map[string]bool)
	for _, p := range passages {
		for _, line := range strings.Split(p.Text, "\n") {
			line = strings.TrimSpace(line)
			if len(line) < 20 || seen[line] {
				continue
			}
			seen[line] = true
			lines = append(lines, line)
			if len(lines) >= 8 {
				break
			}
		}
		if len(lines) >= 8 {
			break
		}
	}
	if len(lines) == 0 {
		return "The course material does not contain enough information to answer this question."
	}
	return "Based on the course material:\n\n" + strings.Join(lines, "\n")
}

// topPassages limits prompt context to the k highest-ranked passages.
// The fallback extractor still sees the full list.
func topPassages(passages []retrieval.Passage, k int) []retrieval.Passage {
	if k <= 0 || len(passages) <= k {
		return passages
	}
	return passages[:k]
}

func formatContext(passages []retrieval.Passage) string {
	if len(passages) == 0 {
		return "(no material retrieved)"
	}
	var b strings.Builder
	for i, p := range passages {
		fmt.Fprintf(&b, "[Source %d] (Relevance: %.2f)\n%s\n\n", i+1, p.Score, p.Text)
	}
	return strings.TrimSpace(b.String())
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
