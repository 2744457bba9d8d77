package deliberation

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sweetpotato0/deliberate/retrieval"
)

// Severity ranks how badly an issue undermines a draft.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "medium"
	}
}

// ParseSeverity maps a reviewer-emitted label to a Severity. Unknown
// labels degrade to medium rather than failing the round.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow
	case "high":
		return SeverityHigh
	case "critical":
		return SeverityCritical
	default:
		return SeverityMedium
	}
}

// IssueType identifies which review pass raised an issue.
type IssueType string

const (
	IssueLogicFlaw         IssueType = "logic_flaw"
	IssueFactContradiction IssueType = "fact_contradiction"
	IssueHallucination     IssueType = "hallucination"
)

// Issue is one problem a review pass found in a draft.
type Issue struct {
	Type        IssueType `json:"type"`
	Severity    Severity  `json:"severity"`
	Description string    `json:"description"`
	StepRef     string    `json:"step_ref,omitempty"`
	Claim       string    `json:"claim,omitempty"`
}

// SeverityTally counts issues per severity for one round.
type SeverityTally struct {
	Low      int
	Medium   int
	High     int
	Critical int
}

// Tally counts the issues of one round by severity.
func Tally(issues []Issue) SeverityTally {
	var t SeverityTally
	for _, is := range issues {
		switch is.Severity {
		case SeverityLow:
			t.Low++
		case SeverityMedium:
			t.Medium++
		case SeverityHigh:
			t.High++
		case SeverityCritical:
			t.Critical++
		}
	}
	return t
}

// Total returns the number of issues in the tally.
func (t SeverityTally) Total() int {
	return t.Low + t.Medium + t.High + t.Critical
}

// ReasoningStep is one numbered step of a draft's reasoning chain.
type ReasoningStep struct {
	Index      int     `json:"index"`
	Thought    string  `json:"thought"`
	Confidence float64 `json:"confidence"`
}

// Draft is one proposed answer with its reasoning chain. Every draft,
// including refinements of an earlier one, carries a fresh ID.
type Draft struct {
	ID        string          `json:"id"`
	Content   string          `json:"content"`
	Steps     []ReasoningStep `json:"steps"`
	CreatedAt time.Time       `json:"created_at"`
}

func newDraft(content string, steps []ReasoningStep) *Draft {
	return &Draft{
		ID:        uuid.NewString(),
		Content:   content,
		Steps:     steps,
		CreatedAt: time.Now(),
	}
}

// Outcome is a moderation verdict for one round.
type Outcome string

const (
	OutcomeConverged  Outcome = "converged"
	OutcomeIterate    Outcome = "iterate"
	OutcomeDeadlock   Outcome = "abort_deadlock"
	OutcomeEscalation Outcome = "escalate_with_warning"
)

// terminal reports whether the outcome ends the debate.
func (o Outcome) terminal() bool {
	return o != OutcomeIterate
}

// Decision is a moderation verdict plus its rationale.
type Decision struct {
	Outcome          Outcome `json:"outcome"`
	ConvergenceScore float64 `json:"convergence_score"`
	Reasoning        string  `json:"reasoning"`
	Feedback         string  `json:"feedback,omitempty"`
}

// Query is one question submitted for deliberation.
type Query struct {
	Text              string `json:"text"`
	ScopeID           string `json:"scope_id,omitempty"`
	SessionID         string `json:"session_id,omitempty"`
	DomainInstruction string `json:"domain_instruction,omitempty"`
	MaxRounds         int    `json:"max_rounds,omitempty"` // 0 uses the engine default
}

// FinalAnswer is the synthesized result handed back to the caller.
type FinalAnswer struct {
	Sections          map[string]string  `json:"sections"`
	Confidence        float64            `json:"confidence"`
	Sources           []string           `json:"sources"`
	QualityIndicators map[string]float64 `json:"quality_indicators"`
}

// WorkflowState carries everything the stages share across one run.
// Timings are per stage name, accumulated across rounds.
type WorkflowState struct {
	Query     Query                    `json:"query"`
	Round     int                      `json:"round"`
	Retrieval *retrieval.Result        `json:"retrieval,omitempty"`
	Draft     *Draft                   `json:"draft,omitempty"`
	Issues    []Issue                  `json:"issues,omitempty"`
	Decision  *Decision                `json:"decision,omitempty"`
	Answer    *FinalAnswer             `json:"answer,omitempty"`
	Errors    []string                 `json:"errors,omitempty"`
	Timings   map[string]time.Duration `json:"timings,omitempty"`
}

func (s *WorkflowState) recordError(err error) {
	if err != nil {
		s.Errors = append(s.Errors, err.Error())
	}
}

func (s *WorkflowState) recordTiming(stage string, d time.Duration) {
	if s.Timings == nil {
		s.Timings = make(map[string]time.Duration)
	}
	s.Timings[stage] += d
}
