package deliberation

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sweetpotato0/deliberate/retrieval"
)

func newTestStrategist(client *stubLLM) *Strategist {
	return NewStrategist(client, defaultConfig())
}

func TestStrategistDraftParsesJSON(t *testing.T) {
	client := &stubLLM{response: `{
		"answer": "Backpropagation applies the chain rule backwards through the network.",
		"reasoning_steps": [
			{"thought": "Start from the loss at the output.", "confidence": 0.9},
			{"thought": "Propagate gradients layer by layer.", "confidence": 0.85}
		]
	}`}
	s := newTestStrategist(client)

	draft, err := s.Draft(context.Background(), Query{Text: "What is backpropagation?"}, testPassages())
	if err != nil {
		t.Fatalf("Draft error: %v", err)
	}
	if draft.ID == "" {
		t.Fatal("draft must carry an ID")
	}
	if len(draft.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(draft.Steps))
	}
	if draft.Steps[0].Index != 1 || draft.Steps[1].Index != 2 {
		t.Fatalf("steps must be numbered from 1, got %d and %d", draft.Steps[0].Index, draft.Steps[1].Index)
	}
	if !strings.Contains(client.lastUser, "[Source 1] (Relevance: 0.90)") {
		t.Fatalf("prompt should number and score sources, got %q", client.lastUser)
	}
}

func TestStrategistDraftFencedJSON(t *testing.T) {
	client := &stubLLM{response: "```json\n{\"answer\": \"Fenced answer.\", \"reasoning_steps\": []}\n```"}
	s := newTestStrategist(client)

	draft, err := s.Draft(context.Background(), Query{Text: "q"}, testPassages())
	if err != nil {
		t.Fatalf("Draft error: %v", err)
	}
	if draft.Content != "Fenced answer." {
		t.Fatalf("unexpected content: %q", draft.Content)
	}
}

func TestStrategistDraftEmbeddedJSON(t *testing.T) {
	client := &stubLLM{response: `Here is my answer:
{"answer": "Embedded answer about gradients.", "reasoning_steps": [{"thought": "one step", "confidence": 0.8}]}
Hope that helps!`}
	s := newTestStrategist(client)

	draft, err := s.Draft(context.Background(), Query{Text: "q"}, testPassages())
	if err != nil {
		t.Fatalf("Draft error: %v", err)
	}
	if draft.Content != "Embedded answer about gradients." {
		t.Fatalf("unexpected content: %q", draft.Content)
	}
}

func TestStrategistDraftPlainText(t *testing.T) {
	client := &stubLLM{response: "Backpropagation is how networks learn from their mistakes."}
	s := newTestStrategist(client)

	draft, err := s.Draft(context.Background(), Query{Text: "q"}, testPassages())
	if err != nil {
		t.Fatalf("Draft error: %v", err)
	}
	if draft.Content != "Backpropagation is how networks learn from their mistakes." {
		t.Fatalf("unexpected content: %q", draft.Content)
	}
	if len(draft.Steps) != 1 {
		t.Fatalf("plain text drafts get a synthesized step, got %d", len(draft.Steps))
	}
}

func TestStrategistPlaceholderFallback(t *testing.T) {
	client := &stubLLM{response: `{"answer": "The answer to {question} is in {context}.", "reasoning_steps": []}`}
	s := newTestStrategist(client)

	draft, err := s.Draft(context.Background(), Query{Text: "q"}, testPassages())
	if err != nil {
		t.Fatalf("Draft error: %v", err)
	}
	if hasPlaceholders(draft.Content) {
		t.Fatalf("fallback draft still contains placeholders: %q", draft.Content)
	}
	if !strings.Contains(draft.Content, "chain rule") {
		t.Fatalf("fallback should draw on the material, got %q", draft.Content)
	}
}

func TestStrategistEmptyContextClaimFallback(t *testing.T) {
	client := &stubLLM{response: `{"answer": "Unfortunately no context provided, so I cannot answer.", "reasoning_steps": []}`}
	s := newTestStrategist(client)

	draft, err := s.Draft(context.Background(), Query{Text: "q"}, testPassages())
	if err != nil {
		t.Fatalf("Draft error: %v", err)
	}
	if claimsEmptyContext(draft.Content) {
		t.Fatalf("fallback draft still claims missing context: %q", draft.Content)
	}
}

func TestStrategistPromptLimitsContext(t *testing.T) {
	var passages []retrieval.Passage
	for i := 0; i < 8; i++ {
		passages = append(passages, retrieval.Passage{
			Text:   fmt.Sprintf("Passage number %d about gradient descent mechanics.", i+1),
			Score:  0.9 - float64(i)*0.05,
			Source: "ch-3",
		})
	}
	client := &stubLLM{response: `{"answer": "Grounded answer.", "reasoning_steps": []}`}
	s := newTestStrategist(client)

	if _, err := s.Draft(context.Background(), Query{Text: "q"}, passages); err != nil {
		t.Fatalf("Draft error: %v", err)
	}
	if !strings.Contains(client.lastUser, "[Source 5]") {
		t.Fatalf("the top five passages belong in the prompt, got %q", client.lastUser)
	}
	if strings.Contains(client.lastUser, "[Source 6]") {
		t.Fatalf("prompt context must stop at five passages, got %q", client.lastUser)
	}
}

func TestExtractAnswerIdempotent(t *testing.T) {
	first := extractAnswer(testPassages())
	second := extractAnswer(testPassages())
	if first != second {
		t.Fatal("extraction must be deterministic for the same passages")
	}
}

func TestStrategistRefineGetsNewID(t *testing.T) {
	client := &stubLLM{response: `{"answer": "Revised answer.", "reasoning_steps": []}`}
	s := newTestStrategist(client)

	prev := newDraft("old answer", nil)
	draft, err := s.Refine(context.Background(), Query{Text: "q"}, prev, "fix step 2", testPassages())
	if err != nil {
		t.Fatalf("Refine error: %v", err)
	}
	if draft.ID == prev.ID {
		t.Fatal("refined draft must carry a fresh ID")
	}
	if !strings.Contains(client.lastUser, "fix step 2") {
		t.Fatalf("refine prompt should carry the feedback, got %q", client.lastUser)
	}
	if !strings.Contains(client.lastUser, "old answer") {
		t.Fatalf("refine prompt should carry the previous draft, got %q", client.lastUser)
	}
}
