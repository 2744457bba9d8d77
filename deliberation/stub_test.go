package deliberation

import (
	"context"
	"sync"

	"github.com/sweetpotato0/deliberate/message"
	"github.com/sweetpotato0/deliberate/retrieval"
)

// stubLLM returns a canned response, or consumes a queue of responses
// when more than one is set.
type stubLLM struct {
	mu        sync.Mutex
	response  string
	responses []string
	err       error
	calls     int
	lastUser  string
}

func (s *stubLLM) Generate(ctx context.Context, msgs []*message.Message) (*message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	for _, m := range msgs {
		if m.Role == message.RoleUser {
			s.lastUser = m.Content
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	resp := s.response
	if len(s.responses) > 0 {
		resp = s.responses[0]
		if len(s.responses) > 1 {
			s.responses = s.responses[1:]
		}
	}
	return message.NewMessage(message.RoleAssistant, resp), nil
}

// stubRetriever serves a fixed passage list.
type stubRetriever struct {
	passages []retrieval.Passage
	err      error
}

func (s *stubRetriever) Retrieve(ctx context.Context, query, scopeID string) ([]retrieval.Passage, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.passages, nil
}

func testPassages() []retrieval.Passage {
	return []retrieval.Passage{
		{Text: "Backpropagation computes gradients of the loss with respect to each weight by applying the chain rule layer by layer.", Score: 0.9, Source: "lecture-4"},
		{Text: "The gradients flow backwards from the output layer, which is why the algorithm is called backpropagation.", Score: 0.85, Source: "lecture-4"},
		{Text: "Stochastic gradient descent updates weights using the gradients that backpropagation provides.", Score: 0.6, Source: "lecture-5"},
	}
}
