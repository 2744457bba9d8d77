package bm25

import (
	"context"
	"testing"
)

func seedIndex() *Index {
	ix := New()
	ix.Add("ml", "lecture-4", "Backpropagation computes gradients of the loss using the chain rule.", nil)
	ix.Add("ml", "lecture-5", "Stochastic gradient descent updates weights using computed gradients.", nil)
	ix.Add("ml", "lecture-1", "The course covers supervised and unsupervised learning.", nil)
	ix.Add("history", "week-2", "The printing press transformed the spread of information.", nil)
	return ix
}

func TestRetrieveRanksByRelevance(t *testing.T) {
	ix := seedIndex()

	passages, err := ix.Retrieve(context.Background(), "backpropagation chain rule", "ml")
	if err != nil {
		t.Fatalf("Retrieve error: %v", err)
	}
	if len(passages) == 0 {
		t.Fatal("expected matches")
	}
	if passages[0].Source != "lecture-4" {
		t.Fatalf("expected lecture-4 first, got %v", passages[0])
	}
	if passages[0].Score != 1 {
		t.Fatalf("best hit must normalize to 1, got %v", passages[0].Score)
	}
}

func TestRetrieveScopeIsolation(t *testing.T) {
	ix := seedIndex()

	passages, err := ix.Retrieve(context.Background(), "printing press", "ml")
	if err != nil {
		t.Fatalf("Retrieve error: %v", err)
	}
	if len(passages) != 0 {
		t.Fatalf("scopes must not leak, got %v", passages)
	}
}

func TestRetrieveUnknownScope(t *testing.T) {
	ix := seedIndex()

	passages, err := ix.Retrieve(context.Background(), "anything", "missing-scope")
	if err != nil {
		t.Fatalf("unknown scope is not an error: %v", err)
	}
	if len(passages) != 0 {
		t.Fatalf("expected no passages, got %v", passages)
	}
}

func TestRetrieveNoMatches(t *testing.T) {
	ix := seedIndex()

	passages, err := ix.Retrieve(context.Background(), "quantum chromodynamics", "ml")
	if err != nil {
		t.Fatalf("Retrieve error: %v", err)
	}
	if len(passages) != 0 {
		t.Fatalf("expected no matches, got %v", passages)
	}
}

func TestRetrieveLimit(t *testing.T) {
	ix := New(WithLimit(1))
	ix.Add("s", "a", "gradient methods for training", nil)
	ix.Add("s", "b", "gradient clipping during training", nil)

	passages, err := ix.Retrieve(context.Background(), "gradient training", "s")
	if err != nil {
		t.Fatalf("Retrieve error: %v", err)
	}
	if len(passages) != 1 {
		t.Fatalf("expected the limit to apply, got %d", len(passages))
	}
}
