package graph

import (
	"context"
	"errors"
	"testing"
)

func passthrough(ctx context.Context, s State) (State, error) {
	return s, nil
}

func TestExecuteLinear(t *testing.T) {
	var order []string
	record := func(name string) NodeFunc {
		return func(ctx context.Context, s State) (State, error) {
			order = append(order, name)
			return s, nil
		}
	}

	g := NewBuilder().
		AddNode("start", NodeTypeStart, record("start")).
		AddNode("middle", NodeTypeStage, record("middle")).
		AddNode("end", NodeTypeEnd, record("end")).
		AddEdge("start", "middle").
		AddEdge("middle", "end").
		Build()

	if _, err := g.Execute(context.Background(), nil); err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	want := []string{"start", "middle", "end"}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("execution order %v, want %v", order, want)
		}
	}
}

func TestExecuteConditionRouting(t *testing.T) {
	g := NewBuilder().
		AddNode("start", NodeTypeStart, func(ctx context.Context, s State) (State, error) {
			s["count"] = 0
			return s, nil
		}).
		AddNode("work", NodeTypeStage, func(ctx context.Context, s State) (State, error) {
			s["count"] = s["count"].(int) + 1
			return s, nil
		}).
		AddConditionNode("check", func(ctx context.Context, s State) (string, error) {
			if s["count"].(int) < 3 {
				return "again", nil
			}
			return "done", nil
		}, map[string]string{"again": "work", "done": "end"}).
		AddNode("end", NodeTypeEnd, passthrough).
		AddEdge("start", "work").
		AddEdge("work", "check").
		Build()

	final, err := g.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if final["count"] != 3 {
		t.Fatalf("expected 3 loop passes, got %v", final["count"])
	}
}

func TestExecuteNoRouteForKey(t *testing.T) {
	g := NewBuilder().
		AddNode("start", NodeTypeStart, passthrough).
		AddConditionNode("check", func(ctx context.Context, s State) (string, error) {
			return "unmapped", nil
		}, map[string]string{"known": "end"}).
		AddNode("end", NodeTypeEnd, passthrough).
		AddEdge("start", "check").
		Build()

	if _, err := g.Execute(context.Background(), nil); err == nil {
		t.Fatal("expected error for unmapped routing key")
	}
}

func TestExecuteNodeError(t *testing.T) {
	boom := errors.New("stage failed")
	g := NewBuilder().
		AddNode("start", NodeTypeStart, func(ctx context.Context, s State) (State, error) {
			return nil, boom
		}).
		AddNode("end", NodeTypeEnd, passthrough).
		AddEdge("start", "end").
		Build()

	if _, err := g.Execute(context.Background(), nil); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped stage error, got %v", err)
	}
}

func TestExecuteInfiniteLoopGuard(t *testing.T) {
	g := NewBuilder().
		AddNode("start", NodeTypeStart, passthrough).
		AddNode("loop", NodeTypeStage, passthrough).
		AddConditionNode("check", func(ctx context.Context, s State) (string, error) {
			return "again", nil
		}, map[string]string{"again": "loop"}).
		AddEdge("start", "loop").
		AddEdge("loop", "check").
		Build()
	g.SetMaxVisits(5)

	if _, err := g.Execute(context.Background(), nil); err == nil {
		t.Fatal("expected loop guard to trip")
	}
}

func TestExecuteContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := NewBuilder().
		AddNode("start", NodeTypeStart, passthrough).
		AddNode("end", NodeTypeEnd, passthrough).
		AddEdge("start", "end").
		Build()

	if _, err := g.Execute(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestExecuteObserver(t *testing.T) {
	g := NewBuilder().
		AddNode("start", NodeTypeStart, passthrough).
		AddNode("end", NodeTypeEnd, passthrough).
		AddEdge("start", "end").
		Build()

	var seen []string
	g.SetObserver(func(node string, err error) {
		seen = append(seen, node)
	})

	if _, err := g.Execute(context.Background(), nil); err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if len(seen) != 2 || seen[0] != "start" || seen[1] != "end" {
		t.Fatalf("observer saw %v", seen)
	}
}

func TestAddNodeValidation(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for stage node without Execute")
		}
	}()
	g := NewGraph()
	g.AddNode(&Node{Name: "broken", Type: NodeTypeStage})
}
