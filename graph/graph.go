package graph

import (
	"context"
	"fmt"
)

// NodeType represents the type of a node in the graph
type NodeType string

const (
	NodeTypeStart     NodeType = "start"
	NodeTypeEnd       NodeType = "end"
	NodeTypeStage     NodeType = "stage"
	NodeTypeCondition NodeType = "condition"
)

// State represents the execution state passed between nodes
type State map[string]any

// NodeFunc is the function executed by a node
type NodeFunc func(context.Context, State) (State, error)

// ConditionFunc evaluates a condition and returns the routing key
type ConditionFunc func(context.Context, State) (string, error)

// Observer is notified after each node executes. Used to surface
// progress without coupling nodes to the event stream.
type Observer func(node string, err error)

// Node represents a node in the execution graph
type Node struct {
	Name      string
	Type      NodeType
	Execute   NodeFunc
	Condition ConditionFunc     // Only for condition nodes
	Next      string            // Single outgoing edge for non-condition nodes
	NextMap   map[string]string // For condition nodes: routing key -> next node
}

// Graph is a sequential execution graph with conditional routing. Unlike a
// general dataflow graph there is exactly one active node at a time: the
// deliberation loop is inherently sequential, each round depends on the
// previous decision.
type Graph struct {
	nodes     map[string]*Node
	startNode string
	maxVisits int
	observer  Observer
}

// NewGraph creates a new graph
func NewGraph() *Graph {
	return &Graph{
		nodes:     make(map[string]*Node),
		maxVisits: 10,
	}
}

// AddNode adds a node to the graph
func (g *Graph) AddNode(node *Node) {
	if node.Name == "" {
		panic("node name cannot be empty")
	}
	if _, exists := g.nodes[node.Name]; exists {
		panic(fmt.Sprintf("node %s already exists", node.Name))
	}
	switch node.Type {
	case NodeTypeCondition:
		if node.Condition == nil {
			panic(fmt.Sprintf("condition node %s must have non-nil Condition function", node.Name))
		}
	default:
		if node.Execute == nil {
			panic(fmt.Sprintf("node %s of type %s must have non-nil Execute function", node.Name, node.Type))
		}
	}
	g.nodes[node.Name] = node
	if node.Type == NodeTypeStart {
		g.startNode = node.Name
	}
}

// SetMaxVisits sets the maximum number of visits to a single node. The
// guard catches routing bugs; the deliberation loop's own round limit
// should always fire first.
func (g *Graph) SetMaxVisits(maxVisits int) {
	if maxVisits > 0 {
		g.maxVisits = maxVisits
	}
}

// SetObserver registers a callback invoked after every node execution.
func (g *Graph) SetObserver(obs Observer) {
	g.observer = obs
}

// Execute runs the graph from the start node until an end node returns.
func (g *Graph) Execute(ctx context.Context, initialState State) (State, error) {
	if g.startNode == "" {
		return nil, fmt.Errorf("start node not set")
	}

	state := initialState
	if state == nil {
		state = make(State)
	}

	visited := make(map[string]int)
	current := g.startNode

	for {
		if err := ctx.Err(); err != nil {
			return state, err
		}

		node, exists := g.nodes[current]
		if !exists {
			return nil, fmt.Errorf("node %s not found", current)
		}

		visited[current]++
		if visited[current] > g.maxVisits {
			return nil, fmt.Errorf("infinite loop detected at node %s", current)
		}

		if node.Type == NodeTypeCondition {
			key, err := node.Condition(ctx, state)
			if err != nil {
				return state, fmt.Errorf("error evaluating condition at node %s: %w", node.Name, err)
			}
			next, ok := node.NextMap[key]
			if !ok || next == "" {
				return state, fmt.Errorf("no route for key %q at node %s", key, node.Name)
			}
			current = next
			continue
		}

		next, err := node.Execute(ctx, state)
		if g.observer != nil {
			g.observer(node.Name, err)
		}
		if err != nil {
			return state, fmt.Errorf("error executing node %s: %w", node.Name, err)
		}
		state = next

		if node.Type == NodeTypeEnd {
			return state, nil
		}
		if node.Next == "" {
			return state, fmt.Errorf("no next node specified for node %s", node.Name)
		}
		current = node.Next
	}
}

// Builder helps build graphs fluently
type Builder struct {
	graph *Graph
}

// NewBuilder creates a new graph builder
func NewBuilder() *Builder {
	return &Builder{graph: NewGraph()}
}

// AddNode adds a node to the graph
func (b *Builder) AddNode(name string, nodeType NodeType, execute NodeFunc) *Builder {
	b.graph.AddNode(&Node{
		Name:    name,
		Type:    nodeType,
		Execute: execute,
	})
	return b
}

// AddConditionNode adds a condition node with its routing table
func (b *Builder) AddConditionNode(name string, condition ConditionFunc, nextMap map[string]string) *Builder {
	b.graph.AddNode(&Node{
		Name:      name,
		Type:      NodeTypeCondition,
		Condition: condition,
		NextMap:   nextMap,
	})
	return b
}

// AddEdge connects two nodes
func (b *Builder) AddEdge(from, to string) *Builder {
	node, exists := b.graph.nodes[from]
	if !exists {
		panic(fmt.Sprintf("node %s not found", from))
	}
	if node.Type == NodeTypeCondition {
		panic(fmt.Sprintf("node %s routes via its condition map", from))
	}
	node.Next = to
	return b
}

// Build returns the constructed graph
func (b *Builder) Build() *Graph {
	return b.graph
}
