package deliberation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	deliberr "github.com/sweetpotato0/deliberate/errors"
	"github.com/sweetpotato0/deliberate/graph"
	"github.com/sweetpotato0/deliberate/pkg/logging"
	"github.com/sweetpotato0/deliberate/pkg/telemetry"
	"github.com/sweetpotato0/deliberate/retrieval"
)

const stateKey = "workflow"

// Stage names, also used as timing and event labels.
const (
	StageRetrieving   = "retrieving"
	StageDrafting     = "drafting"
	StageCritiquing   = "critiquing"
	StageDeciding     = "deciding"
	StageSynthesizing = "synthesizing"
)

// Engine runs bounded multi-stage deliberations: retrieve, draft,
// critique, decide, and loop until the moderator terminates the debate,
// then synthesize the final answer.
type Engine struct {
	cfg        *Config
	orch       *retrieval.Orchestrator
	strategist *Strategist
	critic     *Critic
	moderator  *Moderator
	reporter   *Reporter
	logger     *slog.Logger
}

// NewEngine builds an engine over the given retriever. At minimum a
// client must be configured via WithClient or the per-stage options.
func NewEngine(retriever retrieval.Retriever, opts ...Option) (*Engine, error) {
	cfg := applyOptions(opts...)
	if cfg.DrafterClient == nil || cfg.CriticClient == nil ||
		cfg.ModeratorClient == nil || cfg.ReporterClient == nil {
		return nil, fmt.Errorf("%w: every stage needs a client, see WithClient", deliberr.ErrInvalidInput)
	}
	if retriever == nil {
		return nil, fmt.Errorf("%w: retriever is required", deliberr.ErrInvalidInput)
	}
	return &Engine{
		cfg:        cfg,
		orch:       retrieval.NewOrchestrator(retriever, cfg.DrafterClient, cfg.Retrieval),
		strategist: NewStrategist(cfg.DrafterClient, cfg),
		critic:     NewCritic(cfg.CriticClient, cfg),
		moderator:  NewModerator(cfg.ModeratorClient, cfg),
		reporter:   NewReporter(cfg.ReporterClient, cfg),
		logger:     logging.WithComponent("engine"),
	}, nil
}

// Run executes one deliberation synchronously and returns the final
// answer with the terminal workflow state.
func (e *Engine) Run(ctx context.Context, q Query) (*FinalAnswer, *WorkflowState, error) {
	events, state, err := e.start(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	var terminal Event
	for ev := range events {
		if ev.Terminal() {
			terminal = ev
		}
	}
	if terminal.Kind == EventFailed {
		return terminal.Answer, state, terminal.Err
	}
	return terminal.Answer, state, nil
}

// Process executes one deliberation and streams progress events. The
// channel is closed after exactly one terminal event; the terminal
// event carries the answer, best-effort even on failure.
func (e *Engine) Process(ctx context.Context, q Query) (<-chan Event, error) {
	events, _, err := e.start(ctx, q)
	return events, err
}

func (e *Engine) start(ctx context.Context, q Query) (<-chan Event, *WorkflowState, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, nil, fmt.Errorf("%w: empty query", deliberr.ErrInvalidInput)
	}
	maxRounds := e.cfg.MaxRounds
	if q.MaxRounds > 0 {
		maxRounds = q.MaxRounds
	}

	state := &WorkflowState{Query: q}
	run := &runContext{
		engine:    e,
		state:     state,
		maxRounds: maxRounds,
		// Sized so emits never block a slow consumer.
		events: make(chan Event, maxRounds*10+10),
	}
	go run.execute(ctx)
	return run.events, state, nil
}

// runContext is the per-run mutable context shared by the graph nodes.
type runContext struct {
	engine    *Engine
	state     *WorkflowState
	maxRounds int
	events    chan Event
}

func (r *runContext) execute(ctx context.Context) {
	defer close(r.events)

	ctx, span := telemetry.Tracer().Start(ctx, "deliberation.run",
		trace.WithAttributes(attribute.String("query.scope", r.state.Query.ScopeID)))
	var runErr error
	defer func() { telemetry.End(span, runErr) }()

	g := r.buildGraph()
	gs := graph.State{stateKey: r.state}
	if _, err := g.Execute(ctx, gs); err != nil {
		runErr = err
		r.state.recordError(err)
		r.engine.logger.Error("deliberation failed", "error", err, "round", r.state.Round)
		if r.state.Answer == nil {
			r.state.Answer = r.engine.reporter.minimalAnswer(r.state)
		}
		r.archive(ctx)
		r.emit(Event{Kind: EventFailed, Round: r.state.Round, Message: err.Error(), Answer: r.state.Answer, Err: err})
		return
	}

	span.SetAttributes(
		attribute.Int("rounds", r.state.Round),
		attribute.String("outcome", string(r.outcome())),
	)
	r.archive(ctx)
	r.emit(Event{Kind: EventCompleted, Round: r.state.Round, Message: string(r.outcome()), Answer: r.state.Answer})
}

func (r *runContext) buildGraph() *graph.Graph {
	b := graph.NewBuilder()
	b.AddNode(StageRetrieving, graph.NodeTypeStart, r.stage(StageRetrieving, r.retrieve))
	b.AddConditionNode("material", r.routeMaterial, map[string]string{
		"found": StageDrafting,
		"empty": StageSynthesizing,
	})
	b.AddNode(StageDrafting, graph.NodeTypeStage, r.stage(StageDrafting, r.draft))
	b.AddNode(StageCritiquing, graph.NodeTypeStage, r.stage(StageCritiquing, r.critique))
	b.AddNode(StageDeciding, graph.NodeTypeStage, r.stage(StageDeciding, r.decide))
	b.AddConditionNode("routing", r.routeDecision, map[string]string{
		"iterate":  StageDrafting,
		"terminal": StageSynthesizing,
	})
	b.AddNode(StageSynthesizing, graph.NodeTypeEnd, r.stage(StageSynthesizing, r.synthesize))
	b.AddEdge(StageRetrieving, "material")
	b.AddEdge(StageDrafting, StageCritiquing)
	b.AddEdge(StageCritiquing, StageDeciding)
	b.AddEdge(StageDeciding, "routing")
	g := b.Build()
	g.SetMaxVisits(r.maxRounds + 3)
	g.SetObserver(func(node string, err error) {
		if err != nil {
			r.engine.logger.Warn("stage errored", "stage", node, "error", err)
		}
	})
	return g
}

// stage wraps a stage function with timing, tracing, progress events
// and a best-effort checkpoint at the transition out of the stage.
func (r *runContext) stage(name string, fn func(context.Context) error) graph.NodeFunc {
	return func(ctx context.Context, gs graph.State) (graph.State, error) {
		ctx, span := telemetry.Tracer().Start(ctx, "stage."+name)
		r.emit(Event{Kind: EventStageStarted, Stage: name, Round: r.state.Round})

		start := time.Now()
		err := fn(ctx)
		elapsed := time.Since(start)
		telemetry.End(span, err)

		r.state.recordTiming(name, elapsed)
		if err != nil {
			return gs, err
		}
		r.checkpoint(ctx)
		r.emit(Event{Kind: EventStageFinished, Stage: name, Round: r.state.Round, Duration: elapsed})
		return gs, nil
	}
}

func (r *runContext) retrieve(ctx context.Context) error {
	result, err := r.engine.orch.Run(ctx, r.state.Query.Text, r.state.Query.ScopeID)
	if err != nil {
		return err
	}
	r.state.Retrieval = result
	return nil
}

func (r *runContext) draft(ctx context.Context) error {
	r.state.Round++
	var (
		draft *Draft
		err   error
	)
	if r.state.Draft == nil {
		draft, err = r.engine.strategist.Draft(ctx, r.state.Query, r.state.Retrieval.Passages)
	} else {
		feedback := ""
		if r.state.Decision != nil {
			feedback = r.state.Decision.Feedback
		}
		draft, err = r.engine.strategist.Refine(ctx, r.state.Query, r.state.Draft, feedback, r.state.Retrieval.Passages)
	}
	if err != nil {
		return err
	}
	r.state.Draft = draft
	return nil
}

// critique replaces the issue list every round. Issues from earlier
// rounds never carry over; a refined draft is judged fresh. A failed
// pass lands in the error log while the other passes' findings stand.
func (r *runContext) critique(ctx context.Context) error {
	issues, err := r.engine.critic.Review(ctx, r.state.Draft, r.state.Retrieval.Passages)
	if err != nil {
		r.state.recordError(err)
	}
	r.state.Issues = issues
	return nil
}

func (r *runContext) decide(ctx context.Context) error {
	decision := r.engine.moderator.Decide(ctx, r.state, r.maxRounds)
	r.state.Decision = decision
	r.emit(Event{
		Kind:    EventRoundDecided,
		Stage:   StageDeciding,
		Round:   r.state.Round,
		Message: string(decision.Outcome),
	})
	return nil
}

func (r *runContext) synthesize(ctx context.Context) error {
	r.state.Answer = r.engine.reporter.Report(ctx, r.state)
	if r.state.Retrieval != nil && r.state.Retrieval.Status == retrieval.StatusNoResults {
		r.state.Answer.Sections["suggestion"] = r.state.Retrieval.Suggestion
	}
	return nil
}

func (r *runContext) routeMaterial(ctx context.Context, gs graph.State) (string, error) {
	if r.state.Retrieval == nil || r.state.Retrieval.Status == retrieval.StatusNoResults {
		return "empty", nil
	}
	return "found", nil
}

func (r *runContext) routeDecision(ctx context.Context, gs graph.State) (string, error) {
	switch r.outcome() {
	case OutcomeIterate:
		return "iterate", nil
	case OutcomeConverged, OutcomeDeadlock, OutcomeEscalation:
		return "terminal", nil
	default:
		return "", fmt.Errorf("%w: %q", deliberr.ErrUnknownDecision, r.outcome())
	}
}

func (r *runContext) outcome() Outcome {
	if r.state.Decision == nil {
		return ""
	}
	return r.state.Decision.Outcome
}

func (r *runContext) checkpoint(ctx context.Context) {
	store := r.engine.cfg.Checkpoints
	if store == nil || r.state.Query.SessionID == "" {
		return
	}
	if err := store.Save(ctx, r.state.Query.SessionID, r.state); err != nil {
		r.engine.logger.Warn("checkpoint save failed", "session", r.state.Query.SessionID, "error", err)
	}
}

func (r *runContext) archive(ctx context.Context) {
	if r.engine.cfg.Archive == nil {
		return
	}
	if err := r.engine.cfg.Archive.Archive(ctx, r.state); err != nil {
		r.engine.logger.Warn("archive failed", "error", err)
	}
}

// emit delivers progress events best-effort. The terminal event is
// never dropped.
func (r *runContext) emit(ev Event) {
	if ev.Terminal() {
		r.events <- ev
		return
	}
	select {
	case r.events <- ev:
	default:
		r.engine.logger.Warn("event dropped, consumer too slow", "kind", ev.Kind, "stage", ev.Stage)
	}
}
