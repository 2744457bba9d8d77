package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	deliberr "github.com/sweetpotato0/deliberate/errors"
	"github.com/sweetpotato0/deliberate/llm"
	"github.com/sweetpotato0/deliberate/pkg/logging"
	"github.com/sweetpotato0/deliberate/pkg/telemetry"
)

// Config controls the speculative retrieval stage. The numeric thresholds
// are deliberately configurable; deployments tune them per corpus.
type Config struct {
	QualityThreshold float64 // Below this the orchestrator reframes (default 0.7)
	MinResults       int     // Result count below which quality is suspect (default 3)
	MaxPassages      int     // Cap on the final passage list (default 10)
	MaxAlternatives  int     // Reframed queries issued concurrently (default 3)
	OverlapThreshold float64 // Token-overlap ratio treated as duplicate (default 0.70)
	AssessTopN       int     // Passages fed to the quality assessment (default 5)
}

// DefaultConfig returns the retrieval defaults.
func DefaultConfig() Config {
	return Config{
		QualityThreshold: 0.7,
		MinResults:       3,
		MaxPassages:      10,
		MaxAlternatives:  3,
		OverlapThreshold: 0.70,
		AssessTopN:       5,
	}
}

// Orchestrator runs one retrieval with optional speculative reframing:
// retrieve, score, reframe if the score is poor, fan out the alternatives,
// merge the best one back in.
type Orchestrator struct {
	retriever Retriever
	assessor  llm.Client // Optional; nil falls back to score averaging
	cfg       Config
	tok       tokenizer
	logger    *slog.Logger
}

// NewOrchestrator wires a retrieval orchestrator. assessor may be nil, in
// which case quality is the average relevance of the top results and query
// reframing is disabled.
func NewOrchestrator(retriever Retriever, assessor llm.Client, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.QualityThreshold <= 0 {
		cfg.QualityThreshold = def.QualityThreshold
	}
	if cfg.MinResults <= 0 {
		cfg.MinResults = def.MinResults
	}
	if cfg.MaxPassages <= 0 {
		cfg.MaxPassages = def.MaxPassages
	}
	if cfg.MaxAlternatives <= 0 {
		cfg.MaxAlternatives = def.MaxAlternatives
	}
	if cfg.OverlapThreshold <= 0 {
		cfg.OverlapThreshold = def.OverlapThreshold
	}
	if cfg.AssessTopN <= 0 {
		cfg.AssessTopN = def.AssessTopN
	}
	return &Orchestrator{
		retriever: retriever,
		assessor:  assessor,
		cfg:       cfg,
		tok:       defaultTokenizer,
		logger:    logging.WithComponent("retrieval"),
	}
}

const qualityPrompt = `You are a retrieval quality assessor.
Analyze the relevance of retrieved passages to the query.
Score from 0 to 1, where 1 is perfect relevance.
Respond on one line: SCORE: X.XX | REASON: ...`

const reframePrompt = `You are an expert at reformulating queries for better retrieval.
When initial retrieval quality is poor, generate alternative queries that might yield better results.
Generate 3 alternative query formulations that:
1. Use different terminology or perspectives
2. Are more specific or break down the concept
3. Target different aspects of the topic
Format each query on a new line starting with "QUERY:".`

// Run performs the full orchestrated retrieval for one query.
func (o *Orchestrator) Run(ctx context.Context, query, scopeID string) (*Result, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "retrieval.run")
	var runErr error
	defer func() { telemetry.End(span, runErr) }()

	initial, err := o.retriever.Retrieve(ctx, query, scopeID)
	if err != nil {
		runErr = fmt.Errorf("%w: %v", deliberr.ErrRetrievalFailed, err)
		return nil, runErr
	}

	quality := o.assessQuality(ctx, query, initial)
	o.logger.Info("initial retrieval scored",
		"scope", scopeID,
		"passages", len(initial),
		"quality", quality,
	)

	result := &Result{
		Passages: initial,
		Quality:  quality,
		Strategy: StrategyInitial,
		Status:   StatusOK,
	}

	if o.shouldReframe(quality, initial) && o.assessor != nil {
		o.speculate(ctx, query, scopeID, result)
	}

	if len(result.Passages) > o.cfg.MaxPassages {
		result.Passages = result.Passages[:o.cfg.MaxPassages]
	}
	if len(result.Passages) == 0 {
		result.Status = StatusNoResults
		result.Suggestion = fmt.Sprintf(
			"Try rephrasing %q to be more specific about the course material.", query)
	}
	return result, nil
}

// Average relevance below this counts as weakly relevant.
const lowRelevanceScore = 0.5

// shouldReframe gates speculative retrieval: poor quality alone is not
// enough, the result set must also be thin or weakly relevant.
func (o *Orchestrator) shouldReframe(quality float64, passages []Passage) bool {
	if quality >= o.cfg.QualityThreshold {
		return false
	}
	return len(passages) < o.cfg.MinResults ||
		averageScore(passages, o.cfg.AssessTopN) < lowRelevanceScore
}

type alternative struct {
	index    int
	query    string
	passages []Passage
	quality  float64
}

// speculate reframes the query, retrieves the alternatives concurrently
// and folds the single best one into result. Failed alternatives are
// dropped, never fatal.
func (o *Orchestrator) speculate(ctx context.Context, query, scopeID string, result *Result) {
	queries := o.reframeQueries(ctx, query, result.Quality, len(result.Passages))
	result.ReframedQueries = queries
	if len(queries) == 0 {
		return
	}

	var (
		mu         sync.Mutex
		candidates []alternative
	)
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			passages, err := o.retriever.Retrieve(gctx, q, scopeID)
			if err != nil {
				o.logger.Warn("alternative retrieval failed", "query", q, "error", err)
				return nil
			}
			if len(passages) == 0 {
				return nil
			}
			quality := o.assessQuality(gctx, query, passages)
			mu.Lock()
			candidates = append(candidates, alternative{
				index:    i,
				query:    q,
				passages: passages,
				quality:  quality,
			})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // Branches never return errors; partial failure is tolerated.

	best, ok := pickBest(candidates, result.Quality)
	if !ok {
		o.logger.Info("no alternative beat the initial retrieval")
		result.Strategy = StrategyInitialOnly
		return
	}

	o.logger.Info("merging best alternative",
		"query", best.query,
		"quality", best.quality,
	)
	result.Passages = mergeDedup(o.tok, result.Passages, best.passages, o.cfg.OverlapThreshold)
	result.Quality = o.assessQuality(ctx, query, result.Passages)
	result.Strategy = RefinedStrategy(best.index)
}

// pickBest selects the highest-quality alternative strictly above the
// initial score. Ties keep the initial results.
func pickBest(candidates []alternative, initialQuality float64) (alternative, bool) {
	var best alternative
	found := false
	for _, c := range candidates {
		if c.quality <= initialQuality {
			continue
		}
		if !found || c.quality > best.quality {
			best = c
			found = true
		}
	}
	return best, found
}

// RefinedStrategy returns the strategy label for the i-th (0-based)
// reframed query.
func RefinedStrategy(i int) string {
	return fmt.Sprintf("refined_query_%d", i+1)
}

// assessQuality scores a passage set against the query. With an assessor
// configured it asks for a grounded SCORE line; otherwise, or when the
// assessment fails, it averages the top relevance scores.
func (o *Orchestrator) assessQuality(ctx context.Context, query string, passages []Passage) float64 {
	if len(passages) == 0 {
		return 0
	}
	if o.assessor != nil {
		if score, ok := o.assessWithModel(ctx, query, passages); ok {
			return score
		}
	}
	return averageScore(passages, o.cfg.AssessTopN)
}

func (o *Orchestrator) assessWithModel(ctx context.Context, query string, passages []Passage) (float64, bool) {
	var b strings.Builder
	n := min(len(passages), o.cfg.AssessTopN)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "Passage %d (score: %.3f):\n%s\n\n", i+1, passages[i].Score, clip(passages[i].Text, 500))
	}
	user := fmt.Sprintf("Query: %s\n\nRetrieved Passages:\n%s", query, b.String())

	resp, err := llm.Complete(ctx, o.assessor, qualityPrompt, user)
	if err != nil {
		o.logger.Warn("quality assessment failed", "error", err)
		return 0, false
	}
	score, ok := parseScoreLine(resp)
	if !ok {
		o.logger.Debug("quality assessment response had no SCORE line")
	}
	return score, ok
}

// reframeQueries asks the assessor for up to MaxAlternatives alternative
// formulations. Placeholder echoes of the prompt template are discarded.
func (o *Orchestrator) reframeQueries(ctx context.Context, query string, quality float64, count int) []string {
	issues := o.describeQualityIssues(quality, count)
	user := fmt.Sprintf("Original Query: %s\n\nInitial Results Quality: %.2f\nQuality Issues: %s",
		query, quality, issues)

	resp, err := llm.Complete(ctx, o.assessor, reframePrompt, user)
	if err != nil {
		o.logger.Warn("query reframing failed", "error", err)
		return nil
	}

	var queries []string
	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(line)
		rest, ok := strings.CutPrefix(line, "QUERY:")
		if !ok {
			continue
		}
		q := strings.TrimSpace(rest)
		if q == "" || isPlaceholder(q) {
			continue
		}
		queries = append(queries, q)
		if len(queries) >= o.cfg.MaxAlternatives {
			break
		}
	}
	return queries
}

func (o *Orchestrator) describeQualityIssues(quality float64, count int) string {
	var issues []string
	if count < o.cfg.MinResults {
		issues = append(issues, fmt.Sprintf("Too few results (%d < %d)", count, o.cfg.MinResults))
	}
	if quality < lowRelevanceScore {
		issues = append(issues, fmt.Sprintf("Low average relevance score (%.2f)", quality))
	}
	if len(issues) == 0 {
		return "General low relevance"
	}
	return strings.Join(issues, "; ")
}

func isPlaceholder(q string) bool {
	return strings.HasPrefix(q, "{") && strings.HasSuffix(q, "}")
}

// parseScoreLine extracts the X.XX from a "SCORE: X.XX | ..." response.
func parseScoreLine(resp string) (float64, bool) {
	idx := strings.Index(resp, "SCORE:")
	if idx < 0 {
		return 0, false
	}
	rest := resp[idx+len("SCORE:"):]
	if cut := strings.IndexAny(rest, "|\n"); cut >= 0 {
		rest = rest[:cut]
	}
	score, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
	if err != nil {
		return 0, false
	}
	return clamp01(score), true
}

func averageScore(passages []Passage, topN int) float64 {
	n := min(len(passages), topN)
	if n == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += passages[i].Score
	}
	return clamp01(sum / float64(n))
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

// clip truncates text to at most limit bytes without splitting a rune.
func clip(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
