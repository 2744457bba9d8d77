package deliberation

import (
	"github.com/sweetpotato0/deliberate/llm"
	"github.com/sweetpotato0/deliberate/retrieval"
)

// Config holds all engine settings. Construct via defaults and Options;
// zero values are filled in by defaultConfig.
type Config struct {
	MaxRounds                   int
	QualityThreshold            float64
	CriticalEscalationThreshold int
	ConfidenceCap               float64
	OverlapThreshold            float64
	MaxSources                  int
	ContextTopK                 int

	StrategistPrompt string
	RefinePrompt     string
	LogicPrompt      string
	FactPrompt       string
	GroundingPrompt  string
	ModeratorPrompt  string
	ReporterPrompt   string
	IndicatorPrompt  string

	Retrieval retrieval.Config

	DrafterClient   llm.Client
	CriticClient    llm.Client
	ModeratorClient llm.Client
	ReporterClient  llm.Client

	Checkpoints CheckpointStore
	Archive     Archiver
}

// Option adjusts the engine configuration.
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		MaxRounds:                   3,
		QualityThreshold:            0.7,
		CriticalEscalationThreshold: 2,
		ConfidenceCap:               0.7,
		OverlapThreshold:            0.70,
		MaxSources:                  5,
		ContextTopK:                 5,
		StrategistPrompt:            defaultStrategistPrompt,
		RefinePrompt:                defaultRefinePrompt,
		LogicPrompt:                 defaultLogicPrompt,
		FactPrompt:                  defaultFactPrompt,
		GroundingPrompt:             defaultGroundingPrompt,
		ModeratorPrompt:             defaultModeratorPrompt,
		ReporterPrompt:              defaultReporterPrompt,
		IndicatorPrompt:             defaultIndicatorPrompt,
		Retrieval:                   retrieval.DefaultConfig(),
	}
}

func applyOptions(opts ...Option) *Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithMaxRounds sets the default debate round limit. A query carrying
// its own MaxRounds overrides it in either direction.
func WithMaxRounds(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxRounds = n
		}
	}
}

// WithQualityThreshold sets the retrieval quality score below which the
// engine reframes the query.
func WithQualityThreshold(t float64) Option {
	return func(c *Config) {
		if t > 0 && t <= 1 {
			c.QualityThreshold = t
			c.Retrieval.QualityThreshold = t
		}
	}
}

// WithCriticalEscalationThreshold sets how many critical issues in one
// round force an escalation.
func WithCriticalEscalationThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.CriticalEscalationThreshold = n
		}
	}
}

// WithConfidenceCap caps the confidence reported on answers whose
// debate did not converge. Converged answers report the convergence
// score directly.
func WithConfidenceCap(cap float64) Option {
	return func(c *Config) {
		if cap > 0 && cap <= 1 {
			c.ConfidenceCap = cap
		}
	}
}

// WithOverlapThreshold sets the token-overlap ratio above which two
// retrieved passages count as duplicates.
func WithOverlapThreshold(t float64) Option {
	return func(c *Config) {
		if t > 0 && t <= 1 {
			c.OverlapThreshold = t
			c.Retrieval.OverlapThreshold = t
		}
	}
}

// WithContextTopK sets how many of the top-ranked passages are fed
// into the drafting and review prompts.
func WithContextTopK(k int) Option {
	return func(c *Config) {
		if k > 0 {
			c.ContextTopK = k
		}
	}
}

// WithRetrievalConfig replaces the retrieval stage settings wholesale.
func WithRetrievalConfig(rc retrieval.Config) Option {
	return func(c *Config) { c.Retrieval = rc }
}

// WithClient sets one client for every stage. Per-stage options applied
// afterwards override individual stages.
func WithClient(client llm.Client) Option {
	return func(c *Config) {
		c.DrafterClient = client
		c.CriticClient = client
		c.ModeratorClient = client
		c.ReporterClient = client
	}
}

// WithDrafterClient sets the model used to draft and refine answers.
func WithDrafterClient(client llm.Client) Option {
	return func(c *Config) { c.DrafterClient = client }
}

// WithCriticClient sets the model used for review passes.
func WithCriticClient(client llm.Client) Option {
	return func(c *Config) { c.CriticClient = client }
}

// WithModeratorClient sets the model used for round decisions.
func WithModeratorClient(client llm.Client) Option {
	return func(c *Config) { c.ModeratorClient = client }
}

// WithReporterClient sets the model used for final synthesis.
func WithReporterClient(client llm.Client) Option {
	return func(c *Config) { c.ReporterClient = client }
}

// WithStrategistPrompt overrides the drafting system prompt.
func WithStrategistPrompt(p string) Option {
	return func(c *Config) {
		if p != "" {
			c.StrategistPrompt = p
		}
	}
}

// WithModeratorPrompt overrides the moderation system prompt.
func WithModeratorPrompt(p string) Option {
	return func(c *Config) {
		if p != "" {
			c.ModeratorPrompt = p
		}
	}
}

// WithCheckpoints persists workflow state at stage transitions.
func WithCheckpoints(store CheckpointStore) Option {
	return func(c *Config) { c.Checkpoints = store }
}

// WithArchive records completed runs for later inspection.
func WithArchive(a Archiver) Option {
	return func(c *Config) { c.Archive = a }
}
