package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/sweetpotato0/deliberate/message"
	"github.com/sweetpotato0/deliberate/pkg/logging"
)

// loggingClient logs every completion call with its latency and outcome.
type loggingClient struct {
	inner  Client
	logger *slog.Logger
}

// WithLogging wraps c so that every call is logged at debug level, with
// failures promoted to warn. Compose outside WithRetry to log once per
// logical call, inside to log every attempt.
func WithLogging(c Client) Client {
	return &loggingClient{
		inner:  c,
		logger: logging.WithComponent("llm"),
	}
}

func (l *loggingClient) Generate(ctx context.Context, msgs []*message.Message) (*message.Message, error) {
	start := time.Now()
	resp, err := l.inner.Generate(ctx, msgs)
	elapsed := time.Since(start)
	if err != nil {
		l.logger.Warn("completion failed",
			"messages", len(msgs),
			"elapsed", elapsed,
			"error", err,
		)
		return nil, err
	}
	l.logger.Debug("completion ok",
		"messages", len(msgs),
		"elapsed", elapsed,
		"response_chars", len(resp.Content),
	)
	return resp, nil
}
