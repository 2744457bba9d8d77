package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sweetpotato0/deliberate/message"
)

type flakyClient struct {
	calls    int
	failures int
	err      error
}

func (f *flakyClient) Generate(ctx context.Context, msgs []*message.Message) (*message.Message, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return message.NewMessage(message.RoleAssistant, "ok"), nil
}

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func TestWithRetryRecoversFromTransient(t *testing.T) {
	inner := &flakyClient{failures: 2, err: Transient("test", errors.New("rate limited"))}
	c := WithRetry(inner, fastRetry(3))

	resp, err := c.Generate(context.Background(), nil)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if resp.Text() != "ok" {
		t.Fatalf("unexpected response: %q", resp.Text())
	}
	if inner.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", inner.calls)
	}
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	inner := &flakyClient{failures: 10, err: Transient("test", errors.New("still down"))}
	c := WithRetry(inner, fastRetry(3))

	if _, err := c.Generate(context.Background(), nil); err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if inner.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", inner.calls)
	}
}

func TestWithRetryPermanentNotRetried(t *testing.T) {
	inner := &flakyClient{failures: 10, err: Permanent("test", errors.New("bad request"))}
	c := WithRetry(inner, fastRetry(3))

	if _, err := c.Generate(context.Background(), nil); err == nil {
		t.Fatal("expected permanent error")
	}
	if inner.calls != 1 {
		t.Fatalf("permanent failures must not retry, got %d attempts", inner.calls)
	}
}

func TestWithRetryUnknownNotRetried(t *testing.T) {
	inner := &flakyClient{failures: 10, err: errors.New("unclassified")}
	c := WithRetry(inner, fastRetry(3))

	if _, err := c.Generate(context.Background(), nil); err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 1 {
		t.Fatalf("unclassified failures must not retry, got %d attempts", inner.calls)
	}
}

func TestClassify(t *testing.T) {
	if got := Classify(Transient("op", errors.New("x"))); got != ClassTransient {
		t.Fatalf("expected transient, got %v", got)
	}
	if got := Classify(Permanent("op", errors.New("x"))); got != ClassPermanent {
		t.Fatalf("expected permanent, got %v", got)
	}
	if got := Classify(context.Canceled); got != ClassPermanent {
		t.Fatalf("cancellation must not retry, got %v", got)
	}
	if got := Classify(context.DeadlineExceeded); got != ClassTransient {
		t.Fatalf("deadline expiry is transient, got %v", got)
	}
	if got := Classify(errors.New("mystery")); got != ClassUnknown {
		t.Fatalf("expected unknown, got %v", got)
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{429, ClassTransient},
		{500, ClassTransient},
		{503, ClassTransient},
		{400, ClassPermanent},
		{404, ClassPermanent},
		{200, ClassUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyStatus(tt.status); got != tt.want {
			t.Fatalf("ClassifyStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestServiceErrorUnwrap(t *testing.T) {
	base := errors.New("root cause")
	wrapped := Transient("op", base)
	if !errors.Is(wrapped, base) {
		t.Fatal("ServiceError must unwrap to the base error")
	}
}
