// Package llm wraps the hosted chat-completion service. The Gateway retries
// transient failures and never hands a raw error to the user: every failed call
// also yields a placeholder text suitable for display.
package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"newco.ai/founder-scout/internal/metrics"
	"newco.ai/founder-scout/internal/store"
)

const MaxAttempts = 3

// Profile is the generation configuration for one call purpose.
type Profile struct {
	Purpose          string
	Model            string
	Temperature      float32
	MaxTokens        int
	TopP             float32
	PresencePenalty  float32
	FrequencyPenalty float32
	Timeout          time.Duration
}

type Request struct {
	Profile  Profile
	Messages []store.Message
	Stream   bool
}

// Provider is one completion API. Implementations return raw or
// pre-classified errors; retry policy lives in the Gateway.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
	Stream(ctx context.Context, req Request) (FragmentStream, error)
	Close() error
}

// FragmentStream yields response fragments until Recv returns io.EOF.
type FragmentStream interface {
	Recv() (string, error)
	Close()
}

type Gateway struct {
	provider  Provider
	baseDelay time.Duration
	log       zerolog.Logger
	metrics   *metrics.Metrics
	sleep     func(ctx context.Context, d time.Duration) error
}

type Option func(*Gateway)

// WithSleep replaces the wait between attempts. Tests use it to record delays.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Gateway) { g.sleep = sleep }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

func NewGateway(provider Provider, baseDelay time.Duration, log zerolog.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		provider:  provider,
		baseDelay: baseDelay,
		log:       log,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) Close() error {
	return g.provider.Close()
}

// Complete returns the full reply text. On failure it returns the
// kind-specific placeholder together with a *RemoteError.
func (g *Gateway) Complete(ctx context.Context, messages []store.Message, profile Profile) (string, error) {
	start := time.Now()
	defer func() { g.metrics.ObserveCompletion(profile.Purpose, time.Since(start)) }()

	req := Request{Profile: profile, Messages: messages}
	var (
		lastErr  error
		kind     ErrorKind
		attempts int
	)
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		attempts++
		text, err := g.completeOnce(ctx, req)
		if err == nil {
			g.metrics.ObserveCompletionAttempt(profile.Purpose, "ok")
			return text, nil
		}

		lastErr, kind = err, classify(err)
		g.metrics.ObserveCompletionAttempt(profile.Purpose, kind.String())
		g.log.Warn().Err(err).Str("purpose", profile.Purpose).Str("kind", kind.String()).Int("attempt", attempt+1).Msg("Completion attempt failed")

		if !g.shouldRetry(ctx, kind, attempt) {
			break
		}
	}

	return g.fail(profile, kind, attempts, lastErr)
}

func (g *Gateway) completeOnce(ctx context.Context, req Request) (string, error) {
	callCtx, cancel := withTimeout(ctx, req.Profile.Timeout)
	defer cancel()
	return g.provider.Complete(callCtx, req)
}

// Stream calls emit for every fragment as it arrives and returns the
// assembled reply. A failure before the first fragment is retried like
// Complete; once fragments have been emitted the placeholder is appended
// instead, since the partial reply cannot be taken back.
func (g *Gateway) Stream(ctx context.Context, messages []store.Message, profile Profile, emit func(string)) (string, error) {
	start := time.Now()
	defer func() { g.metrics.ObserveCompletion(profile.Purpose, time.Since(start)) }()

	req := Request{Profile: profile, Messages: messages, Stream: true}
	var (
		lastErr  error
		kind     ErrorKind
		attempts int
	)
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		attempts++
		text, err := g.streamOnce(ctx, req, emit)
		if err == nil {
			g.metrics.ObserveCompletionAttempt(profile.Purpose, "ok")
			return text, nil
		}

		lastErr, kind = err, classify(err)
		g.metrics.ObserveCompletionAttempt(profile.Purpose, kind.String())
		g.log.Warn().Err(err).Str("purpose", profile.Purpose).Str("kind", kind.String()).Int("attempt", attempt+1).Msg("Streaming attempt failed")

		if text != "" {
			placeholder := "\n\n" + kind.Placeholder()
			emit(placeholder)
			return text + placeholder, &RemoteError{Kind: kind, Attempts: attempts, Err: err}
		}
		if !g.shouldRetry(ctx, kind, attempt) {
			break
		}
	}

	text, err := g.fail(profile, kind, attempts, lastErr)
	emit(text)
	return text, err
}

// streamOnce returns whatever text was emitted before an error.
func (g *Gateway) streamOnce(ctx context.Context, req Request, emit func(string)) (string, error) {
	callCtx, cancel := withTimeout(ctx, req.Profile.Timeout)
	defer cancel()

	stream, err := g.provider.Stream(callCtx, req)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sb.String(), err
		}
		if fragment == "" {
			continue
		}
		sb.WriteString(fragment)
		emit(fragment)
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

// shouldRetry sleeps before the next attempt and reports whether there is one.
// Rate limiting backs off exponentially; timeouts and connection failures wait
// a fixed delay.
func (g *Gateway) shouldRetry(ctx context.Context, kind ErrorKind, attempt int) bool {
	if !kind.Transient() || attempt >= MaxAttempts-1 {
		return false
	}
	delay := g.baseDelay
	if kind == KindRateLimited {
		delay = g.baseDelay * time.Duration(1<<attempt)
	}
	if err := g.sleep(ctx, delay); err != nil {
		g.log.Warn().Err(err).Msg("Retry wait interrupted")
		return false
	}
	return true
}

func (g *Gateway) fail(profile Profile, kind ErrorKind, attempts int, err error) (string, error) {
	g.log.Error().Err(err).Str("purpose", profile.Purpose).Str("kind", kind.String()).Int("attempts", attempts).Msg("Completion failed, returning placeholder")
	return kind.Placeholder(), &RemoteError{Kind: kind, Attempts: attempts, Err: err}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
