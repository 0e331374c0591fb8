package llm

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newco.ai/founder-scout/internal/metrics"
	"newco.ai/founder-scout/internal/store"
)

const testBaseDelay = 50 * time.Millisecond

type fakeResult struct {
	text      string
	err       error
	fragments []string
	streamErr error // returned by Recv after fragments
}

type fakeProvider struct {
	results  []fakeResult
	calls    int
	requests []Request
}

func (p *fakeProvider) next(req Request) fakeResult {
	p.requests = append(p.requests, req)
	p.calls++
	if len(p.results) == 0 {
		return fakeResult{text: "ok", fragments: []string{"ok"}}
	}
	r := p.results[0]
	p.results = p.results[1:]
	return r
}

func (p *fakeProvider) Complete(ctx context.Context, req Request) (string, error) {
	r := p.next(req)
	return r.text, r.err
}

func (p *fakeProvider) Stream(ctx context.Context, req Request) (FragmentStream, error) {
	r := p.next(req)
	if r.err != nil {
		return nil, r.err
	}
	return &fakeStream{fragments: r.fragments, err: r.streamErr}, nil
}

func (p *fakeProvider) Close() error { return nil }

type fakeStream struct {
	fragments []string
	err       error
}

func (s *fakeStream) Recv() (string, error) {
	if len(s.fragments) > 0 {
		f := s.fragments[0]
		s.fragments = s.fragments[1:]
		return f, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *fakeStream) Close() {}

type delays struct {
	got []time.Duration
}

func (d *delays) sleep(ctx context.Context, dur time.Duration) error {
	d.got = append(d.got, dur)
	return nil
}

func newTestGateway(p Provider, opts ...Option) (*Gateway, *delays) {
	d := &delays{}
	opts = append([]Option{WithSleep(d.sleep)}, opts...)
	return NewGateway(p, testBaseDelay, zerolog.Nop(), opts...), d
}

var (
	testProfile  = Profile{Purpose: "conversation", Model: "gpt-4o-mini", Temperature: 0.6, MaxTokens: 700}
	testMessages = []store.Message{
		{Role: store.RoleSystem, Content: "You are an interviewer."},
		{Role: store.RoleUser, Content: "Hi"},
	}
)

func remote(kind ErrorKind) error {
	return &RemoteError{Kind: kind, Attempts: 1, Err: errors.New(kind.String())}
}

func TestCompleteSuccessPassesProfile(t *testing.T) {
	p := &fakeProvider{results: []fakeResult{{text: "Hello founder"}}}
	g, _ := newTestGateway(p)

	text, err := g.Complete(context.Background(), testMessages, testProfile)
	require.NoError(t, err)
	assert.Equal(t, "Hello founder", text)
	require.Len(t, p.requests, 1)
	assert.Equal(t, testProfile, p.requests[0].Profile)
	assert.Equal(t, testMessages, p.requests[0].Messages)
	assert.False(t, p.requests[0].Stream)
}

func TestCompleteRecoversAfterTransientFailures(t *testing.T) {
	p := &fakeProvider{results: []fakeResult{
		{err: remote(KindConnectionFailed)},
		{err: remote(KindTimeout)},
		{text: "Third time lucky"},
	}}
	g, d := newTestGateway(p)

	text, err := g.Complete(context.Background(), testMessages, testProfile)
	require.NoError(t, err)
	assert.Equal(t, "Third time lucky", text)
	assert.Equal(t, 3, p.calls)
	assert.Equal(t, []time.Duration{testBaseDelay, testBaseDelay}, d.got)
}

func TestCompleteRateLimitBacksOffExponentially(t *testing.T) {
	p := &fakeProvider{results: []fakeResult{
		{err: remote(KindRateLimited)},
		{err: remote(KindRateLimited)},
		{err: remote(KindRateLimited)},
	}}
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	g, d := newTestGateway(p, WithMetrics(m))

	text, err := g.Complete(context.Background(), testMessages, testProfile)

	var rerr *RemoteError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, KindRateLimited, rerr.Kind)
	assert.Equal(t, MaxAttempts, rerr.Attempts)
	assert.Equal(t, KindRateLimited.Placeholder(), text)
	assert.Equal(t, MaxAttempts, p.calls)
	assert.Equal(t, []time.Duration{testBaseDelay, 2 * testBaseDelay}, d.got)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CompletionAttemptsTotal.WithLabelValues("conversation", "rate_limited")))
}

func TestCompleteDoesNotRetryPermanentFailures(t *testing.T) {
	for _, kind := range []ErrorKind{KindAuthFailed, KindOther} {
		t.Run(kind.String(), func(t *testing.T) {
			p := &fakeProvider{results: []fakeResult{{err: remote(kind)}}}
			g, d := newTestGateway(p)

			text, err := g.Complete(context.Background(), testMessages, testProfile)

			var rerr *RemoteError
			require.ErrorAs(t, err, &rerr)
			assert.Equal(t, kind, rerr.Kind)
			assert.Equal(t, 1, rerr.Attempts)
			assert.Equal(t, kind.Placeholder(), text)
			assert.Equal(t, 1, p.calls)
			assert.Empty(t, d.got)
		})
	}
}

func TestCompleteEmptyResponseIsNotRetried(t *testing.T) {
	p := &fakeProvider{results: []fakeResult{{err: ErrEmptyResponse}}}
	g, _ := newTestGateway(p)

	_, err := g.Complete(context.Background(), testMessages, testProfile)
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.Equal(t, 1, p.calls)
}

func TestCompleteStopsWhenContextCancelledDuringBackoff(t *testing.T) {
	p := &fakeProvider{results: []fakeResult{{err: remote(KindTimeout)}, {text: "never"}}}
	g := NewGateway(p, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	text, err := g.Complete(ctx, testMessages, testProfile)
	require.Error(t, err)
	assert.Equal(t, KindTimeout.Placeholder(), text)
	assert.Equal(t, 1, p.calls)
}

func TestCompleteAppliesPerRequestTimeout(t *testing.T) {
	var deadline time.Time
	var ok bool
	p := &deadlineProvider{check: func(ctx context.Context) {
		deadline, ok = ctx.Deadline()
	}}
	g, _ := newTestGateway(p)

	profile := testProfile
	profile.Timeout = 30 * time.Second
	_, err := g.Complete(context.Background(), testMessages, profile)
	require.NoError(t, err)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(30*time.Second), deadline, 5*time.Second)
}

type deadlineProvider struct {
	check func(ctx context.Context)
}

func (p *deadlineProvider) Complete(ctx context.Context, req Request) (string, error) {
	p.check(ctx)
	return "done", nil
}

func (p *deadlineProvider) Stream(ctx context.Context, req Request) (FragmentStream, error) {
	return nil, errors.New("not used")
}

func (p *deadlineProvider) Close() error { return nil }

func TestStreamEmitsFragments(t *testing.T) {
	p := &fakeProvider{results: []fakeResult{{fragments: []string{"Hel", "", "lo"}}}}
	g, _ := newTestGateway(p)

	var got []string
	text, err := g.Stream(context.Background(), testMessages, testProfile, func(f string) { got = append(got, f) })
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
	assert.Equal(t, []string{"Hel", "lo"}, got)
	assert.True(t, p.requests[0].Stream)
}

func TestStreamRetriesBeforeFirstFragment(t *testing.T) {
	p := &fakeProvider{results: []fakeResult{
		{err: remote(KindConnectionFailed)},
		{streamErr: remote(KindTimeout)},
		{fragments: []string{"Welcome"}},
	}}
	g, d := newTestGateway(p)

	var got []string
	text, err := g.Stream(context.Background(), testMessages, testProfile, func(f string) { got = append(got, f) })
	require.NoError(t, err)
	assert.Equal(t, "Welcome", text)
	assert.Equal(t, []string{"Welcome"}, got)
	assert.Equal(t, 3, p.calls)
	assert.Len(t, d.got, 2)
}

func TestStreamMidStreamFailureAppendsPlaceholder(t *testing.T) {
	p := &fakeProvider{results: []fakeResult{
		{fragments: []string{"Tell me ", "about"}, streamErr: remote(KindConnectionFailed)},
	}}
	g, d := newTestGateway(p)

	var got []string
	text, err := g.Stream(context.Background(), testMessages, testProfile, func(f string) { got = append(got, f) })

	var rerr *RemoteError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, KindConnectionFailed, rerr.Kind)
	want := "Tell me about\n\n" + KindConnectionFailed.Placeholder()
	assert.Equal(t, want, text)
	assert.Equal(t, []string{"Tell me ", "about", "\n\n" + KindConnectionFailed.Placeholder()}, got)
	assert.Equal(t, 1, p.calls)
	assert.Empty(t, d.got)
}

func TestStreamExhaustedEmitsPlaceholder(t *testing.T) {
	p := &fakeProvider{results: []fakeResult{{err: remote(KindAuthFailed)}}}
	g, _ := newTestGateway(p)

	var got []string
	text, err := g.Stream(context.Background(), testMessages, testProfile, func(f string) { got = append(got, f) })
	require.Error(t, err)
	assert.Equal(t, KindAuthFailed.Placeholder(), text)
	assert.Equal(t, []string{KindAuthFailed.Placeholder()}, got)
}
