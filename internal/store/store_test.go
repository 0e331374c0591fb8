package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newco.ai/founder-scout/internal/metrics"
)

type fakeBackend struct {
	errs     []error // returned by successive inserts; nil once exhausted
	inserts  []Conversation
	getCalls int
	limit    int
}

func (b *fakeBackend) InsertConversation(ctx context.Context, conv *Conversation) error {
	b.inserts = append(b.inserts, *conv)
	if len(b.errs) == 0 {
		return nil
	}
	err := b.errs[0]
	b.errs = b.errs[1:]
	return err
}

func (b *fakeBackend) GetConversation(ctx context.Context, sessionID string) (*Conversation, error) {
	b.getCalls++
	return nil, nil
}

func (b *fakeBackend) ListConversations(ctx context.Context, limit int) ([]Conversation, error) {
	b.limit = limit
	return nil, nil
}

func (b *fakeBackend) Close() error { return nil }

type sleepRecorder struct {
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func newTestStore(backend Backend, opts ...Option) (*Store, *sleepRecorder) {
	rec := &sleepRecorder{}
	opts = append([]Option{WithSleep(rec.sleep)}, opts...)
	return NewStore(backend, 100*time.Millisecond, zerolog.Nop(), opts...), rec
}

func sampleConversation() Conversation {
	return Conversation{
		SessionID: "session-1",
		Messages: []Message{
			{Role: RoleUser, Content: "I want to build a logistics startup"},
			{Role: RoleAssistant, Content: "Tell me about your background."},
		},
	}
}

func TestPutRejectsInvalidInputWithoutBackendCall(t *testing.T) {
	backend := &fakeBackend{}
	s, _ := newTestStore(backend)

	conv := sampleConversation()
	conv.Messages = nil
	err := s.Put(context.Background(), conv)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	conv = sampleConversation()
	conv.SessionID = "  "
	err = s.Put(context.Background(), conv)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "session_id", verr.Field)

	assert.Empty(t, backend.inserts)
}

func TestPutFillsTimestamps(t *testing.T) {
	backend := &fakeBackend{}
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s, _ := newTestStore(backend, WithClock(func() time.Time { return fixed }))

	conv := sampleConversation()
	started := time.Date(2025, 3, 1, 11, 30, 0, 0, time.FixedZone("CET", 3600))
	conv.CreatedAt = started
	require.NoError(t, s.Put(context.Background(), conv))

	require.Len(t, backend.inserts, 1)
	assert.True(t, backend.inserts[0].CreatedAt.Equal(started))
	assert.Equal(t, time.UTC, backend.inserts[0].CreatedAt.Location())
	assert.True(t, backend.inserts[0].EndedAt.Equal(fixed))
}

func TestPutRetriesWithExponentialBackoff(t *testing.T) {
	boom := errors.New("connection reset")
	backend := &fakeBackend{errs: []error{boom, boom, boom}}
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	s, rec := newTestStore(backend, WithMetrics(m))

	err := s.Put(context.Background(), sampleConversation())

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 3, perr.Attempts)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, backend.inserts, 3)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, rec.delays)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.StoreWritesTotal.WithLabelValues("error")))
}

func TestPutSucceedsOnRetry(t *testing.T) {
	backend := &fakeBackend{errs: []error{errors.New("timeout")}}
	s, rec := newTestStore(backend)

	require.NoError(t, s.Put(context.Background(), sampleConversation()))
	assert.Len(t, backend.inserts, 2)
	assert.Len(t, rec.delays, 1)
}

func TestPutDoesNotRetryDuplicate(t *testing.T) {
	backend := &fakeBackend{errs: []error{ErrAlreadySaved}}
	s, rec := newTestStore(backend)

	err := s.Put(context.Background(), sampleConversation())
	assert.ErrorIs(t, err, ErrAlreadySaved)
	assert.Len(t, backend.inserts, 1)
	assert.Empty(t, rec.delays)
}

func TestGetAndListArguments(t *testing.T) {
	backend := &fakeBackend{}
	s, _ := newTestStore(backend)

	_, err := s.Get(context.Background(), "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Zero(t, backend.getCalls)

	conv, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, conv)

	_, err = s.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, defaultListLimit, backend.limit)

	_, err = s.List(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 5, backend.limit)
}
