package core

import (
	"context"
	"sync"
	"time"

	"newco.ai/founder-scout/internal/llm"
	"newco.ai/founder-scout/internal/store"
)

type gatewayReply struct {
	text string
	err  error
}

// fakeGateway replays queued replies and records every call.
type fakeGateway struct {
	mu       sync.Mutex
	replies  []gatewayReply
	calls    [][]store.Message
	profiles []llm.Profile
	block    chan struct{} // when set, calls wait for it to close
}

func (g *fakeGateway) queue(text string, err error) *fakeGateway {
	g.replies = append(g.replies, gatewayReply{text: text, err: err})
	return g
}

func (g *fakeGateway) next(messages []store.Message, profile llm.Profile) gatewayReply {
	if g.block != nil {
		<-g.block
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, messages)
	g.profiles = append(g.profiles, profile)
	if len(g.replies) == 0 {
		return gatewayReply{text: "Tell me more."}
	}
	r := g.replies[0]
	g.replies = g.replies[1:]
	return r
}

func (g *fakeGateway) Complete(ctx context.Context, messages []store.Message, profile llm.Profile) (string, error) {
	r := g.next(messages, profile)
	return r.text, r.err
}

func (g *fakeGateway) Stream(ctx context.Context, messages []store.Message, profile llm.Profile, emit func(string)) (string, error) {
	r := g.next(messages, profile)
	half := len(r.text) / 2
	if half > 0 {
		emit(r.text[:half])
	}
	emit(r.text[half:])
	return r.text, r.err
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// fakeConversationStore keeps conversations in memory.
type fakeConversationStore struct {
	mu     sync.Mutex
	putErr error
	puts   []store.Conversation
	saved  map[string]store.Conversation
}

func newFakeConversationStore() *fakeConversationStore {
	return &fakeConversationStore{saved: map[string]store.Conversation{}}
}

func (s *fakeConversationStore) Put(ctx context.Context, conv store.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts = append(s.puts, conv)
	if s.putErr != nil {
		return s.putErr
	}
	if _, ok := s.saved[conv.SessionID]; ok {
		return store.ErrAlreadySaved
	}
	s.saved[conv.SessionID] = conv
	return nil
}

func (s *fakeConversationStore) Get(ctx context.Context, sessionID string) (*store.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.saved[sessionID]
	if !ok {
		return nil, nil
	}
	return &conv, nil
}

func (s *fakeConversationStore) List(ctx context.Context, limit int) ([]store.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Conversation
	for _, conv := range s.saved {
		out = append(out, conv)
	}
	return out, nil
}

// fakeSaver records save requests and returns a fixed result.
type fakeSaver struct {
	result SaveResult
	calls  int
	got    []store.Message
	start  time.Time
}

func (s *fakeSaver) SaveWithSummary(ctx context.Context, sessionID string, messages []store.Message, startedAt time.Time) SaveResult {
	s.calls++
	s.got = messages
	s.start = startedAt
	return s.result
}

var testProfiles = Profiles{
	Conversation: llm.Profile{Purpose: "conversation", Model: "chat-model"},
	Summary:      llm.Profile{Purpose: "summary", Model: "summary-model"},
	Evaluation:   llm.Profile{Purpose: "evaluation", Model: "eval-model"},
}
