package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "pre-classified", err: &RemoteError{Kind: KindRateLimited, Err: errors.New("429")}, want: KindRateLimited},
		{name: "wrapped pre-classified", err: fmt.Errorf("call: %w", &RemoteError{Kind: KindAuthFailed}), want: KindAuthFailed},
		{name: "deadline", err: fmt.Errorf("request: %w", context.DeadlineExceeded), want: KindTimeout},
		{name: "dial", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, want: KindConnectionFailed},
		{name: "dns", err: &net.DNSError{Err: "no such host", Name: "api.example.com"}, want: KindConnectionFailed},
		{name: "dns timeout", err: &net.DNSError{Err: "i/o timeout", Name: "api.example.com", IsTimeout: true}, want: KindTimeout},
		{name: "other", err: errors.New("unexpected token"), want: KindOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestKindForStatus(t *testing.T) {
	cases := map[int]ErrorKind{
		429: KindRateLimited,
		401: KindAuthFailed,
		403: KindAuthFailed,
		408: KindTimeout,
		504: KindTimeout,
		502: KindConnectionFailed,
		503: KindConnectionFailed,
	}
	for code, want := range cases {
		got, ok := kindForStatus(code)
		assert.True(t, ok, "status %d", code)
		assert.Equal(t, want, got, "status %d", code)
	}

	_, ok := kindForStatus(400)
	assert.False(t, ok)
}

func TestPlaceholdersAreDistinct(t *testing.T) {
	seen := map[string]ErrorKind{}
	for _, k := range []ErrorKind{KindOther, KindRateLimited, KindTimeout, KindConnectionFailed, KindAuthFailed} {
		p := k.Placeholder()
		assert.NotEmpty(t, p)
		if prev, dup := seen[p]; dup {
			t.Errorf("%s and %s share a placeholder", prev, k)
		}
		seen[p] = k
	}
}

func TestTransient(t *testing.T) {
	assert.True(t, KindRateLimited.Transient())
	assert.True(t, KindTimeout.Transient())
	assert.True(t, KindConnectionFailed.Transient())
	assert.False(t, KindAuthFailed.Transient())
	assert.False(t, KindOther.Transient())
}
