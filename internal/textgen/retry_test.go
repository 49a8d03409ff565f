package textgen

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type scriptedGenerator struct {
	errs  []error
	calls int
}

func (g *scriptedGenerator) next() error {
	g.calls++
	if len(g.errs) == 0 {
		return nil
	}
	err := g.errs[0]
	g.errs = g.errs[1:]
	return err
}

func (g *scriptedGenerator) Complete(context.Context, Request) (string, error) {
	if err := g.next(); err != nil {
		return "", err
	}
	return "done", nil
}

func (g *scriptedGenerator) Stream(context.Context, Request) (FragmentStream, error) {
	return nil, g.next()
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, BackoffFactor: 2}
}

func TestWithRetry(t *testing.T) {
	limited := errors.Join(ErrRateLimited, errors.New("429"))
	fatal := errors.New("bad request")

	tests := []struct {
		name      string
		errs      []error
		wantErr   error
		wantCalls int
	}{
		{name: "first try succeeds", wantCalls: 1},
		{name: "recovers after rate limit", errs: []error{limited, limited}, wantCalls: 3},
		{name: "gives up after max retries", errs: []error{limited, limited, limited, limited}, wantErr: ErrRateLimited, wantCalls: 3},
		{name: "non retryable returns immediately", errs: []error{fatal}, wantErr: fatal, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &scriptedGenerator{errs: tt.errs}
			gen := WithRetry(inner, zaptest.NewLogger(t), fastRetry())

			out, err := gen.Complete(context.Background(), Request{Prompt: "x"})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "done", out)
			}
			assert.Equal(t, tt.wantCalls, inner.calls)
		})
	}
}

func TestWithRetry_ContextCanceled(t *testing.T) {
	inner := &scriptedGenerator{errs: []error{ErrRateLimited, ErrRateLimited}}
	gen := WithRetry(inner, zaptest.NewLogger(t), RetryConfig{MaxRetries: 3, InitialBackoff: time.Hour, MaxBackoff: time.Hour, BackoffFactor: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := gen.Stream(ctx, Request{Prompt: "x"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, inner.calls)
}

func TestWithRateLimit(t *testing.T) {
	inner := &scriptedGenerator{}
	assert.Same(t, Generator(inner), WithRateLimit(inner, 0))

	limited := WithRateLimit(inner, 60)
	out, err := limited.Complete(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "done", out)

	// 버스트를 소진한 뒤에는 취소된 컨텍스트로 대기하면 에러
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = limited.Complete(ctx, Request{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}
