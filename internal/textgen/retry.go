package textgen

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// RetryConfig는 재시도 설정입니다.
type RetryConfig struct {
	MaxRetries     int           // 최대 재시도 횟수
	InitialBackoff time.Duration // 초기 백오프 시간
	MaxBackoff     time.Duration // 최대 백오프 시간
	BackoffFactor  float64       // 백오프 증가 계수
}

// DefaultRetryConfig는 기본 재시도 설정을 반환합니다.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
	}
}

type retrying struct {
	next   Generator
	config RetryConfig
	logger *zap.Logger
}

// WithRetry는 rate limit 응답에 대해 지수 백오프로 재시도하는 Generator를 반환합니다.
// 스트림은 열기 단계에서만 재시도하며, 이미 받은 조각은 다시 요청하지 않습니다.
func WithRetry(next Generator, logger *zap.Logger, config ...RetryConfig) Generator {
	cfg := DefaultRetryConfig()
	if len(config) > 0 {
		cfg = config[0]
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &retrying{next: next, config: cfg, logger: logger}
}

func (r *retrying) Complete(ctx context.Context, req Request) (string, error) {
	var out string
	err := r.retry(ctx, "complete", func() error {
		var err error
		out, err = r.next.Complete(ctx, req)
		return err
	})
	return out, err
}

func (r *retrying) Stream(ctx context.Context, req Request) (FragmentStream, error) {
	var out FragmentStream
	err := r.retry(ctx, "stream", func() error {
		var err error
		out, err = r.next.Stream(ctx, req)
		return err
	})
	return out, err
}

// retry는 작업을 재시도합니다.
func (r *retrying) retry(ctx context.Context, opName string, op func() error) error {
	var lastErr error
	backoff := r.config.InitialBackoff

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			r.logger.Info("작업 재시도",
				zap.String("operation", opName),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
			)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}

			backoff = time.Duration(float64(backoff) * r.config.BackoffFactor)
			if backoff > r.config.MaxBackoff {
				backoff = r.config.MaxBackoff
			}
		}

		err := op()
		if err == nil {
			return nil
		}
		lastErr = err

		// 재시도 불가능한 에러면 즉시 반환
		if !errors.Is(err, ErrRateLimited) {
			return err
		}

		r.logger.Warn("rate limit 응답, 재시도 예정",
			zap.String("operation", opName),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	r.logger.Error("최대 재시도 횟수 초과",
		zap.String("operation", opName),
		zap.Int("max_retries", r.config.MaxRetries),
		zap.Error(lastErr),
	)
	return lastErr
}
