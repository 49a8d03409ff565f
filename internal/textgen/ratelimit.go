package textgen

import (
	"context"

	"golang.org/x/time/rate"
)

// rateLimited waits on a process-local token bucket before every call.
type rateLimited struct {
	next    Generator
	limiter *rate.Limiter
}

// WithRateLimit bounds next to perMinute requests. A non-positive budget
// returns next unchanged.
func WithRateLimit(next Generator, perMinute float64) Generator {
	if perMinute <= 0 {
		return next
	}
	burst := int(perMinute / 60)
	if burst < 1 {
		burst = 1
	}
	return &rateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perMinute/60.0), burst),
	}
}

func (r *rateLimited) Complete(ctx context.Context, req Request) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.next.Complete(ctx, req)
}

func (r *rateLimited) Stream(ctx context.Context, req Request) (FragmentStream, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.next.Stream(ctx, req)
}
