package ratelimit

import "context"

// RateLimiter bounds throughput per named resource, e.g. artifact store
// writes.
type RateLimiter interface {
	Allow(ctx context.Context, resource string) (bool, error)
	Wait(ctx context.Context, resource string) error
}
