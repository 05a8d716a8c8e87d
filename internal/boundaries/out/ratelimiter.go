package out

import "context"

// RateLimiter throttles requests per key, typically "ip:<address>".
type RateLimiter interface {
	// Allow reports whether one more request for key fits its budget.
	Allow(ctx context.Context, key string) bool
}
