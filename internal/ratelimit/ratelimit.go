// Package ratelimit provides a fixed-window counter keyed by an identity
// string. The counter storage is injected so the single-process in-memory
// implementation and the shared redis implementation are interchangeable.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

const (
	DefaultWindow = 60 * time.Second
	DefaultLimit  = 10
)

// CounterStore increments the counter for key inside the current fixed
// window and returns the post-increment count. Implementations must be safe
// for concurrent use and the increment must be atomic.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type Limiter struct {
	store  CounterStore
	window time.Duration
	limit  int64
}

func New(store CounterStore, window time.Duration, limit int64) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Limiter{store: store, window: window, limit: limit}
}

// Allow counts one call for the (ip, wallet, action) identity and reports
// whether it is within the window cap.
func (l *Limiter) Allow(ctx context.Context, ip, wallet, action string) (bool, error) {
	key := fmt.Sprintf("%s|%s|%s", ip, wallet, action)
	n, err := l.store.Incr(ctx, key, l.window)
	if err != nil {
		return false, err
	}
	return n <= l.limit, nil
}
