package github

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RequestBudget tracks the GitHub rate limit as reported by response headers
// and blocks callers while the limit is exhausted or a Retry-After cooldown is
// in effect.
type RequestBudget struct {
	mu        sync.Mutex
	remaining int
	reset     time.Time
	cooldown  time.Time
	probed    bool
	now       func() time.Time
	notifyCh  chan struct{}
}

func NewRequestBudget() *RequestBudget {
	return &RequestBudget{
		remaining: 5000, // Default conservative start
		reset:     time.Now().Add(1 * time.Hour),
		now:       time.Now,
		notifyCh:  make(chan struct{}),
	}
}

func (b *RequestBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

// Acquire reserves one request.
func (b *RequestBudget) Acquire(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("Acquire: nil context")
	}
	if b == nil {
		return nil
	}

	for {
		b.mu.Lock()
		now := b.now()

		var until time.Time
		switch {
		case now.Before(b.cooldown):
			until = b.cooldown
		case b.remaining > 0:
			b.remaining--
			b.mu.Unlock()
			return nil
		case !now.Before(b.reset):
			// Reset has passed but no fresh headers were seen yet: let exactly
			// one probe through, then wait for UpdateFromResponse.
			if !b.probed {
				b.probed = true
				b.mu.Unlock()
				return nil
			}
		default:
			until = b.reset
		}
		ch := b.notifyCh
		b.mu.Unlock()

		if err := waitUntil(ctx, now, until, ch); err != nil {
			return err
		}
	}
}

func waitUntil(ctx context.Context, now, until time.Time, ch <-chan struct{}) error {
	if until.IsZero() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
			return nil
		}
	}

	wait := until.Sub(now)
	if wait < 0 {
		wait = 0
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	case <-timer.C:
		return nil
	}
}

// UpdateFromResponse refreshes the budget from rate-limit headers.
func (b *RequestBudget) UpdateFromResponse(resp *http.Response) {
	if resp == nil || b == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	changed := false

	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
			until := b.now().Add(time.Duration(seconds) * time.Second)
			if until.After(b.cooldown) {
				b.cooldown = until
				changed = true
			}
		}
	}

	if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil && val >= 0 && b.remaining != val {
			b.remaining = val
			changed = true
		}
	}

	if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
		if val, err := strconv.ParseInt(reset, 10, 64); err == nil && val > 0 {
			newReset := time.Unix(val, 0)
			if !b.reset.Equal(newReset) {
				b.reset = newReset
				changed = true
			}
		}
	}

	if changed {
		b.probed = false
		close(b.notifyCh)
		b.notifyCh = make(chan struct{})
	}
}
