// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package covers

import (
	"context"
	"sync"
	"time"
)

// Limiter enforces a minimum spacing between successive calls to one
// upstream API. It blocks, it does not reject.
type Limiter struct {
	minDelay time.Duration

	mu   sync.Mutex
	last time.Time
}

func NewLimiter(minDelay time.Duration) *Limiter {
	return &Limiter{minDelay: minDelay}
}

// Wait blocks until at least minDelay has elapsed since the previous call
// returned, or until ctx is done. The caller holds the slot on return, so
// concurrent callers serialize here.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.last.IsZero() {
		wait := l.minDelay - time.Since(l.last)
		if wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	l.last = time.Now()
	return nil
}
