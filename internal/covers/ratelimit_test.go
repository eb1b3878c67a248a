// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package covers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterSpacing(t *testing.T) {
	const minDelay = 20 * time.Millisecond
	const calls = 5

	limiter := NewLimiter(minDelay)
	ctx := context.Background()

	start := time.Now()
	var prev time.Time
	for i := 0; i < calls; i++ {
		require.NoError(t, limiter.Wait(ctx))
		now := time.Now()
		if i > 0 {
			assert.GreaterOrEqual(t, now.Sub(prev), minDelay)
		}
		prev = now
	}

	// First call is free; the rest each cost at least minDelay.
	assert.GreaterOrEqual(t, time.Since(start), (calls-1)*minDelay)
}

func TestLimiterFirstCallImmediate(t *testing.T) {
	limiter := NewLimiter(time.Second)

	start := time.Now()
	require.NoError(t, limiter.Wait(context.Background()))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiterCancelledContext(t *testing.T) {
	limiter := NewLimiter(time.Minute)
	require.NoError(t, limiter.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := limiter.Wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
