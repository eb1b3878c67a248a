// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package covers

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrQueueClosed is returned when a resolve is submitted after the queue
// worker has stopped.
var ErrQueueClosed = errors.New("resolve queue closed")

type queueJob struct {
	req     Request
	refresh bool
	reply   chan Resolution
}

// Queue serializes resolves through one worker. Upstream rate limits are
// per-process, so parallel resolves would only contend on the limiters;
// one worker keeps ordering predictable and the delays honest.
type Queue struct {
	jobs chan queueJob
	done chan struct{}

	mu       sync.RWMutex
	resolver *Resolver
}

func NewQueue(resolver *Resolver) *Queue {
	return &Queue{
		jobs:     make(chan queueJob, 64),
		done:     make(chan struct{}),
		resolver: resolver,
	}
}

// SetResolver swaps the resolver, picked up by the next job. Used when a
// config reload changes API credentials.
func (q *Queue) SetResolver(resolver *Resolver) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.resolver = resolver
}

func (q *Queue) currentResolver() *Resolver {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.resolver
}

// Start runs the worker until ctx is cancelled.
func (q *Queue) Start(ctx context.Context) {
	go func() {
		defer close(q.done)
		for {
			select {
			case <-ctx.Done():
				return
			case job := <-q.jobs:
				resolver := q.currentResolver()
				var res Resolution
				if job.refresh {
					res = resolver.Refresh(ctx, job.req)
				} else {
					res = resolver.Resolve(ctx, job.req)
				}
				job.reply <- res
			}
		}
	}()
	log.Debug().Msg("Resolve queue started")
}

// Resolve submits a request and blocks for its outcome.
func (q *Queue) Resolve(ctx context.Context, req Request) (Resolution, error) {
	return q.submit(ctx, req, false)
}

// Refresh submits a cache-busting request and blocks for its outcome.
func (q *Queue) Refresh(ctx context.Context, req Request) (Resolution, error) {
	return q.submit(ctx, req, true)
}

func (q *Queue) submit(ctx context.Context, req Request, refresh bool) (Resolution, error) {
	job := queueJob{req: req, refresh: refresh, reply: make(chan Resolution, 1)}

	select {
	case <-ctx.Done():
		return Resolution{Source: SourceNone}, ctx.Err()
	case <-q.done:
		return Resolution{Source: SourceNone}, ErrQueueClosed
	case q.jobs <- job:
	}

	select {
	case <-ctx.Done():
		return Resolution{Source: SourceNone}, ctx.Err()
	case <-q.done:
		return Resolution{Source: SourceNone}, ErrQueueClosed
	case res := <-job.reply:
		return res, nil
	}
}
