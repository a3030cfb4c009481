//
// Tencent is pleased to support the open source community by making trpc-chatguard-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatguard-go is licensed under the Apache License Version 2.0.
//
//

package router

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// RetryPolicy configures retries of upstream model calls.
// Attempts are counted inclusive of the first try. For example,
// MaxAttempts=3 means 1 initial try + up to 2 retries.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	BackoffFactor   float64
	MaxInterval     time.Duration
	Jitter          bool
}

// DefaultRetryPolicy returns the policy the router uses when none is
// configured: attempts=3, initial=500ms, factor=2.0, max=8s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		BackoffFactor:   2.0,
		MaxInterval:     8 * time.Second,
	}
}

// NextDelay returns the backoff delay before the given attempt number.
// attempt starts at 1 for the first try; delay applies before the next retry,
// so callers typically pass the current attempt count.
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.InitialInterval)
	if p.BackoffFactor <= 0 {
		p.BackoffFactor = 1.0
	}
	if attempt > 1 {
		delay *= math.Pow(p.BackoffFactor, float64(attempt-1))
	}
	maxInt := p.MaxInterval
	if maxInt <= 0 {
		maxInt = p.InitialInterval
	}
	if maxInt > 0 {
		delay = math.Min(delay, float64(maxInt))
	}
	d := time.Duration(delay)
	if p.Jitter && d > 0 {
		// Additive jitter in [0, d). Use crypto/rand to avoid gosec G404.
		if n, err := rand.Int(rand.Reader, big.NewInt(int64(d))); err == nil {
			d += time.Duration(n.Int64())
		}
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Sleep blocks for the backoff delay before the next retry after attempt,
// returning early with the context error if the context is canceled.
func (p RetryPolicy) Sleep(ctx context.Context, attempt int) error {
	t := time.NewTimer(p.NextDelay(attempt))
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
