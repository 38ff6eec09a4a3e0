// Package backoff computes delays between retry attempts.
//
// Strategies are plain values and safe for concurrent use. Attempt numbers
// start at 1 for the first retry; attempt 0 or below always yields no delay.
package backoff

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Strategy calculates the delay before a retry.
type Strategy interface {
	NextInterval(attempt int) time.Duration
}

// Exponential grows the delay by Multiplier each attempt, with optional jitter.
type Exponential struct {
	InitialInterval time.Duration // default 1s
	MaxInterval     time.Duration // default 30s
	Multiplier      float64       // default 2
	JitterFactor    float64       // 0 disables jitter
}

// NextInterval returns min(Initial * Multiplier^(attempt-1) * (1 ± Jitter), Max).
func (e Exponential) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	initial := e.InitialInterval
	if initial == 0 {
		initial = time.Second
	}
	maxInterval := e.MaxInterval
	if maxInterval == 0 {
		maxInterval = 30 * time.Second
	}
	multiplier := e.Multiplier
	if multiplier == 0 {
		multiplier = 2
	}

	interval := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if e.JitterFactor > 0 {
		interval *= 1 + (rand.Float64()*2-1)*e.JitterFactor
	}
	if interval > float64(maxInterval) {
		interval = float64(maxInterval)
	}

	return time.Duration(interval)
}

// Linear grows the delay by Interval each attempt.
type Linear struct {
	Interval    time.Duration // default 1s
	MaxInterval time.Duration // default 30s
}

func (l Linear) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	interval := l.Interval
	if interval == 0 {
		interval = time.Second
	}
	maxInterval := l.MaxInterval
	if maxInterval == 0 {
		maxInterval = 30 * time.Second
	}

	return min(interval*time.Duration(attempt), maxInterval)
}

// Fixed waits the same Interval before every retry. A zero Interval retries immediately.
type Fixed struct {
	Interval time.Duration
}

func (f Fixed) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return f.Interval
}

// Default returns exponential backoff from 1s to 30s with 10% jitter.
func Default() Strategy {
	return Exponential{
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2,
		JitterFactor:    0.1,
	}
}

// Wait sleeps for d or until ctx is done. It returns ctx.Err() when interrupted.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
