// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retry runs an operation with bounded exponential backoff.
package retry

import (
	"context"
	"math"
	"time"
)

// BaseDelay is the first backoff interval. Each further attempt doubles it.
// Tests override this to avoid real sleeps.
var BaseDelay = 200 * time.Millisecond

// Do calls fn until it succeeds, returns an error that retryable rejects, or
// maxRetries retries are spent. The delay starts at BaseDelay and doubles on
// each attempt. The onRetry hook, when non-nil, is called before every sleep
// with the attempt number (1-based) and the error being retried.
//
// If ctx is cancelled during a wait, Do returns ctx.Err(). After exhausting
// retries the last error from fn is returned.
func Do(ctx context.Context, maxRetries int, retryable func(error) bool, onRetry func(attempt int, err error), fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if attempt >= maxRetries || !retryable(err) {
			return err
		}

		if onRetry != nil {
			onRetry(attempt+1, err)
		}

		backoff := time.Duration(math.Pow(2, float64(attempt))) * BaseDelay
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}
