// Copyright (c) 2022 Whist Technologies, Inc.

package utils

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// now is swapped out in tests.
var now = time.Now

// Retry invokes op until it succeeds or until the deadline, measured from
// the first invocation, has elapsed. Failed attempts are retried immediately
// without any delay. A zero deadline yields exactly one attempt. Once the
// deadline has passed (or ctx is done) the most recent error is returned.
func Retry[T any](ctx context.Context, log *zap.SugaredLogger, deadline time.Duration, op func() (T, error)) (T, error) {
	begin := now()
	attempt := 1
	for {
		result, err := op()
		if err == nil {
			return result, nil
		}

		if now().Sub(begin) >= deadline || ctx.Err() != nil {
			return result, err
		}

		log.Debugf("Attempt %d failed with %s, retrying", attempt, err)
		attempt++
	}
}
