package db

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	conflictRetries      = 5
	conflictInitialDelay = 10 * time.Millisecond
	conflictMaxElapsed   = 2 * time.Second
)

// RetryOnConflict runs op until it stops failing with ErrVersionConflict.
// op must re-read the document on every attempt. Any other error ends the
// loop immediately and is returned as is.
func RetryOnConflict(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = conflictInitialDelay
	b.MaxElapsedTime = conflictMaxElapsed

	return backoff.Retry(func() error {
		err := op()
		if err == nil || errors.Is(err, ErrVersionConflict) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(b, conflictRetries), ctx))
}
