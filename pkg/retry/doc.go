// Package retry runs an operation until it succeeds, fails permanently or
// runs out of attempts, sleeping between attempts according to a backoff
// strategy.
//
// The rate limiter's Redis store uses it to re-run an optimistic WATCH
// transaction that lost a race with another writer:
//
//	err := retry.Do(ctx, func(ctx context.Context) error {
//		return client.Watch(ctx, txf, key)
//	}, retry.Config{
//		MaxAttempts: 5,
//		Backoff:     retry.DefaultExponentialBackoff(),
//		RetryIf:     func(err error) bool { return errors.Is(err, redis.TxFailedErr) },
//	})
//	if errors.Is(err, retry.ErrExhausted) {
//		// every attempt conflicted
//	}
//
// Errors rejected by RetryIf are returned unchanged after the first attempt.
package retry
