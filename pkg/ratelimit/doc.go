// Package ratelimit limits analyze requests per client address.
//
// The limiter uses a sliding window log: each address keeps the times of
// its admitted requests, and a new request is admitted only while fewer than
// MaxRequests of them fall inside the trailing window. Timestamps exactly one
// window old still count.
//
// Windows live in a Store. MemoryStore keeps them in a bounded LRU cache and
// needs a periodic Sweep. RedisStore shares them across processes using
// optimistic transactions and key expiry.
//
// Usage:
//
//	store, _ := ratelimit.NewMemoryStore(10000, 5*time.Minute)
//	limiter, _ := ratelimit.New(ratelimit.Options{
//	    MaxRequests: 3,
//	    Window:      5 * time.Minute,
//	    Store:       store,
//	})
//
//	if !limiter.Admit(ctx, clientAddr, time.Now()) {
//	    // reject without calling the provider
//	}
package ratelimit
