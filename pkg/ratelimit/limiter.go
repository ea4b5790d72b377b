package ratelimit

import (
	"context"
	"errors"
	"time"

	"followback/pkg/logger"
	"followback/pkg/metrics"
)

const (
	// DefaultMaxRequests is the number of analyze requests admitted per window
	DefaultMaxRequests = 3
	// DefaultWindow is the trailing window length
	DefaultWindow = 5 * time.Minute
)

// Options configures a Limiter
type Options struct {
	MaxRequests int
	Window      time.Duration
	Store       Store
	Logger      logger.Logger
	Metrics     *metrics.Metrics
}

// Limiter admits at most MaxRequests per client address in any trailing
// Window. It never blocks waiting for capacity.
type Limiter struct {
	maxRequests int
	window      time.Duration
	store       Store
	logger      logger.Logger
	metrics     *metrics.Metrics
}

// New creates a Limiter. A nil Store gets an in-memory store bounded to
// 10000 addresses.
func New(opts Options) (*Limiter, error) {
	if opts.MaxRequests <= 0 {
		opts.MaxRequests = DefaultMaxRequests
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}
	if opts.Store == nil {
		store, err := NewMemoryStore(10000, opts.Window)
		if err != nil {
			return nil, err
		}
		opts.Store = store
	}

	return &Limiter{
		maxRequests: opts.MaxRequests,
		window:      opts.Window,
		store:       opts.Store,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}, nil
}

// Admit records a request from address at now and reports whether it is
// within the limit. A rejected request is not recorded.
//
// If the store fails, the request is admitted and the failure logged. Store
// contention on the same address rejects the request instead.
func (l *Limiter) Admit(ctx context.Context, address string, now time.Time) bool {
	cutoff := now.Add(-l.window)

	allowed, err := l.store.Update(ctx, address, func(current Window) (Window, bool) {
		current = current.Trim(cutoff)
		if len(current) >= l.maxRequests {
			return current, false
		}
		return append(current, now), true
	})

	switch {
	case errors.Is(err, ErrContention):
		l.logger.WarnWithFields("rate limit store contention, rejecting", map[string]interface{}{
			"address": address,
		})
		allowed = false
	case err != nil:
		l.logger.WithError(err).WarnWithFields("rate limit store unavailable, admitting", map[string]interface{}{
			"address": address,
		})
		allowed = true
	}

	l.metrics.ObserveDecision(allowed)
	if !allowed {
		l.logger.InfoWithFields("rate limit reached", map[string]interface{}{
			"address":      address,
			"max_requests": l.maxRequests,
			"window":       l.window,
		})
	}
	return allowed
}

// MaxRequests returns the configured per-window limit
func (l *Limiter) MaxRequests() int {
	return l.maxRequests
}

// Window returns the configured trailing window
func (l *Limiter) Window() time.Duration {
	return l.window
}

// RunSweeper calls s.Sweep every interval until ctx is done
func RunSweeper(ctx context.Context, s Sweeper, interval time.Duration, clock func() time.Time, log logger.Logger) {
	if interval <= 0 {
		return
	}
	if clock == nil {
		clock = time.Now
	}
	if log == nil {
		log = logger.GetLogger()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(clock()); removed > 0 {
				log.DebugWithFields("swept idle rate limit windows", map[string]interface{}{
					"removed": removed,
				})
			}
		}
	}
}
