// Package analyzer runs one non-follower analysis request end to end:
// rate limiting, credential checks, the provider call and the calculation.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	errs "followback/pkg/errors"
	"followback/pkg/logger"
	"followback/pkg/metrics"
	"followback/pkg/relationships"
)

// DefaultProviderTimeout bounds one provider call
const DefaultProviderTimeout = 60 * time.Second

const (
	reasonRateLimited   = "Too many requests. Please wait a few minutes and try again."
	reasonMissingFields = "username and password are required"
	reasonTimeout       = "Instagram did not respond in time"
	reasonPanic         = "unexpected error while contacting Instagram"
)

// Kind classifies the result of one Analyze call
type Kind string

const (
	Success       Kind = "success"
	RateLimited   Kind = "rate_limited"
	AuthFailed    Kind = "auth_failed"
	ProviderError Kind = "provider_error"
)

// Outcome is the terminal result of one request. Result is only set for Success.
type Outcome struct {
	Kind   Kind
	Result relationships.Result
	Reason string
}

// OK reports whether the analysis succeeded
func (o Outcome) OK() bool {
	return o.Kind == Success
}

// Credentials are the user's provider login. They are passed through to the
// provider and never retained.
type Credentials struct {
	Username string
	Password string
}

// String never includes the password
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Username: %q, Password: <redacted>}", c.Username)
}

// Provider returns the follow graph of the account the credentials log in to
type Provider interface {
	FetchRelationships(ctx context.Context, username, password string) (relationships.Relationships, error)
}

// Admitter decides whether a client address may start another request
type Admitter interface {
	Admit(ctx context.Context, address string, now time.Time) bool
}

// Options configures an Analyzer
type Options struct {
	Limiter         Admitter
	Provider        Provider
	ProviderTimeout time.Duration
	Clock           func() time.Time
	Logger          logger.Logger
	Metrics         *metrics.Metrics
}

// Analyzer handles analyze requests
type Analyzer struct {
	limiter  Admitter
	provider Provider
	timeout  time.Duration
	clock    func() time.Time
	logger   logger.Logger
	metrics  *metrics.Metrics
}

// New creates an Analyzer. Limiter and Provider are required.
func New(opts Options) (*Analyzer, error) {
	if opts.Limiter == nil {
		return nil, errors.New("analyzer: limiter is required")
	}
	if opts.Provider == nil {
		return nil, errors.New("analyzer: provider is required")
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = DefaultProviderTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}

	return &Analyzer{
		limiter:  opts.Limiter,
		provider: opts.Provider,
		timeout:  opts.ProviderTimeout,
		clock:    opts.Clock,
		logger:   opts.Logger.WithField("component", "analyzer"),
		metrics:  opts.Metrics,
	}, nil
}

// Analyze admits the request for address, fetches the follow graph with
// creds and returns who does not follow back. It never returns an error;
// every failure is folded into the Outcome.
func (a *Analyzer) Analyze(ctx context.Context, address string, creds Credentials) Outcome {
	log := a.logger.WithFields(map[string]interface{}{
		"address":  address,
		"username": creds.Username,
	})

	outcome := a.analyze(ctx, address, creds, log)

	a.metrics.ObserveOutcome(string(outcome.Kind))
	switch outcome.Kind {
	case Success:
		log.InfoWithFields("analysis complete", map[string]interface{}{
			"non_followers": outcome.Result.Total,
		})
	case ProviderError:
		log.WarnWithFields("analysis failed", map[string]interface{}{
			"outcome": string(outcome.Kind),
			"reason":  outcome.Reason,
		})
	default:
		log.InfoWithFields("analysis rejected", map[string]interface{}{
			"outcome": string(outcome.Kind),
			"reason":  outcome.Reason,
		})
	}
	return outcome
}

func (a *Analyzer) analyze(ctx context.Context, address string, creds Credentials, log logger.Logger) Outcome {
	if !a.limiter.Admit(ctx, address, a.clock()) {
		return Outcome{Kind: RateLimited, Reason: reasonRateLimited}
	}

	if strings.TrimSpace(creds.Username) == "" || creds.Password == "" {
		return Outcome{Kind: AuthFailed, Reason: reasonMissingFields}
	}

	rel, err := a.fetch(ctx, creds)
	if err != nil {
		if errs.IsAuth(err) {
			return Outcome{Kind: AuthFailed, Reason: errs.Reason(err)}
		}
		log.WithError(err).DebugWithFields("provider error", map[string]interface{}{
			"error_type": string(errs.TypeOf(err)),
			"transient":  errs.IsRetryable(errs.TypeOf(err)),
		})
		return Outcome{Kind: ProviderError, Reason: providerReason(err)}
	}

	result := relationships.ComputeNonFollowers(rel.Following, rel.Followers)
	return Outcome{Kind: Success, Result: result}
}

// fetch calls the provider under the configured timeout, converting a panic
// into an error.
func (a *Analyzer) fetch(ctx context.Context, creds Credentials) (rel relationships.Relationships, err error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		a.metrics.ObserveProviderDuration(time.Since(start))
		if r := recover(); r != nil {
			a.logger.ErrorWithFields("provider panicked", map[string]interface{}{
				"panic": fmt.Sprint(r),
			})
			rel = relationships.Relationships{}
			err = errs.New(errs.ErrorTypeUnknown, 0, reasonPanic)
		}
	}()

	return a.provider.FetchRelationships(ctx, strings.TrimSpace(creds.Username), creds.Password)
}

func providerReason(err error) string {
	if errs.TypeOf(err) == errs.ErrorTypeUnknown && errors.Is(err, context.DeadlineExceeded) {
		return reasonTimeout
	}
	if reason := errs.Reason(err); reason != "" {
		return reason
	}
	return "unknown error"
}
