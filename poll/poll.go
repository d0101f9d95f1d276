// Package poll resolves the outcome of posted transactions by querying
// the node until it knows the response.
//
// A NotFoundError from the node means the transaction is still pending.
// Any other outcome, successful or not, ends the loop at once. Polling
// only reads: the original request is never resubmitted.
package poll

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/blockberries/moka"
	"github.com/blockberries/moka/types"
)

// Default policy values.
const (
	DefaultInitialInterval = 100 * time.Millisecond
	DefaultMaxInterval     = 2 * time.Second
	DefaultMultiplier      = 1.5
	DefaultMaxAttempts     = 60
)

// Policy bounds a poll loop. The interval starts at InitialInterval and
// grows by Multiplier up to MaxInterval; a Multiplier of 1 polls at a
// fixed interval. Jitter randomizes each interval by up to that
// fraction. The loop gives up after MaxAttempts queries or once Timeout
// has elapsed, whichever comes first; a zero bound is not applied.
type Policy struct {
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	Multiplier      float64       `yaml:"multiplier"`
	Jitter          float64       `yaml:"jitter"`
	MaxAttempts     int           `yaml:"max_attempts"`
	Timeout         time.Duration `yaml:"timeout"`
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		Multiplier:      DefaultMultiplier,
		MaxAttempts:     DefaultMaxAttempts,
	}
}

// Validate reports whether p describes a bounded loop.
func (p Policy) Validate() error {
	switch {
	case p.InitialInterval <= 0:
		return errors.New("moka poll: initial interval must be positive")
	case p.MaxInterval < p.InitialInterval:
		return errors.New("moka poll: max interval is below the initial interval")
	case p.Multiplier < 1:
		return errors.New("moka poll: multiplier must be at least 1")
	case p.Jitter < 0 || p.Jitter >= 1:
		return errors.New("moka poll: jitter must be in [0, 1)")
	case p.MaxAttempts < 0 || p.Timeout < 0:
		return errors.New("moka poll: negative bound")
	case p.MaxAttempts == 0 && p.Timeout == 0:
		return errors.New("moka poll: policy needs an attempt or a time bound")
	}
	return nil
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.Multiplier = p.Multiplier
	exp.RandomizationFactor = p.Jitter
	exp.MaxElapsedTime = p.Timeout

	var b backoff.BackOff = exp
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	}
	return backoff.WithContext(b, ctx)
}

// Poller runs poll loops under one policy. It holds no per-loop state,
// so concurrent loops share it freely.
type Poller struct {
	policy Policy
	logger *zap.Logger
}

// Option configures a Poller.
type Option func(*Poller)

// WithLogger sets the logger used for per-attempt debug output.
func WithLogger(l *zap.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// New returns a poller for policy.
func New(policy Policy, opts ...Option) (*Poller, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	p := &Poller{policy: policy, logger: zap.NewNop()}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Policy returns the policy of p.
func (p *Poller) Policy() Policy { return p.policy }

// Resolve calls fetch until it returns something other than a
// NotFoundError. Exhausting the policy yields a *moka.PollTimeoutError
// for ref. Cancelling ctx stops the loop with the context error and no
// further query is made.
func Resolve[T any](ctx context.Context, p *Poller, ref types.TransactionReference, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	start := time.Now()
	attempts := 0
	op := func() (T, error) {
		attempts++
		v, err := fetch(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, backoff.Permanent(ctx.Err())
		}
		if _, pending := moka.IsNotFound(err); pending {
			return zero, err
		}
		return zero, backoff.Permanent(err)
	}
	notify := func(err error, next time.Duration) {
		p.logger.Debug("transaction still pending",
			zap.Stringer("reference", ref),
			zap.Int("attempt", attempts),
			zap.Duration("next", next))
	}

	v, err := backoff.RetryNotifyWithData(op, p.policy.backOff(ctx), notify)
	if err == nil {
		return v, nil
	}
	if _, pending := moka.IsNotFound(err); pending {
		elapsed := time.Since(start)
		p.logger.Debug("polling gave up",
			zap.Stringer("reference", ref),
			zap.Int("attempts", attempts),
			zap.Duration("elapsed", elapsed))
		return zero, &moka.PollTimeoutError{Reference: ref, Attempts: attempts, Elapsed: elapsed}
	}
	return zero, err
}

// Response polls getResponse for the response of ref.
func (p *Poller) Response(ctx context.Context, ref types.TransactionReference, getResponse func(context.Context, types.TransactionReference) (types.Response, error)) (types.Response, error) {
	return Resolve(ctx, p, ref, func(ctx context.Context) (types.Response, error) {
		return getResponse(ctx, ref)
	})
}
