// Package retry runs operations under an explicit exponential backoff policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// ErrRetriesExhausted marks an operation that failed on every allowed attempt.
var ErrRetriesExhausted = errors.New("retries exhausted")

// ExhaustedError carries the last failure after all attempts were used.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", ErrRetriesExhausted, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() []error { return []error{ErrRetriesExhausted, e.Err} }

// Policy bounds how an operation is retried.
type Policy struct {
	Name        string
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
	Logger      *zerolog.Logger
}

// FromRetries builds a policy allowing retries extra attempts with the
// 1s to 4s exponential delays used for page fetches.
func FromRetries(name string, retries int) Policy {
	if retries < 0 {
		retries = 0
	}
	return Policy{
		Name:        name,
		MaxAttempts: retries + 1,
		Initial:     time.Second,
		Max:         4 * time.Second,
	}
}

// Permanent wraps err so Do stops retrying and returns it unchanged.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, the context ends,
// or the attempts run out. In the last case the error satisfies
// errors.Is(err, ErrRetriesExhausted) and still wraps op's last error.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	exp := backoff.NewExponentialBackOff()
	if p.Initial > 0 {
		exp.InitialInterval = p.Initial
	}
	if p.Max > 0 {
		exp.MaxInterval = p.Max
	}
	exp.MaxElapsedTime = 0

	var (
		tries     int
		permanent bool
	)
	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)
	err := backoff.RetryNotify(func() error {
		tries++
		err := op(ctx)
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			permanent = true
		}
		return err
	}, b, func(err error, wait time.Duration) {
		if p.Logger != nil {
			p.Logger.Debug().Err(err).Str("operation", p.Name).Int("attempt", tries).
				Dur("wait", wait).Msg("retrying after failure")
		}
	})

	switch {
	case err == nil:
		return nil
	case permanent:
		return err
	case ctx.Err() != nil:
		return fmt.Errorf("%s: %w", p.Name, ctx.Err())
	case tries < attempts:
		return err
	}

	if p.Logger != nil {
		p.Logger.Warn().Err(err).Str("operation", p.Name).Int("attempts", tries).Msg("retries exhausted")
	}
	return &ExhaustedError{Attempts: tries, Err: err}
}
