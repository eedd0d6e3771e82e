package handoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	log "github.com/sirupsen/logrus"
)

// WaitPolicy bounds a wait: at most Attempts polls spaced Interval apart after an
// immediate first check, so the ceiling is Attempts*Interval.
type WaitPolicy struct {
	Attempts int
	Interval time.Duration
}

// DefaultPortWait and DefaultCodeWait are the policies used when the configuration
// leaves the attempt count or interval unset.
var (
	DefaultPortWait = WaitPolicy{Attempts: 10, Interval: time.Second}
	DefaultCodeWait = WaitPolicy{Attempts: 60, Interval: time.Second}
)

// Or returns p with every unset field taken from def.
func (p WaitPolicy) Or(def WaitPolicy) WaitPolicy {
	if p.Attempts <= 0 {
		p.Attempts = def.Attempts
	}
	if p.Interval <= 0 {
		p.Interval = def.Interval
	}
	return p
}

// Ceiling returns the total time the policy waits before giving up.
func (p WaitPolicy) Ceiling() time.Duration {
	p = p.normalized()
	return time.Duration(p.Attempts) * p.Interval
}

func (p WaitPolicy) normalized() WaitPolicy {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if p.Interval <= 0 {
		p.Interval = time.Second
	}
	return p
}

var errNotYet = errors.New("record not yet published")

// WaitForPort blocks until the port record appears, the policy ceiling passes
// (ErrWaitTimeout), or ctx ends.
func WaitForPort(ctx context.Context, s Store, p WaitPolicy) (int, error) {
	return waitFor(ctx, s, p, "port", func() (int, error) {
		port, ok, err := s.Port(ctx)
		if err != nil {
			return 0, backoff.Permanent(err)
		}
		if !ok {
			return 0, errNotYet
		}
		return port, nil
	})
}

// WaitForCode blocks until the code record appears, the policy ceiling passes
// (ErrWaitTimeout), or ctx ends.
func WaitForCode(ctx context.Context, s Store, p WaitPolicy) (string, error) {
	return waitFor(ctx, s, p, "code", func() (string, error) {
		code, ok, err := s.Code(ctx)
		if err != nil {
			return "", backoff.Permanent(err)
		}
		if !ok {
			return "", errNotYet
		}
		return code, nil
	})
}

func waitFor[T any](ctx context.Context, s Store, p WaitPolicy, record string, read func() (T, error)) (T, error) {
	p = p.normalized()
	if n, ok := s.(Notifier); ok {
		return waitNotified(ctx, n, p, record, read)
	}

	value, err := backoff.Retry(ctx, read,
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Interval)),
		backoff.WithMaxTries(uint(p.Attempts+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(_ error, next time.Duration) {
			log.Tracef("handoff: %s not published, next check in %v", record, next)
		}),
	)
	return value, classifyWaitErr(ctx, record, p, err)
}

// waitNotified waits on the store's change channel, bounded by the same ceiling as polling.
func waitNotified[T any](ctx context.Context, n Notifier, p WaitPolicy, record string, read func() (T, error)) (T, error) {
	var zero T
	deadline := time.NewTimer(p.Ceiling())
	defer deadline.Stop()

	for {
		changed := n.Changed()
		value, err := read()
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, errNotYet) {
			return zero, classifyWaitErr(ctx, record, p, err)
		}
		select {
		case <-changed:
		case <-deadline.C:
			// One last look in case the write raced the timer.
			if value, err = read(); err == nil {
				return value, nil
			}
			return zero, classifyWaitErr(ctx, record, p, err)
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

func classifyWaitErr(ctx context.Context, record string, p WaitPolicy, err error) error {
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, errNotYet):
		return fmt.Errorf("%w: %s after %v", ErrWaitTimeout, record, p.Ceiling())
	default:
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return permanent.Unwrap()
		}
		return err
	}
}
