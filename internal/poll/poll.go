// internal/poll/poll.go
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
	"github.com/xkilldash9x/demoqa-e2e/internal/config"
)

// Recorder receives the attempt count of every finished query.
type Recorder interface {
	RecordPoll(query string, attempts int, timedOut bool)
}

// Options bounds a resilient query.
type Options struct {
	// Name labels the query in errors and metrics.
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Recorder Recorder
}

// FromProfile builds Options from a configured poll profile.
func FromProfile(name string, p config.PollProfile) Options {
	return Options{Name: name, Interval: p.Interval, Timeout: p.Timeout}
}

// Result describes how a query ended. TimedOut is a normal outcome, not an error.
type Result[T any] struct {
	Value     T
	Satisfied bool
	TimedOut  bool
	Attempts  int
	Elapsed   time.Duration
	// LastErr is the most recent error returned by the operation, if any.
	LastErr error
}

// Err converts a timed out result into a *schemas.TimeoutError. Satisfied results return nil.
func (r Result[T]) Err() error {
	if r.Satisfied {
		return nil
	}
	return &schemas.TimeoutError{What: "condition", Attempts: r.Attempts, Elapsed: r.Elapsed, LastErr: r.LastErr}
}

// errUnsatisfied makes backoff retry an attempt whose value failed the predicate.
var errUnsatisfied = errors.New("predicate not satisfied")

// Poll repeatedly invokes op and evaluates pred on its value until pred holds or the
// timeout elapses. The first satisfying value is returned immediately and op is not
// called again. A timeout is reported through Result.TimedOut only once the full
// timeout has passed. Errors from op are remembered and polling continues.
// The only error Poll returns is the parent context's.
func Poll[T any](ctx context.Context, op func(context.Context) (T, error), pred func(T) bool, opts Options) (Result[T], error) {
	start := time.Now()
	deadline := start.Add(opts.Timeout)
	interval := opts.Interval
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}

	var res Result[T]
	if err := ctx.Err(); err != nil {
		return res, err
	}

	operation := func() (T, error) {
		res.Attempts++
		v, err := attempt(ctx, deadline, op)
		if err != nil {
			res.LastErr = err
			if ctxErr := ctx.Err(); ctxErr != nil {
				return v, backoff.Permanent(ctxErr)
			}
			return v, err
		}
		res.Value = v
		if !pred(v) {
			return v, errUnsatisfied
		}
		return v, nil
	}

	b := backoff.WithContext(&deadlineBackOff{BackOff: backoff.NewConstantBackOff(interval), deadline: deadline}, ctx)
	if _, err := backoff.RetryWithData(operation, b); err == nil {
		res.Satisfied = true
	} else if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	} else {
		res.TimedOut = true
	}

	res.Elapsed = time.Since(start)
	if opts.Recorder != nil {
		opts.Recorder.RecordPoll(opts.Name, res.Attempts, res.TimedOut)
	}
	return res, nil
}

// deadlineBackOff clamps every wait to the time left before deadline and stops once it
// has passed, so the last attempt runs at the deadline.
type deadlineBackOff struct {
	backoff.BackOff
	deadline time.Time
}

func (d *deadlineBackOff) NextBackOff() time.Duration {
	remaining := time.Until(d.deadline)
	if remaining <= 0 {
		return backoff.Stop
	}
	next := d.BackOff.NextBackOff()
	if next == backoff.Stop {
		return backoff.Stop
	}
	return min(next, remaining)
}

// attempt runs op with a context that expires at the poll deadline, so a single slow
// attempt cannot hold the query far past its timeout.
func attempt[T any](ctx context.Context, deadline time.Time, op func(context.Context) (T, error)) (T, error) {
	if time.Until(deadline) <= 0 {
		return op(ctx)
	}
	opCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	return op(opCtx)
}

// Until polls cond until it reports true and turns a timeout into a *schemas.TimeoutError.
func Until(ctx context.Context, cond func(context.Context) (bool, error), opts Options) error {
	res, err := Poll(ctx, cond, func(ok bool) bool { return ok }, opts)
	if err != nil {
		return err
	}
	if !res.Satisfied {
		what := opts.Name
		if what == "" {
			what = "condition"
		}
		return &schemas.TimeoutError{What: what, Attempts: res.Attempts, Elapsed: res.Elapsed, LastErr: res.LastErr}
	}
	return nil
}

// Describe is a small helper for log fields.
func (r Result[T]) Describe() string {
	switch {
	case r.Satisfied:
		return fmt.Sprintf("satisfied after %d attempts", r.Attempts)
	case r.TimedOut:
		return fmt.Sprintf("timed out after %d attempts", r.Attempts)
	default:
		return fmt.Sprintf("interrupted after %d attempts", r.Attempts)
	}
}
