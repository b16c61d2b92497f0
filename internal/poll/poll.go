package poll

import (
	"context"
	"time"

	"github.com/edvin/certissuer/internal/model"
)

const (
	DefaultInterval    = time.Second
	DefaultMaxAttempts = 10
)

// SleepFunc blocks for d. It returns early with an error if ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// FetchFunc returns the current status of the polled resource.
type FetchFunc func(ctx context.Context) (string, error)

// Options bound a poll as (interval, max attempts). Zero values fall back to
// the defaults.
type Options struct {
	Interval    time.Duration
	MaxAttempts int
	// InProgress reports whether polling should continue for a status.
	// Defaults to model.InProgress (pending or processing).
	InProgress func(status string) bool
	Sleep      SleepFunc
}

// Until calls fetch until it reports a status for which InProgress is false
// or MaxAttempts fetches have been made, sleeping Interval between fetches.
// It returns the last observed status unchanged. An error from fetch stops
// polling and is returned with the last status seen before it.
func Until(ctx context.Context, fetch FetchFunc, opts Options) (string, error) {
	opts = opts.withDefaults()

	var last string
	for attempt := 1; ; attempt++ {
		status, err := fetch(ctx)
		if err != nil {
			return last, err
		}
		last = status

		if !opts.InProgress(status) || attempt >= opts.MaxAttempts {
			return last, nil
		}
		if err := opts.Sleep(ctx, opts.Interval); err != nil {
			return last, err
		}
	}
}

// Budget is the longest a poll can wait: Interval times MaxAttempts.
func (o Options) Budget() time.Duration {
	o = o.withDefaults()
	return o.Interval * time.Duration(o.MaxAttempts)
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.InProgress == nil {
		o.InProgress = model.InProgress
	}
	if o.Sleep == nil {
		o.Sleep = Sleep
	}
	return o
}

// Sleep is the real-time SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
