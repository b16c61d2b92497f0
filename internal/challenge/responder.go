package challenge

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/certissuer/internal/poll"
)

// DefaultDelay is how long Publish waits for published content to become
// externally visible before returning.
const DefaultDelay = 2 * time.Second

// Responder publishes HTTP-01 responses through a Backend.
type Responder struct {
	backend Backend
	delay   time.Duration
	sleep   poll.SleepFunc
	logger  zerolog.Logger
}

// Option configures a Responder.
type Option func(*Responder)

// WithDelay overrides the post-publish wait.
func WithDelay(d time.Duration) Option {
	return func(r *Responder) { r.delay = d }
}

// WithSleep injects the function used for the post-publish wait.
func WithSleep(sleep poll.SleepFunc) Option {
	return func(r *Responder) { r.sleep = sleep }
}

// NewResponder creates a Responder over backend.
func NewResponder(backend Backend, logger zerolog.Logger, opts ...Option) *Responder {
	r := &Responder{
		backend: backend,
		delay:   DefaultDelay,
		sleep:   poll.Sleep,
		logger:  logger.With().Str("component", "challenge").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Publish stores content for token and then waits the configured delay.
func (r *Responder) Publish(ctx context.Context, token, content string) error {
	if err := r.backend.Publish(ctx, token, content); err != nil {
		return err
	}
	r.logger.Debug().Str("token", token).Dur("delay", r.delay).Msg("published challenge response")

	if r.delay <= 0 {
		return nil
	}
	return r.sleep(ctx, r.delay)
}

// Backend returns the backend content is published through.
func (r *Responder) Backend() Backend {
	return r.backend
}

// Cleanup removes the published content for token.
func (r *Responder) Cleanup(ctx context.Context, token string) error {
	return r.backend.Cleanup(ctx, token)
}
