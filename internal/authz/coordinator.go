package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/acme"

	"github.com/edvin/certissuer/internal/acmeclient"
	"github.com/edvin/certissuer/internal/certerr"
	"github.com/edvin/certissuer/internal/model"
	"github.com/edvin/certissuer/internal/poll"
)

const challengeHTTP01 = "http-01"

// CA is the part of the CA session the coordinator drives.
type CA interface {
	Authorization(ctx context.Context, url string) (*acme.Authorization, error)
	ChallengeResponse(token string) (string, error)
	Accept(ctx context.Context, chal *acme.Challenge) error
	Challenge(ctx context.Context, url string) (*acme.Challenge, error)
}

// Publisher makes a key authorization reachable by the CA's validator.
type Publisher interface {
	Publish(ctx context.Context, token, content string) error
	Cleanup(ctx context.Context, token string) error
}

// Coordinator authorizes the identifiers of an order one at a time, in the
// order the CA lists them, and stops at the first failure. Later
// authorizations are never touched once one fails.
type Coordinator struct {
	ca        CA
	publisher Publisher
	poll      poll.Options
	logger    zerolog.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(ca CA, publisher Publisher, opts poll.Options, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		ca:        ca,
		publisher: publisher,
		poll:      opts,
		logger:    logger.With().Str("component", "authz").Logger(),
	}
}

// Authorize validates every authorization of order. It returns nil when all
// are valid, else the first failure.
func (c *Coordinator) Authorize(ctx context.Context, order *acme.Order) error {
	for _, url := range order.AuthzURLs {
		if err := c.authorize(ctx, url); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) authorize(ctx context.Context, url string) error {
	authz, err := c.ca.Authorization(ctx, url)
	if err != nil {
		return err
	}
	domain := authz.Identifier.Value
	log := c.logger.With().Str("domain", domain).Logger()

	switch authz.Status {
	case model.StatusValid:
		log.Info().Msg("authorization already valid")
		return nil
	case model.StatusInvalid:
		return &certerr.Error{Kind: certerr.KindAuthorization, Domain: domain, Detail: "authorization is invalid"}
	}

	chal := http01(authz)
	if chal == nil {
		return &certerr.Error{Kind: certerr.KindAuthorization, Domain: domain, Detail: "no http-01 challenge offered"}
	}

	keyAuth, err := c.ca.ChallengeResponse(chal.Token)
	if err != nil {
		return withDomain(err, domain)
	}

	log.Info().Msg("sending authorization request")
	if err := c.publisher.Publish(ctx, chal.Token, keyAuth); err != nil {
		return &certerr.Error{Kind: certerr.KindAuthorization, Domain: domain, Err: fmt.Errorf("publish challenge response: %w", err)}
	}
	defer func() {
		if err := c.publisher.Cleanup(context.WithoutCancel(ctx), chal.Token); err != nil {
			log.Warn().Err(err).Msg("failed to clean up challenge response")
		}
	}()

	log.Debug().Msg("requesting challenge verification")
	if err := c.ca.Accept(ctx, chal); err != nil {
		return withDomain(err, domain)
	}

	last := chal
	status, err := poll.Until(ctx, func(ctx context.Context) (string, error) {
		ch, err := c.ca.Challenge(ctx, chal.URI)
		if err != nil {
			return "", err
		}
		last = ch
		log.Debug().Str("status", ch.Status).Msg("challenge status")
		return ch.Status, nil
	}, c.poll)
	if err != nil {
		return withDomain(err, domain)
	}

	if status != model.StatusValid {
		verr := &certerr.Error{Kind: certerr.KindChallengeValidation, Domain: domain}
		if typ, detail, ok := acmeclient.Problem(last.Error); ok {
			verr.Type, verr.Detail = typ, detail
		} else {
			verr.Detail = fmt.Sprintf("challenge status %q after polling", status)
		}
		log.Error().Str("type", verr.Type).Str("detail", verr.Detail).Msg("challenge verification failed")
		return verr
	}

	log.Info().Msg("verification valid")
	return nil
}

func http01(authz *acme.Authorization) *acme.Challenge {
	for _, ch := range authz.Challenges {
		if ch.Type == challengeHTTP01 {
			return ch
		}
	}
	return nil
}

// withDomain names domain on the first certerr.Error in err's chain, or
// wraps err as an authorization error.
func withDomain(err error, domain string) error {
	var ce *certerr.Error
	if errors.As(err, &ce) {
		if ce.Domain == "" {
			ce.Domain = domain
		}
		return err
	}
	return &certerr.Error{Kind: certerr.KindAuthorization, Domain: domain, Err: err}
}
