package acmeclient

import (
	"context"
	"crypto"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/acme"

	"github.com/edvin/certissuer/internal/certerr"
)

const userAgent = "certissuer"

// Client is one issuance session with an ACME CA. It keeps the signed chain
// returned by Finalize so FetchCertificate can avoid a second round trip.
type Client struct {
	acme            ACME
	logger          zerolog.Logger
	finalizeTimeout time.Duration

	chain   [][]byte
	certURL string
}

// Option configures a Client.
type Option func(*Client)

// WithFinalizeTimeout bounds the wait inside Finalize. Zero means the
// caller's context is the only bound.
func WithFinalizeTimeout(d time.Duration) Option {
	return func(c *Client) { c.finalizeTimeout = d }
}

// NewACME returns an *acme.Client bound to key for the directory at
// directoryURL. httpClient may be nil to use http.DefaultClient.
func NewACME(key crypto.Signer, directoryURL string, httpClient *http.Client) ACME {
	return &acme.Client{
		Key:          key,
		DirectoryURL: directoryURL,
		HTTPClient:   httpClient,
		UserAgent:    userAgent,
	}
}

// New creates a Client over an ACME implementation.
func New(a ACME, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		acme:   a,
		logger: logger.With().Str("component", "acmeclient").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register creates an account for the session key. An existing account for
// the key counts as success.
func (c *Client) Register(ctx context.Context, email string) error {
	acct := &acme.Account{Contact: []string{"mailto:" + email}}
	_, err := c.acme.Register(ctx, acct, acme.AcceptTOS)
	if errors.Is(err, acme.ErrAccountAlreadyExists) {
		c.logger.Debug().Str("email", email).Msg("ACME account already registered")
		return nil
	}
	if err != nil {
		return caError(certerr.KindRegistration, "register ACME account", err)
	}
	c.logger.Info().Str("email", email).Msg("registered ACME account")
	return nil
}

// CreateOrder requests an order covering domains.
func (c *Client) CreateOrder(ctx context.Context, domains []string) (*acme.Order, error) {
	order, err := c.acme.AuthorizeOrder(ctx, acme.DomainIDs(domains...))
	if err != nil {
		return nil, caError(certerr.KindOrderCreation, "authorize order", err)
	}
	c.logger.Debug().Str("order", order.URI).Int("authorizations", len(order.AuthzURLs)).Msg("created order")
	return order, nil
}

// Authorization fetches one authorization of the order.
func (c *Client) Authorization(ctx context.Context, url string) (*acme.Authorization, error) {
	authz, err := c.acme.GetAuthorization(ctx, url)
	if err != nil {
		return nil, caError(certerr.KindAuthorization, "get authorization", err)
	}
	return authz, nil
}

// ChallengeResponse computes the HTTP-01 key authorization for token.
func (c *Client) ChallengeResponse(token string) (string, error) {
	keyAuth, err := c.acme.HTTP01ChallengeResponse(token)
	if err != nil {
		return "", certerr.New(certerr.KindAuthorization, fmt.Errorf("compute key auth: %w", err))
	}
	return keyAuth, nil
}

// Accept tells the CA the challenge response is in place.
func (c *Client) Accept(ctx context.Context, chal *acme.Challenge) error {
	if _, err := c.acme.Accept(ctx, chal); err != nil {
		return caError(certerr.KindAuthorization, "accept challenge", err)
	}
	return nil
}

// Challenge reloads a challenge to observe its status.
func (c *Client) Challenge(ctx context.Context, url string) (*acme.Challenge, error) {
	chal, err := c.acme.GetChallenge(ctx, url)
	if err != nil {
		return nil, caError(certerr.KindAuthorization, "get challenge", err)
	}
	return chal, nil
}

// Finalize submits the DER csr for order and keeps the issued chain.
func (c *Client) Finalize(ctx context.Context, order *acme.Order, csr []byte) error {
	if c.finalizeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.finalizeTimeout)
		defer cancel()
	}

	der, certURL, err := c.acme.CreateOrderCert(ctx, order.FinalizeURL, csr, true)
	if err != nil {
		return caError(certerr.KindFinalization, "finalize order", err)
	}

	c.chain = der
	c.certURL = certURL
	c.logger.Debug().Str("order", order.URI).Int("certificates", len(der)).Msg("finalized order")
	return nil
}

// Order reloads the order at url.
func (c *Client) Order(ctx context.Context, url string) (*acme.Order, error) {
	order, err := c.acme.GetOrder(ctx, url)
	if err != nil {
		return nil, caError(certerr.KindFinalization, "get order", err)
	}
	return order, nil
}

// FetchCertificate returns the PEM encoded full chain for a valid order,
// leaf first.
func (c *Client) FetchCertificate(ctx context.Context, order *acme.Order) ([]byte, error) {
	der := c.chain
	if len(der) == 0 {
		url := order.CertURL
		if url == "" {
			url = c.certURL
		}
		if url == "" {
			return nil, certerr.Newf(certerr.KindFinalization, "order %s has no certificate URL", order.URI)
		}

		var err error
		der, err = c.acme.FetchCert(ctx, url, true)
		if err != nil {
			return nil, caError(certerr.KindFinalization, "fetch certificate", err)
		}
	}
	if len(der) == 0 {
		return nil, certerr.Newf(certerr.KindFinalization, "CA returned an empty certificate chain")
	}

	var out []byte
	for _, b := range der {
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: b})...)
	}
	return out, nil
}
