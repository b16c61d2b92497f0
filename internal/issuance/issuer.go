package issuance

import (
	"context"
	"crypto"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/acme"

	"github.com/edvin/certissuer/internal/acmeclient"
	"github.com/edvin/certissuer/internal/authz"
	"github.com/edvin/certissuer/internal/certerr"
	"github.com/edvin/certissuer/internal/keys"
	"github.com/edvin/certissuer/internal/metrics"
	"github.com/edvin/certissuer/internal/model"
	"github.com/edvin/certissuer/internal/platform"
	"github.com/edvin/certissuer/internal/poll"
	"github.com/edvin/certissuer/internal/sink"
)

// ACMEFactory opens a CA session for key against the directory at url.
type ACMEFactory func(key crypto.Signer, directoryURL string) acmeclient.ACME

// Deps are the collaborators of an Issuer.
type Deps struct {
	// KeyStore holds the persisted account key. Nil when the key never
	// comes from the database.
	KeyStore keys.Store
	// Publisher makes HTTP-01 responses reachable, usually a
	// *challenge.Responder.
	Publisher authz.Publisher
	// PublisherName labels publications in metrics.
	PublisherName string
	NewACME       ACMEFactory
	Poll          poll.Options
	// CertKeyType is passed to keys.Generate for the certificate key.
	CertKeyType string
	// Ephemeral selects the console sink. Defaults to sink.EphemeralFromEnv.
	Ephemeral sink.Detector
	// Console receives artifacts in ephemeral environments. Defaults to
	// os.Stdout.
	Console io.Writer
	Metrics *metrics.Issuance
}

// Result describes a successful issuance.
type Result struct {
	RunID     string
	Domains   []string
	KeyPEM    []byte
	Fullchain []byte
}

// Issuer runs the issuance workflow: register, order, authorize every
// domain, finalize and deliver. Each call to Issue is independent.
type Issuer struct {
	deps   Deps
	logger zerolog.Logger
}

// NewIssuer creates an Issuer.
func NewIssuer(deps Deps, logger zerolog.Logger) *Issuer {
	if deps.Ephemeral == nil {
		deps.Ephemeral = sink.EphemeralFromEnv
	}
	if deps.Console == nil {
		deps.Console = os.Stdout
	}
	return &Issuer{deps: deps, logger: logger.With().Str("component", "issuance").Logger()}
}

// Issue obtains a certificate for req and delivers key.pem and fullchain.pem
// to the sink selected for this environment. The returned error is a
// *certerr.Error naming the phase that failed.
func (i *Issuer) Issue(ctx context.Context, req model.IssuanceRequest) (*Result, error) {
	runID := platform.NewID()
	log := i.logger.With().Str("run_id", runID).Str("cn", req.CommonName()).Logger()
	start := time.Now()

	res, err := i.issue(ctx, req, runID, log)
	if err != nil {
		kind := certerr.KindOf(err)
		if kind == "" {
			err = certerr.New(certerr.KindFinalization, err)
			kind = certerr.KindFinalization
		}
		log.Error().Err(err).Str("phase", string(kind)).Msg("certificate issuance failed")
		i.deps.Metrics.ObserveRun(model.OutcomeFailed, string(kind), time.Since(start))
		return nil, err
	}

	log.Info().Dur("duration", time.Since(start)).Msg("certificate has been generated")
	i.deps.Metrics.ObserveRun(model.OutcomeSucceeded, "", time.Since(start))
	return res, nil
}

func (i *Issuer) issue(ctx context.Context, req model.IssuanceRequest, runID string, log zerolog.Logger) (*Result, error) {
	domains := req.Domains()
	if len(domains) == 0 {
		return nil, certerr.Newf(certerr.KindConfiguration, "no domains to certify")
	}
	if i.deps.NewACME == nil || i.deps.Publisher == nil {
		return nil, certerr.Newf(certerr.KindConfiguration, "issuer is missing its CA factory or challenge publisher")
	}

	accountKey, err := keys.NewProvider(req.Key(), i.deps.KeyStore, log).Key(ctx)
	if err != nil {
		return nil, err
	}

	client := acmeclient.New(
		i.deps.NewACME(accountKey, req.DirectoryURL()),
		log,
		acmeclient.WithFinalizeTimeout(i.deps.Poll.Budget()),
	)

	log.Info().Str("directory", req.DirectoryURL()).Msg("trying to register at the ACME service")
	if err := client.Register(ctx, req.Email()); err != nil {
		log.Warn().Err(err).Msg("account registration failed, continuing with the existing account")
	}

	log.Info().Strs("domains", domains).Msg("creating order")
	order, err := client.CreateOrder(ctx, domains)
	if err != nil {
		return nil, err
	}

	publisher := authz.Publisher(observedPublisher{Publisher: i.deps.Publisher, metrics: i.deps.Metrics, name: i.deps.PublisherName})
	if err := authz.NewCoordinator(client, publisher, i.deps.Poll, log).Authorize(ctx, order); err != nil {
		return nil, err
	}

	certKey, err := keys.Generate(i.deps.CertKeyType)
	if err != nil {
		return nil, certerr.New(certerr.KindConfiguration, err)
	}
	csr, err := acmeclient.CSR(domains[0], domains, certKey)
	if err != nil {
		return nil, certerr.New(certerr.KindFinalization, err)
	}

	if _, err := i.waitOrder(ctx, client, order, model.StatusReady); err != nil {
		return nil, err
	}

	log.Info().Msg("finalizing order")
	if err := client.Finalize(ctx, order, csr); err != nil {
		return nil, err
	}
	final, err := i.waitOrder(ctx, client, order, model.StatusValid)
	if err != nil {
		return nil, err
	}

	fullchain, err := client.FetchCertificate(ctx, final)
	if err != nil {
		return nil, err
	}
	keyPEM, err := keys.EncodePEM(certKey)
	if err != nil {
		return nil, certerr.New(certerr.KindOutput, err)
	}

	out := sink.Select(i.deps.Ephemeral, req.OutputDir(), i.deps.Console, req.CommonName(), log)
	if err := sink.Deliver(out, keyPEM, fullchain); err != nil {
		return nil, err
	}

	return &Result{RunID: runID, Domains: domains, KeyPEM: keyPEM, Fullchain: fullchain}, nil
}

// waitOrder polls the order with the same bound as challenge polling until it
// leaves pending or processing. Any status other than want is a finalization
// error.
func (i *Issuer) waitOrder(ctx context.Context, client *acmeclient.Client, order *acme.Order, want string) (*acme.Order, error) {
	last := order
	status, err := poll.Until(ctx, func(ctx context.Context) (string, error) {
		o, err := client.Order(ctx, order.URI)
		if err != nil {
			return "", err
		}
		last = o
		return o.Status, nil
	}, i.deps.Poll)
	if err != nil {
		if certerr.KindOf(err) == "" {
			err = certerr.New(certerr.KindFinalization, err)
		}
		return nil, err
	}
	if status != want {
		ferr := &certerr.Error{Kind: certerr.KindFinalization, Detail: fmt.Sprintf("order status %q, want %q", status, want)}
		if last.Error != nil {
			if typ, detail, ok := acmeclient.Problem(last.Error); ok {
				ferr.Type, ferr.Detail = typ, detail
			}
		}
		return nil, ferr
	}
	return last, nil
}

type observedPublisher struct {
	authz.Publisher
	metrics *metrics.Issuance
	name    string
}

func (p observedPublisher) Publish(ctx context.Context, token, content string) error {
	if err := p.Publisher.Publish(ctx, token, content); err != nil {
		return err
	}
	p.metrics.ObservePublication(p.name)
	return nil
}
