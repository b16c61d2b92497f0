package authz

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/acme"

	"github.com/edvin/certissuer/internal/acmeclient"
	"github.com/edvin/certissuer/internal/certerr"
	"github.com/edvin/certissuer/internal/poll"
)

type recordingPublisher struct {
	published []string
	cleaned   []string
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, token, content string) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, token)
	return nil
}

func (p *recordingPublisher) Cleanup(_ context.Context, token string) error {
	p.cleaned = append(p.cleaned, token)
	return nil
}

// fakeCA serves one authorization per domain. Each challenge walks through
// its configured statuses on successive GetChallenge calls.
type fakeCA struct {
	statuses      map[string][]string
	errs          map[string]error
	authzStatus   map[string]string
	noHTTP01      map[string]bool
	authorized    []string
	accepted      []string
	challengeGets map[string]int
}

func newFakeCA() *fakeCA {
	return &fakeCA{
		statuses:      map[string][]string{},
		errs:          map[string]error{},
		authzStatus:   map[string]string{},
		noHTTP01:      map[string]bool{},
		challengeGets: map[string]int{},
	}
}

func (f *fakeCA) client() *acmeclient.FakeACME {
	return &acmeclient.FakeACME{
		FakeGetAuthorization: func(_ context.Context, url string) (*acme.Authorization, error) {
			domain := strings.TrimPrefix(url, "https://ca/authz/")
			f.authorized = append(f.authorized, domain)
			status := f.authzStatus[domain]
			if status == "" {
				status = acme.StatusPending
			}
			chals := []*acme.Challenge{{Type: "dns-01", Token: "dns-" + domain, URI: "https://ca/chal/dns/" + domain}}
			if !f.noHTTP01[domain] {
				chals = append(chals, &acme.Challenge{Type: "http-01", Token: "tok-" + domain, URI: "https://ca/chal/" + domain})
			}
			return &acme.Authorization{
				URI:        url,
				Status:     status,
				Identifier: acme.AuthzID{Type: "dns", Value: domain},
				Challenges: chals,
			}, nil
		},
		FakeAccept: func(_ context.Context, chal *acme.Challenge) (*acme.Challenge, error) {
			f.accepted = append(f.accepted, chal.URI)
			return chal, nil
		},
		FakeGetChallenge: func(_ context.Context, url string) (*acme.Challenge, error) {
			domain := strings.TrimPrefix(url, "https://ca/chal/")
			seq := f.statuses[domain]
			i := f.challengeGets[domain]
			f.challengeGets[domain]++
			if i >= len(seq) {
				i = len(seq) - 1
			}
			ch := &acme.Challenge{URI: url, Type: "http-01", Status: seq[i]}
			if seq[i] == acme.StatusInvalid {
				ch.Error = f.errs[domain]
			}
			return ch, nil
		},
	}
}

func order(domains ...string) *acme.Order {
	o := &acme.Order{URI: "https://ca/order/1"}
	for _, d := range domains {
		o.AuthzURLs = append(o.AuthzURLs, "https://ca/authz/"+d)
	}
	return o
}

func noSleep(context.Context, time.Duration) error { return nil }

func newCoordinator(ca *fakeCA, pub Publisher) *Coordinator {
	client := acmeclient.New(ca.client(), zerolog.Nop())
	return NewCoordinator(client, pub, poll.Options{Interval: time.Second, MaxAttempts: 10, Sleep: noSleep}, zerolog.Nop())
}

func TestAuthorize_AllValid(t *testing.T) {
	ca := newFakeCA()
	ca.statuses["example.com"] = []string{"pending", "processing", "valid"}
	ca.statuses["www.example.com"] = []string{"valid"}
	pub := &recordingPublisher{}

	err := newCoordinator(ca, pub).Authorize(context.Background(), order("example.com", "www.example.com"))
	require.NoError(t, err)

	assert.Equal(t, []string{"tok-example.com", "tok-www.example.com"}, pub.published)
	assert.Equal(t, pub.published, pub.cleaned)
	assert.Equal(t, 3, ca.challengeGets["example.com"])
	assert.Equal(t, []string{"https://ca/chal/example.com", "https://ca/chal/www.example.com"}, ca.accepted)
}

func TestAuthorize_FollowsCAOrder(t *testing.T) {
	ca := newFakeCA()
	ca.statuses["b.com"] = []string{"valid"}
	ca.statuses["a.com"] = []string{"valid"}
	pub := &recordingPublisher{}

	require.NoError(t, newCoordinator(ca, pub).Authorize(context.Background(), order("b.com", "a.com")))
	assert.Equal(t, []string{"b.com", "a.com"}, ca.authorized)
}

// A failure on one domain stops the run: later domains are never
// authorized and nothing is published for them.
func TestAuthorize_ShortCircuitsOnFirstFailure(t *testing.T) {
	ca := newFakeCA()
	ca.statuses["a.com"] = []string{"pending", "invalid"}
	ca.errs["a.com"] = &acme.Error{ProblemType: "urn:ietf:params:acme:error:dns", Detail: "no record"}
	ca.statuses["b.com"] = []string{"valid"}
	pub := &recordingPublisher{}

	err := newCoordinator(ca, pub).Authorize(context.Background(), order("a.com", "b.com"))
	require.Error(t, err)
	assert.ErrorIs(t, err, certerr.ErrChallengeValidation)

	var ce *certerr.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "a.com", ce.Domain)
	assert.Equal(t, "dns", ce.Type)
	assert.Equal(t, "no record", ce.Detail)

	assert.Equal(t, []string{"tok-a.com"}, pub.published)
	assert.Equal(t, []string{"a.com"}, ca.authorized)
	assert.NotContains(t, ca.accepted, "https://ca/chal/b.com")
	assert.Equal(t, []string{"tok-a.com"}, pub.cleaned, "failed challenge is still cleaned up")
}

func TestAuthorize_PollBudgetExhausted(t *testing.T) {
	ca := newFakeCA()
	ca.statuses["slow.com"] = []string{"pending"}
	pub := &recordingPublisher{}

	err := newCoordinator(ca, pub).Authorize(context.Background(), order("slow.com"))
	require.ErrorIs(t, err, certerr.ErrChallengeValidation)
	assert.Contains(t, err.Error(), `"pending"`)
	assert.Equal(t, 10, ca.challengeGets["slow.com"])
}

func TestAuthorize_SkipsValidAuthorization(t *testing.T) {
	ca := newFakeCA()
	ca.authzStatus["done.com"] = acme.StatusValid
	pub := &recordingPublisher{}

	require.NoError(t, newCoordinator(ca, pub).Authorize(context.Background(), order("done.com")))
	assert.Empty(t, pub.published)
	assert.Empty(t, ca.accepted)
}

func TestAuthorize_InvalidAuthorization(t *testing.T) {
	ca := newFakeCA()
	ca.authzStatus["bad.com"] = acme.StatusInvalid

	err := newCoordinator(ca, &recordingPublisher{}).Authorize(context.Background(), order("bad.com"))
	assert.ErrorIs(t, err, certerr.ErrAuthorization)
	assert.Contains(t, err.Error(), "bad.com")
}

func TestAuthorize_NoHTTP01(t *testing.T) {
	ca := newFakeCA()
	ca.noHTTP01["dnsonly.com"] = true

	err := newCoordinator(ca, &recordingPublisher{}).Authorize(context.Background(), order("dnsonly.com"))
	require.ErrorIs(t, err, certerr.ErrAuthorization)

	var ce *certerr.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "dnsonly.com", ce.Domain)
}

func TestAuthorize_PublishFailure(t *testing.T) {
	ca := newFakeCA()
	ca.statuses["a.com"] = []string{"valid"}

	err := newCoordinator(ca, &recordingPublisher{err: errors.New("read-only fs")}).Authorize(context.Background(), order("a.com"))
	assert.ErrorIs(t, err, certerr.ErrAuthorization)
	assert.Empty(t, ca.accepted)
}

func TestAuthorize_FetchErrorNamesDomain(t *testing.T) {
	ca := newFakeCA()
	fake := ca.client()
	fake.FakeGetChallenge = func(context.Context, string) (*acme.Challenge, error) {
		return nil, errors.New("timeout")
	}
	c := NewCoordinator(acmeclient.New(fake, zerolog.Nop()), &recordingPublisher{},
		poll.Options{Sleep: noSleep}, zerolog.Nop())

	err := c.Authorize(context.Background(), order("a.com"))
	require.ErrorIs(t, err, certerr.ErrAuthorization)

	var ce *certerr.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "a.com", ce.Domain)
}
