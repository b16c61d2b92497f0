package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/certissuer/internal/certerr"
)

func validParams() IssuanceParams {
	return IssuanceParams{
		Domains:      []string{"Example.com", "www.example.com"},
		Email:        "admin@example.com",
		DirectoryURL: "https://acme-staging-v02.api.letsencrypt.org/directory",
		Key:          KeySource{Value: "key.pem", RootDir: "/srv/app"},
		OutputDir:    "/srv/app/certificates",
	}
}

func TestNewIssuanceRequest_Valid(t *testing.T) {
	req, err := NewIssuanceRequest(validParams())
	require.NoError(t, err)

	assert.Equal(t, []string{"example.com", "www.example.com"}, req.Domains())
	assert.Equal(t, "example.com", req.CommonName())
	assert.Equal(t, "admin@example.com", req.Email())
	assert.Equal(t, "key.pem", req.Key().Value)
	assert.Equal(t, "/srv/app/certificates", req.OutputDir())
}

func TestNewIssuanceRequest_InternationalDomains(t *testing.T) {
	p := validParams()
	p.Domains = []string{"пример.рф", "example.xn--p1ai", "例え.テスト", "bücher.de"}

	req, err := NewIssuanceRequest(p)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"xn--e1afmkfd.xn--p1ai",
		"example.xn--p1ai",
		"xn--r8jz45g.xn--zckzah",
		"xn--bcher-kva.de",
	}, req.Domains())
}

func TestNewIssuanceRequest_FreeFormCertName(t *testing.T) {
	p := validParams()
	p.CertName = "My Site"

	req, err := NewIssuanceRequest(p)
	require.NoError(t, err)
	assert.Equal(t, "My Site", req.CommonName())
}

func TestNewIssuanceRequest_CertNameOverridesCommonName(t *testing.T) {
	p := validParams()
	p.CertName = "site"

	req, err := NewIssuanceRequest(p)
	require.NoError(t, err)
	assert.Equal(t, "site", req.CommonName())
}

func TestIssuanceRequest_DomainsIsCopy(t *testing.T) {
	req, err := NewIssuanceRequest(validParams())
	require.NoError(t, err)

	d := req.Domains()
	d[0] = "evil.com"
	assert.Equal(t, "example.com", req.Domains()[0])
}

func TestNewIssuanceRequest_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*IssuanceParams)
	}{
		{"no domains", func(p *IssuanceParams) { p.Domains = nil }},
		{"bad domain", func(p *IssuanceParams) { p.Domains = []string{"not a domain"} }},
		{"single label", func(p *IssuanceParams) { p.Domains = []string{"localhost"} }},
		{"underscore", func(p *IssuanceParams) { p.Domains = []string{"bad_name.example.com"} }},
		{"bad email", func(p *IssuanceParams) { p.Email = "nobody" }},
		{"missing directory", func(p *IssuanceParams) { p.DirectoryURL = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(&p)
			_, err := NewIssuanceRequest(p)
			require.Error(t, err)
			assert.ErrorIs(t, err, certerr.ErrConfiguration)
		})
	}
}
