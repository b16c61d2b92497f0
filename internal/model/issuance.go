package model

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/edvin/certissuer/internal/certerr"
	"github.com/edvin/certissuer/internal/platform"
)

var validate = validator.New()

// KeySource describes where the account key comes from. Value is a path
// relative to RootDir or raw PEM material; InStore selects the persisted
// settings record first.
type KeySource struct {
	Value   string
	InStore bool
	RootDir string
}

// IssuanceParams are the raw inputs of one issuance attempt. Domains are
// checked after IDNA normalization, so internationalized names arrive here as
// punycode labels. CertName is a display label only.
type IssuanceParams struct {
	Domains      []string `validate:"required,min=1,dive,hostname_rfc1123,contains=."`
	CertName     string   `validate:"omitempty,max=255"`
	Email        string   `validate:"required,email"`
	DirectoryURL string   `validate:"required,url"`
	Key          KeySource
	OutputDir    string
}

// IssuanceRequest is the validated, immutable input of one issuance attempt.
// Construct it with NewIssuanceRequest; accessors return copies.
type IssuanceRequest struct {
	domains      []string
	certName     string
	email        string
	directoryURL string
	key          KeySource
	outputDir    string
}

// NewIssuanceRequest normalizes and validates params. Failures are
// configuration errors and happen before any network call.
func NewIssuanceRequest(params IssuanceParams) (IssuanceRequest, error) {
	domains, err := platform.NormalizeDomains(params.Domains)
	if err != nil {
		return IssuanceRequest{}, certerr.New(certerr.KindConfiguration, err)
	}
	params.Domains = domains

	if err := validate.Struct(params); err != nil {
		return IssuanceRequest{}, certerr.New(certerr.KindConfiguration, fmt.Errorf("validation error: %w", err))
	}

	return IssuanceRequest{
		domains:      domains,
		certName:     params.CertName,
		email:        params.Email,
		directoryURL: params.DirectoryURL,
		key:          params.Key,
		outputDir:    params.OutputDir,
	}, nil
}

// Domains returns the ordered domain set.
func (r IssuanceRequest) Domains() []string {
	out := make([]string, len(r.domains))
	copy(out, r.domains)
	return out
}

// CommonName is the explicit certificate name if set, else the first domain.
func (r IssuanceRequest) CommonName() string {
	if r.certName != "" {
		return r.certName
	}
	if len(r.domains) == 0 {
		return ""
	}
	return r.domains[0]
}

func (r IssuanceRequest) Email() string        { return r.email }
func (r IssuanceRequest) DirectoryURL() string { return r.directoryURL }
func (r IssuanceRequest) Key() KeySource       { return r.key }
func (r IssuanceRequest) OutputDir() string    { return r.outputDir }
