package acmeclient

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/acme"

	"github.com/edvin/certissuer/internal/certerr"
)

const problemPrefix = "urn:ietf:params:acme:error:"

// Problem extracts the RFC 8555 problem type (without the urn prefix) and
// detail from err. ok is false when err carries no ACME problem document.
func Problem(err error) (typ, detail string, ok bool) {
	var ae *acme.Error
	if !errors.As(err, &ae) {
		return "", "", false
	}
	return strings.TrimPrefix(ae.ProblemType, problemPrefix), ae.Detail, true
}

// caError wraps a CA failure as a certerr.Error of kind, copying the problem
// type and detail when present.
func caError(kind certerr.Kind, action string, err error) error {
	e := certerr.New(kind, fmt.Errorf("%s: %w", action, err))
	if typ, detail, ok := Problem(err); ok {
		e.Type = typ
		e.Detail = detail
	}
	var oe *acme.OrderError
	if errors.As(err, &oe) && e.Detail == "" {
		e.Type = "order"
		e.Detail = "order status " + oe.Status
	}
	return e
}
