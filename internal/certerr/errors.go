package certerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an issuance failure by the phase that produced it.
type Kind string

const (
	KindConfiguration       Kind = "configuration"
	KindPath                Kind = "path"
	KindRegistration        Kind = "registration"
	KindOrderCreation       Kind = "order_creation"
	KindAuthorization       Kind = "authorization"
	KindChallengeValidation Kind = "challenge_validation"
	KindFinalization        Kind = "finalization"
	KindOutput              Kind = "output"
)

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrConfiguration       = &Error{Kind: KindConfiguration}
	ErrPath                = &Error{Kind: KindPath}
	ErrRegistration        = &Error{Kind: KindRegistration}
	ErrOrderCreation       = &Error{Kind: KindOrderCreation}
	ErrAuthorization       = &Error{Kind: KindAuthorization}
	ErrChallengeValidation = &Error{Kind: KindChallengeValidation}
	ErrFinalization        = &Error{Kind: KindFinalization}
	ErrOutput              = &Error{Kind: KindOutput}
)

// Error is the structured reason an issuance attempt stopped.
// Domain, Type and Detail are set when the CA reported a per-domain problem.
type Error struct {
	Kind   Kind
	Domain string
	Type   string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(" error")
	if e.Domain != "" {
		fmt.Fprintf(&b, " for %s", e.Domain)
	}
	if e.Type != "" {
		fmt.Fprintf(&b, ": %s", e.Type)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New wraps err as an *Error of the given kind.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Newf builds an *Error of the given kind from a format string.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
