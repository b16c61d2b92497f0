package acmeclient

import (
	"context"
	"fmt"

	"golang.org/x/crypto/acme"
)

// FakeACME implements ACME with function fields and can stand in for
// *acme.Client in tests. Unset fields return an error.
type FakeACME struct {
	FakeRegister                func(ctx context.Context, acct *acme.Account, prompt func(tosURL string) bool) (*acme.Account, error)
	FakeAuthorizeOrder          func(ctx context.Context, id []acme.AuthzID, opt ...acme.OrderOption) (*acme.Order, error)
	FakeGetAuthorization        func(ctx context.Context, url string) (*acme.Authorization, error)
	FakeHTTP01ChallengeResponse func(token string) (string, error)
	FakeAccept                  func(ctx context.Context, chal *acme.Challenge) (*acme.Challenge, error)
	FakeGetChallenge            func(ctx context.Context, url string) (*acme.Challenge, error)
	FakeCreateOrderCert         func(ctx context.Context, finalizeURL string, csr []byte, bundle bool) ([][]byte, string, error)
	FakeGetOrder                func(ctx context.Context, url string) (*acme.Order, error)
	FakeFetchCert               func(ctx context.Context, url string, bundle bool) ([][]byte, error)
}

var _ ACME = &FakeACME{}

func (f *FakeACME) Register(ctx context.Context, acct *acme.Account, prompt func(tosURL string) bool) (*acme.Account, error) {
	if f.FakeRegister != nil {
		return f.FakeRegister(ctx, acct, prompt)
	}
	return nil, fmt.Errorf("Register not implemented")
}

func (f *FakeACME) AuthorizeOrder(ctx context.Context, id []acme.AuthzID, opt ...acme.OrderOption) (*acme.Order, error) {
	if f.FakeAuthorizeOrder != nil {
		return f.FakeAuthorizeOrder(ctx, id, opt...)
	}
	return nil, fmt.Errorf("AuthorizeOrder not implemented")
}

func (f *FakeACME) GetAuthorization(ctx context.Context, url string) (*acme.Authorization, error) {
	if f.FakeGetAuthorization != nil {
		return f.FakeGetAuthorization(ctx, url)
	}
	return nil, fmt.Errorf("GetAuthorization not implemented")
}

func (f *FakeACME) HTTP01ChallengeResponse(token string) (string, error) {
	if f.FakeHTTP01ChallengeResponse != nil {
		return f.FakeHTTP01ChallengeResponse(token)
	}
	return token + ".fake-thumbprint", nil
}

func (f *FakeACME) Accept(ctx context.Context, chal *acme.Challenge) (*acme.Challenge, error) {
	if f.FakeAccept != nil {
		return f.FakeAccept(ctx, chal)
	}
	return nil, fmt.Errorf("Accept not implemented")
}

func (f *FakeACME) GetChallenge(ctx context.Context, url string) (*acme.Challenge, error) {
	if f.FakeGetChallenge != nil {
		return f.FakeGetChallenge(ctx, url)
	}
	return nil, fmt.Errorf("GetChallenge not implemented")
}

func (f *FakeACME) CreateOrderCert(ctx context.Context, finalizeURL string, csr []byte, bundle bool) ([][]byte, string, error) {
	if f.FakeCreateOrderCert != nil {
		return f.FakeCreateOrderCert(ctx, finalizeURL, csr, bundle)
	}
	return nil, "", fmt.Errorf("CreateOrderCert not implemented")
}

func (f *FakeACME) GetOrder(ctx context.Context, url string) (*acme.Order, error) {
	if f.FakeGetOrder != nil {
		return f.FakeGetOrder(ctx, url)
	}
	return nil, fmt.Errorf("GetOrder not implemented")
}

func (f *FakeACME) FetchCert(ctx context.Context, url string, bundle bool) ([][]byte, error) {
	if f.FakeFetchCert != nil {
		return f.FakeFetchCert(ctx, url, bundle)
	}
	return nil, fmt.Errorf("FetchCert not implemented")
}
