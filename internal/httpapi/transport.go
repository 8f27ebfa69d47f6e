package httpapi

import (
	"context"
	"net/http"
)

// TokenMinter mints a signed token for a claim set; tokman.Manager satisfies
// it.
type TokenMinter interface {
	Encode(ctx context.Context, claims map[string]any) (string, error)
}

// Transport is an http.RoundTripper that injects a freshly minted token into
// outbound requests. Tokens expire while connections are long-lived, so the
// token is minted per request, lazily, and only when the caller did not
// already set Authorization.
type Transport struct {
	Base     http.RoundTripper
	Minter   TokenMinter
	Audience string
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Authorization") != "" {
		return t.base().RoundTrip(req)
	}

	tok, err := t.Minter.Encode(req.Context(), map[string]any{"aud": t.Audience})
	if err != nil {
		return nil, err
	}

	// RoundTrippers must not mutate the caller's request.
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+tok)
	return t.base().RoundTrip(clone)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
