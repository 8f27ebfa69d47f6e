// Package resolver turns (issuer, kid) into a verification key. Local kids
// read the authoritative store; foreign kids go through a two-tier cache
// (in-process map, then shared store) and finally an HTTP fetch against the
// issuer's configured endpoint.
package resolver

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/dropDatabas3/tokman/internal/keys"
	"github.com/dropDatabas3/tokman/internal/keystore"
	"github.com/dropDatabas3/tokman/internal/metrics"
	"github.com/dropDatabas3/tokman/internal/observability/logger"
)

// TrustedIssuer is one entry of the closed trust set.
type TrustedIssuer struct {
	URL string
}

// Resolver resolves verification keys for a configured service identity.
// Safe for concurrent use. Concurrent resolves of the same (issuer, kid) may
// fetch redundantly; correctness only requires never serving data past its
// freshness window, which both cache tiers bound by TTL.
type Resolver struct {
	service      string
	trusted      map[string]TrustedIssuer
	store        keystore.Store
	keys         keystore.Keys
	httpc        *http.Client
	publicKeyTTL time.Duration
	fetchTimeout time.Duration
	log          *zap.Logger

	// local memoizes the service's own public keys for the process lifetime:
	// a kid's key never changes once created, so no invalidation is needed.
	local  *gocache.Cache
	remote *gocache.Cache
}

// New builds a Resolver. httpc may be nil, in which case a default client
// bounded by fetchTimeout is used; an unreachable issuer must never stall
// verification indefinitely.
func New(store keystore.Store, service string, trusted map[string]TrustedIssuer, publicKeyTTL, fetchTimeout time.Duration, httpc *http.Client) *Resolver {
	if httpc == nil {
		httpc = &http.Client{Timeout: fetchTimeout}
	}
	return &Resolver{
		service:      service,
		trusted:      trusted,
		store:        store,
		keys:         keystore.Keys{Service: service},
		httpc:        httpc,
		publicKeyTTL: publicKeyTTL,
		fetchTimeout: fetchTimeout,
		log:          logger.Named("resolver").With(logger.Service(service)),
		local:        gocache.New(gocache.NoExpiration, 0),
		remote:       gocache.New(publicKeyTTL, 10*time.Minute),
	}
}

// Resolve returns the public key for (issuer, kid), fetching and caching as
// needed. Fails with ErrUnknownIssuer for issuers outside the trusted set and
// with a *FetchError when the network fetch fails.
func (r *Resolver) Resolve(ctx context.Context, issuer, kid string) (*rsa.PublicKey, error) {
	if issuer == r.service {
		return r.resolveLocal(ctx, kid)
	}

	ti, ok := r.trusted[issuer]
	if !ok {
		r.log.Warn("token from untrusted issuer", logger.Issuer(issuer), logger.KID(kid))
		return nil, ErrUnknownIssuer
	}

	cacheKey := issuer + ":" + kid
	if v, ok := r.remote.Get(cacheKey); ok {
		return v.(*rsa.PublicKey), nil
	}

	b, err := r.store.Get(ctx, r.keys.IssuerPublicKey(issuer, kid))
	if err == nil {
		pub, perr := keys.ParsePublicPEM(b)
		if perr != nil {
			return nil, perr
		}
		r.remote.Set(cacheKey, pub, r.publicKeyTTL)
		return pub, nil
	}
	if !errors.Is(err, keystore.ErrNotFound) {
		return nil, err
	}

	pem, pub, err := r.fetch(ctx, ti, issuer, kid)
	if err != nil {
		return nil, err
	}
	if serr := r.store.Set(ctx, r.keys.IssuerPublicKey(issuer, kid), pem, r.publicKeyTTL); serr != nil {
		// The key itself is authentic; a cache write failure only costs a
		// re-fetch next time.
		r.log.Warn("caching issuer key failed", logger.Issuer(issuer), logger.KID(kid), logger.Err(serr))
	}
	r.remote.Set(cacheKey, pub, r.publicKeyTTL)
	return pub, nil
}

func (r *Resolver) resolveLocal(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if v, ok := r.local.Get(kid); ok {
		return v.(*rsa.PublicKey), nil
	}
	b, err := r.store.Get(ctx, r.keys.PublicKey(kid))
	if errors.Is(err, keystore.ErrNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	pub, err := keys.ParsePublicPEM(b)
	if err != nil {
		return nil, err
	}
	r.local.Set(kid, pub, gocache.NoExpiration)
	return pub, nil
}

type keyResponse struct {
	PublicKey string `json:"public_key"`
}

func (r *Resolver) fetch(ctx context.Context, ti TrustedIssuer, issuer, kid string) ([]byte, *rsa.PublicKey, error) {
	if r.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.fetchTimeout)
		defer cancel()
	}

	u, err := url.Parse(ti.URL)
	if err != nil {
		return nil, nil, &FetchError{Issuer: issuer, Endpoint: ti.URL, Err: err}
	}
	q := u.Query()
	q.Set("kid", kid)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, &FetchError{Issuer: issuer, Endpoint: ti.URL, Err: err}
	}

	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		metrics.IssuerKeyFetches.WithLabelValues(issuer, "error").Inc()
		return nil, nil, &FetchError{Issuer: issuer, Endpoint: ti.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		metrics.IssuerKeyFetches.WithLabelValues(issuer, "error").Inc()
		return nil, nil, &FetchError{Issuer: issuer, Endpoint: ti.URL, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		metrics.IssuerKeyFetches.WithLabelValues(issuer, "error").Inc()
		return nil, nil, &FetchError{Issuer: issuer, Endpoint: ti.URL, Err: err}
	}
	var kr keyResponse
	if err := json.Unmarshal(body, &kr); err != nil {
		metrics.IssuerKeyFetches.WithLabelValues(issuer, "error").Inc()
		return nil, nil, &FetchError{Issuer: issuer, Endpoint: ti.URL, Err: err}
	}
	if kr.PublicKey == "" {
		metrics.IssuerKeyFetches.WithLabelValues(issuer, "error").Inc()
		return nil, nil, &FetchError{Issuer: issuer, Endpoint: ti.URL, Err: errMissingPublicKey}
	}
	pub, err := keys.ParsePublicPEM([]byte(kr.PublicKey))
	if err != nil {
		metrics.IssuerKeyFetches.WithLabelValues(issuer, "error").Inc()
		return nil, nil, &FetchError{Issuer: issuer, Endpoint: ti.URL, Err: err}
	}

	metrics.IssuerKeyFetches.WithLabelValues(issuer, "success").Inc()
	r.log.Debug("issuer key fetched",
		logger.Issuer(issuer),
		logger.KID(kid),
		logger.Endpoint(ti.URL),
		logger.Duration(time.Since(start)),
	)
	return []byte(kr.PublicKey), pub, nil
}

var errMissingPublicKey = errors.New("response missing public_key")
