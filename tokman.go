// Package tokman issues and verifies signed identity tokens between services
// that never share a secret: each service signs with a private RSA key only it
// holds, peers verify after resolving the public key over HTTP. Manager is the
// single entry point for a configured service identity.
package tokman

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dropDatabas3/tokman/internal/config"
	"github.com/dropDatabas3/tokman/internal/keys"
	"github.com/dropDatabas3/tokman/internal/keystore"
	"github.com/dropDatabas3/tokman/internal/resolver"
	"github.com/dropDatabas3/tokman/internal/token"
)

// Manager combines the key lifecycle, issuer-key resolver and token codec for
// one service identity. All methods are safe for concurrent use; construct
// once and share.
type Manager struct {
	service   string
	store     keystore.Store
	lifecycle *keys.Lifecycle
	resolver  *resolver.Resolver
	codec     *token.Codec
}

// New wires a Manager from explicit collaborators. The store and HTTP client
// are injected rather than created internally so deployments control pooling
// and tests can substitute fakes. httpc may be nil.
func New(cfg *config.Config, store keystore.Store, httpc *http.Client) (*Manager, error) {
	if cfg == nil {
		return nil, config.ErrMissingServiceName
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("tokman: store is required")
	}

	trusted := make(map[string]resolver.TrustedIssuer, len(cfg.TrustedIssuers))
	for name, ti := range cfg.TrustedIssuers {
		trusted[name] = resolver.TrustedIssuer{URL: ti.URL}
	}

	svc := cfg.Service.Name
	lc := keys.NewLifecycle(store, svc, cfg.OldKeyTTL())
	res := resolver.New(store, svc, trusted, cfg.PublicKeyTTL(), cfg.FetchTimeout(), httpc)

	return &Manager{
		service:   svc,
		store:     store,
		lifecycle: lc,
		resolver:  res,
		codec:     token.NewCodec(svc, lc, res, cfg.TokenTTL()),
	}, nil
}

// Open is the convenience constructor: it builds the store named by the
// configuration and wires a Manager around it.
func Open(cfg *config.Config) (*Manager, error) {
	if cfg == nil {
		return nil, config.ErrMissingServiceName
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		store keystore.Store
		err   error
	)
	switch cfg.Store.Kind {
	case "redis":
		store, err = keystore.NewRedis(cfg.Store.Redis.Addr, cfg.Store.Redis.DB, cfg.Store.Redis.Password)
		if err != nil {
			return nil, err
		}
	case "memory", "":
		store = keystore.NewMemory()
	default:
		return nil, fmt.Errorf("tokman: unknown store kind %q", cfg.Store.Kind)
	}
	return New(cfg, store, nil)
}

// ServiceName is the identity embedded as iss in every issued token.
func (m *Manager) ServiceName() string { return m.service }

// Encode signs a claim set with the active key. See token.Codec.Encode for
// the claim requirements.
func (m *Manager) Encode(ctx context.Context, claims map[string]any) (string, error) {
	return m.codec.Encode(ctx, claims)
}

// Decode verifies a token from any trusted issuer and returns its claims and
// header.
func (m *Manager) Decode(ctx context.Context, raw string) (map[string]any, map[string]any, error) {
	return m.codec.Decode(ctx, raw)
}

// ActiveKeyID returns the current signing kid, generating the first pair on a
// fresh service.
func (m *Manager) ActiveKeyID(ctx context.Context) (string, error) {
	return m.lifecycle.ActiveKeyID(ctx)
}

// RotateKeys generates a fresh pair, flips the pointer and schedules the
// displaced pair to expire after the configured retirement TTL.
func (m *Manager) RotateKeys(ctx context.Context) (*keys.KeyPair, error) {
	return m.lifecycle.Generate(ctx, true)
}

// PublicKeyPEM returns the PEM public key of a local kid, as served by the
// resolution endpoint. Returns resolver.ErrKeyNotFound for unknown or
// store-expired kids.
func (m *Manager) PublicKeyPEM(ctx context.Context, kid string) ([]byte, error) {
	b, err := m.store.Get(ctx, keystore.Keys{Service: m.service}.PublicKey(kid))
	if errors.Is(err, keystore.ErrNotFound) {
		return nil, resolver.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Close releases the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}
