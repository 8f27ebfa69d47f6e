// Package token encodes and verifies the compact signed tokens exchanged
// between services. Signing always uses the local active key; verification
// resolves the issuer's key by (iss, kid) before the signature check.
package token

import (
	"context"
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/dropDatabas3/tokman/internal/keys"
	"github.com/dropDatabas3/tokman/internal/metrics"
	"github.com/dropDatabas3/tokman/internal/observability/logger"
	"github.com/dropDatabas3/tokman/internal/resolver"
)

const alg = "RS256"

// Codec signs claims with the lifecycle's active key and verifies tokens with
// resolver-provided keys. Safe for concurrent use.
type Codec struct {
	service   string
	lifecycle *keys.Lifecycle
	resolver  *resolver.Resolver
	tokenTTL  time.Duration // 0: every Encode must supply exp
	log       *zap.Logger
}

func NewCodec(service string, lc *keys.Lifecycle, res *resolver.Resolver, tokenTTL time.Duration) *Codec {
	return &Codec{
		service:   service,
		lifecycle: lc,
		resolver:  res,
		tokenTTL:  tokenTTL,
		log:       logger.Named("token").With(logger.Service(service)),
	}
}

// Encode signs the claim set with the active private key. aud is mandatory;
// exp is taken from the claims or derived from the configured TTL, never
// overwriting a caller-provided value. iss is always the local service.
func (c *Codec) Encode(ctx context.Context, claims map[string]any) (string, error) {
	if aud, _ := claims["aud"].(string); aud == "" {
		return "", ErrMissingAudience
	}

	mc := jwtv5.MapClaims{}
	for k, v := range claims {
		mc[k] = v
	}
	if _, ok := mc["exp"]; !ok {
		if c.tokenTTL <= 0 {
			return "", ErrMissingExpiry
		}
		mc["exp"] = time.Now().Add(c.tokenTTL).Unix()
	}
	mc["iss"] = c.service

	kid, priv, err := c.lifecycle.Active(ctx)
	if err != nil {
		return "", err
	}

	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, mc)
	tok.Header["kid"] = kid
	signed, err := tok.SignedString(priv)
	if err != nil {
		return "", err
	}
	metrics.TokensIssued.Inc()
	return signed, nil
}

// Decode verifies a token and returns its claims and header. The algorithm
// must be exactly RS256; the verification key comes from the resolver keyed
// by the untrusted iss claim and kid header, so an untrusted issuer fails
// before any signature work. exp has no leeway.
func (c *Codec) Decode(ctx context.Context, raw string) (map[string]any, map[string]any, error) {
	keyfunc := func(t *jwtv5.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, &ClaimValidationError{Claim: "kid", Reason: "missing header"}
		}
		mc, ok := t.Claims.(jwtv5.MapClaims)
		if !ok {
			return nil, &ClaimValidationError{Claim: "iss", Reason: "missing"}
		}
		iss, _ := mc["iss"].(string)
		if iss == "" {
			return nil, &ClaimValidationError{Claim: "iss", Reason: "missing"}
		}
		return c.resolver.Resolve(ctx, iss, kid)
	}

	parser := jwtv5.NewParser(
		jwtv5.WithValidMethods([]string{alg}),
		jwtv5.WithExpirationRequired(),
	)
	tok, err := parser.Parse(raw, keyfunc)
	if err != nil {
		return nil, nil, c.reject(err)
	}

	mc, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		metrics.TokenVerifications.WithLabelValues("claim_invalid").Inc()
		return nil, nil, &ClaimValidationError{Claim: "claims", Reason: "unexpected type"}
	}
	if aud, _ := mc["aud"].(string); aud != c.service {
		metrics.TokenVerifications.WithLabelValues("claim_invalid").Inc()
		return nil, nil, &ClaimValidationError{Claim: "aud", Reason: "not intended for " + c.service}
	}

	metrics.TokenVerifications.WithLabelValues("success").Inc()
	return mc, tok.Header, nil
}

// reject maps golang-jwt parse failures onto the codec's error taxonomy and
// records the outcome. Resolver errors pass through unchanged so callers can
// distinguish transient fetch failures from deterministic rejections.
func (c *Codec) reject(err error) error {
	var cve *ClaimValidationError
	switch {
	case errors.As(err, &cve):
		metrics.TokenVerifications.WithLabelValues("claim_invalid").Inc()
		return cve
	case errors.Is(err, resolver.ErrUnknownIssuer):
		metrics.TokenVerifications.WithLabelValues("unknown_issuer").Inc()
		return resolver.ErrUnknownIssuer
	case errors.Is(err, resolver.ErrKeyFetchFailed):
		metrics.TokenVerifications.WithLabelValues("fetch_failed").Inc()
		var fe *resolver.FetchError
		if errors.As(err, &fe) {
			return fe
		}
		return err
	case errors.Is(err, resolver.ErrKeyNotFound):
		metrics.TokenVerifications.WithLabelValues("kid_unknown").Inc()
		return resolver.ErrKeyNotFound
	case errors.Is(err, jwtv5.ErrTokenExpired):
		metrics.TokenVerifications.WithLabelValues("expired").Inc()
		return &ClaimValidationError{Claim: "exp", Reason: "token expired"}
	case errors.Is(err, jwtv5.ErrTokenRequiredClaimMissing):
		metrics.TokenVerifications.WithLabelValues("claim_invalid").Inc()
		return &ClaimValidationError{Claim: "exp", Reason: "missing"}
	case errors.Is(err, jwtv5.ErrTokenSignatureInvalid):
		metrics.TokenVerifications.WithLabelValues("invalid_signature").Inc()
		return ErrInvalidSignature
	case errors.Is(err, jwtv5.ErrTokenUnverifiable):
		// Resolution failed for a reason other than the taxonomy above,
		// typically store unavailability. Propagate as transient.
		metrics.TokenVerifications.WithLabelValues("error").Inc()
		return err
	default:
		metrics.TokenVerifications.WithLabelValues("malformed").Inc()
		c.log.Debug("token rejected", logger.Err(err))
		return ErrInvalidSignature
	}
}
