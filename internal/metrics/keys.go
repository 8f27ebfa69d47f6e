package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Key-management Prometheus metrics. Standalone package so the lifecycle,
// resolver and codec packages can all record without import cycles.

var (
	KeyRotations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tokman_key_rotations_total",
		Help: "Signing key generations (bootstrap and rotation)",
	})

	IssuerKeyFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tokman_issuer_key_fetches_total",
		Help: "Network fetches of foreign issuer public keys",
	}, []string{"issuer", "outcome"})

	TokensIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tokman_tokens_issued_total",
		Help: "Tokens signed by the local service",
	})

	TokenVerifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tokman_token_verifications_total",
		Help: "Token decode attempts by outcome",
	}, []string{"outcome"})
)

// Register registers the key metrics on the given registry (or default if nil).
// Double registration is tolerated so tests can call it freely.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		KeyRotations,
		IssuerKeyFetches,
		TokensIssued,
		TokenVerifications,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
