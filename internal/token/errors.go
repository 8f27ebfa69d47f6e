package token

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingAudience: encode called without an aud claim. Caller bug,
	// surfaced immediately.
	ErrMissingAudience = errors.New("token: missing aud claim")

	// ErrMissingExpiry: encode called without exp and no token TTL configured.
	ErrMissingExpiry = errors.New("token: missing exp claim and no token ttl configured")

	// ErrInvalidSignature: the signature does not verify against the key
	// named by the token's kid. Deterministic, never retried.
	ErrInvalidSignature = errors.New("token: invalid signature")
)

// ClaimValidationError reports which claim failed verification and why.
// Deterministic outcome; retrying cannot change it.
type ClaimValidationError struct {
	Claim  string
	Reason string
}

func (e *ClaimValidationError) Error() string {
	return fmt.Sprintf("token: claim %q invalid: %s", e.Claim, e.Reason)
}
