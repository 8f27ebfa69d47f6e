package resolver

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownIssuer means the issuer is outside the trusted set. Never
	// retried; logged as a potential spoofing signal by the caller.
	ErrUnknownIssuer = errors.New("resolver: unknown issuer")

	// ErrKeyNotFound means a kid of the local service has no record, either
	// never generated or already expired out of the store.
	ErrKeyNotFound = errors.New("resolver: kid not found")

	// ErrKeyFetchFailed matches any *FetchError via errors.Is.
	ErrKeyFetchFailed = errors.New("resolver: key fetch failed")
)

// FetchError is a transient failure fetching a foreign public key. It carries
// the endpoint and HTTP status for diagnostics; callers may retry with
// backoff. A failed fetch is never cached, so the next resolve retries.
type FetchError struct {
	Issuer   string
	Endpoint string
	Status   int
	Err      error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolver: fetch key for %s from %s: %v", e.Issuer, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("resolver: fetch key for %s from %s: status %d", e.Issuer, e.Endpoint, e.Status)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrKeyFetchFailed }
