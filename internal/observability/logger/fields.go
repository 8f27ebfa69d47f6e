package logger

import (
	"time"

	"go.uber.org/zap"
)

// Standard fields used across the key-management code so log output stays
// grep-able: always the same key names for the same concepts.

// RequestID is the id of the inbound HTTP request.
func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

// Service is a service identity (local or peer).
func Service(v string) zap.Field {
	return zap.String("service", v)
}

// Issuer is the issuer named by a token or a resolution.
func Issuer(v string) zap.Field {
	return zap.String("issuer", v)
}

// KID is a key identifier.
func KID(v string) zap.Field {
	return zap.String("kid", v)
}

// Endpoint is a remote key-resolution URL.
func Endpoint(v string) zap.Field {
	return zap.String("endpoint", v)
}

// Method is the HTTP method of a request.
func Method(v string) zap.Field {
	return zap.String("method", v)
}

// Path is the URL path of a request.
func Path(v string) zap.Field {
	return zap.String("path", v)
}

// Status is an HTTP status code.
func Status(v int) zap.Field {
	return zap.Int("status", v)
}

// Duration is how long an operation took.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// Err wraps an error value under the conventional "error" key.
func Err(err error) zap.Field {
	return zap.Error(err)
}
