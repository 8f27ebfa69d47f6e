package httpapi

import (
	"errors"
	"net/http"
	"strings"
)

// ErrNoToken means the request carries no recognizable token header.
var ErrNoToken = errors.New("httpapi: no token in request")

// ExtractToken pulls the bearer token out of an Authorization header.
// Both `Bearer <t>` and the older `Token token="<t>"` scheme are accepted.
func ExtractToken(h http.Header) (string, error) {
	ah := strings.TrimSpace(h.Get("Authorization"))
	if ah == "" {
		return "", ErrNoToken
	}

	if len(ah) > 7 && strings.EqualFold(ah[:7], "bearer ") {
		if t := strings.TrimSpace(ah[7:]); t != "" {
			return t, nil
		}
		return "", ErrNoToken
	}

	if len(ah) > 6 && strings.EqualFold(ah[:6], "token ") {
		rest := strings.TrimSpace(ah[6:])
		rest = strings.TrimPrefix(rest, "token=")
		rest = strings.Trim(rest, `"`)
		if rest != "" {
			return rest, nil
		}
	}
	return "", ErrNoToken
}
