package api

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"lobby/internal/constants"
)

// ambientThrottle wraps a route group with a coarse IP-keyed httprate limit,
// independent of the scoped (scope, principal) limiter in internal/ratelimit
// — defense in depth, not a replacement. Grounded in lobby's own
// httprate.Limit usage in router.go; the scoped limiter is the one the
// service's test coverage is written against.
func ambientThrottle(limit int, window time.Duration, ipResolver *ClientIPResolver) func(http.Handler) http.Handler {
	retryAfter := retryAfterSeconds(window)

	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return ipResolver.Resolve(r), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeErr(w, http.StatusTooManyRequests, constants.ErrRateLimited)
		}),
	)
}

func retryAfterSeconds(window time.Duration) int {
	seconds := int(math.Ceil(window.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}
