// Copyright (c) 2025-2026 The parastats developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package api

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// unknownClient is the rate limit identity assigned to requests whose origin
// cannot be determined. All such requests share one allowance.
const unknownClient = "unknown"

// clientID derives the rate limit identity of the provided request: the first
// address of the X-Forwarded-For header when the API sits behind a proxy,
// otherwise the remote host.
func clientID(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return first
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		return unknownClient
	}
	return host
}

// rateLimitMiddleware applies the request rate limit to the client of the
// current request. Limit metadata headers are set on every response, allowed
// or not; a denied request gets a "429 Too Many Requests" JSON response.
func (a *API) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := a.cfg.Admit(clientID(r))

		w.Header().Set("X-RateLimit-Limit",
			fmt.Sprintf("%d", status.Limit))
		w.Header().Set("X-RateLimit-Remaining",
			fmt.Sprintf("%d", status.Remaining))
		w.Header().Set("X-RateLimit-Reset",
			fmt.Sprintf("%d", status.ResetAt.Unix()))

		if !status.Allowed {
			sendJSONError(w, http.StatusTooManyRequests,
				"request limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}
