package middleware

import (
	"net/http"
	"strings"

	"github.com/synapsefold/cognition-core/pkg/contracts"
	pkgmw "github.com/synapsefold/cognition-core/pkg/middleware"
)

// publicPaths never require authentication, matching the teacher's
// allowlist idiom for health/metrics probes hit by infra, not peers.
var publicPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// Auth builds chi-compatible middleware enforcing authChain against the
// Authorization bearer token, storing the resulting Identity in context.
// A nil identity result (chain exhausted, no error) is rejected with 401;
// an explicit chain error is also 401. Public paths bypass the chain
// entirely.
func Auth(authChain contracts.AuthProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			identity, err := authChain.Authenticate(r.Context(), token)
			if err != nil || identity == nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			ctx := pkgmw.SetIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
