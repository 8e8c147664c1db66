package server

import (
	"net/http"

	"github.com/MCT-Salman/invocca/internal/auth"
	"github.com/MCT-Salman/invocca/internal/httputil"
	"github.com/MCT-Salman/invocca/pkg/types"
)

var (
	allRoles   = []string{types.RoleAdmin, types.RoleManager, types.RoleClient, types.RoleEmployee}
	staffRoles = []string{types.RoleAdmin, types.RoleManager}
)

// requireAnyRole returns middleware that passes callers holding at least
// one of roles.
func requireAnyRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.ClaimsFromContext(r.Context())
			if !ok {
				httputil.RespondProblem(w, r, http.StatusForbidden, "no claims in context")
				return
			}

			if claims.HasAnyRole(roles...) {
				next.ServeHTTP(w, r)
				return
			}
			httputil.RespondProblemf(w, r, http.StatusForbidden, "role %q is not allowed: requires one of %v", claims.Role, roles)
		})
	}
}
