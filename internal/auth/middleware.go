package auth

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/MCT-Salman/invocca/internal/httputil"
	"github.com/MCT-Salman/invocca/pkg/types"
)

// DevSubject is the identity assumed for unauthenticated requests in dev
// mode.
const DevSubject = "dev-admin"

// MiddlewareConfig configures JWTMiddleware.
type MiddlewareConfig struct {
	Verifier *Verifier
	// DevMode admits requests without a token as an admin. A presented
	// token is still verified.
	DevMode bool
}

// JWTMiddleware authenticates the bearer token and stores its claims in
// the request context.
func JWTMiddleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				if cfg.DevMode {
					ctx := WithClaims(r.Context(), Claims{Subject: DevSubject, Role: types.RoleAdmin})
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
				w.Header().Set("WWW-Authenticate", `Bearer realm="invocca"`)
				httputil.RespondProblem(w, r, http.StatusUnauthorized, ErrMissingToken.Error())
				return
			}
			if cfg.Verifier == nil {
				httputil.RespondProblem(w, r, http.StatusUnauthorized, "token verification is not configured")
				return
			}

			claims, err := cfg.Verifier.Verify(raw)
			if err != nil {
				zerolog.Ctx(r.Context()).Debug().Err(err).Msg("rejected bearer token")
				w.Header().Set("WWW-Authenticate", `Bearer realm="invocca", error="invalid_token"`)
				httputil.RespondProblem(w, r, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			l := zerolog.Ctx(r.Context())
			l.UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("sub", claims.Subject).Str("role", claims.Role)
			})
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
