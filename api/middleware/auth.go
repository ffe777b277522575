package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/angelmondragon/marketplace-engine/api/responses"
	pkgAuth "github.com/angelmondragon/marketplace-engine/pkg/auth"
	"github.com/angelmondragon/marketplace-engine/pkg/config"
	pkgerrors "github.com/angelmondragon/marketplace-engine/pkg/errors"
	"github.com/angelmondragon/marketplace-engine/pkg/logger"
)

const bearerPrefix = "bearer "

// Auth validates a bearer token and seeds the request context with the
// principal and its log fields.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, pkgAuth.ErrMissingCompany) {
					msg = "vendor token missing company"
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, msg))
				return
			}

			principal := pkgAuth.PrincipalFromClaims(claims)
			ctx := WithPrincipal(r.Context(), principal)
			if logg != nil {
				fields := map[string]any{
					"user_id":    principal.UserID.String(),
					"actor_role": string(principal.Role),
				}
				if principal.CompanyID != nil {
					fields["company_id"] = principal.CompanyID.String()
				}
				ctx = logg.WithFields(ctx, fields)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken returns the credential of an "Authorization: Bearer" header,
// matching the scheme case-insensitively.
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}
