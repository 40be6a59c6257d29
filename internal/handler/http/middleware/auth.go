package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/cmlabs-hris/hris-attendance-engine/internal/handler/http/response"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/pkg/jwt"
	"github.com/go-chi/jwtauth/v5"
)

type claimsKey struct{}

// AuthRequired rejects requests without a verified access token bound to an employee.
// It must run after jwtauth.Verifier.
func AuthRequired(jwtService jwt.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			token, _, err := jwtauth.FromContext(r.Context())
			if err != nil {
				response.Unauthorized(w, err.Error())
				return
			}

			claims, err := jwtService.ClaimsFromToken(token)
			if err != nil {
				if errors.Is(err, jwt.ErrNoEmployee) {
					response.HandleError(w, err)
					return
				}
				response.Unauthorized(w, "Invalid access token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		}
		return http.HandlerFunc(hfn)
	}
}

// ClaimsFromContext returns the claims stored by AuthRequired.
func ClaimsFromContext(ctx context.Context) (jwt.Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(jwt.Claims)
	return claims, ok
}

// WithClaims is used by tests that bypass token verification.
func WithClaims(ctx context.Context, claims jwt.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}
