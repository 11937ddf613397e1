package middleware

import (
	"net/http"
	"strings"

	"taskflow/common"
)

type TokenValidator interface {
	ValidateToken(token string) (*common.Claims, error)
}

// JWTMiddleware requires "Authorization: Bearer <token>" and stores the user
// id under common.ContextUserIDKey.
func JWTMiddleware(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || strings.TrimSpace(token) == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := tokens.ValidateToken(strings.TrimSpace(token))
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(common.WithUserID(r.Context(), claims.UserID)))
		})
	}
}
