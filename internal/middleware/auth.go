package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-chat/backend/internal/auth"
	"github.com/zhouzirui/z-chat/backend/pkg/apperr"
	"github.com/zhouzirui/z-chat/backend/pkg/utils"
)

// Authenticate resolves the caller and stores it in the request context.
// Requests over the caller's rate limit are rejected with 429.
func Authenticate(authn auth.Authenticator, limiter *auth.LimiterPool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := authn.Authenticate(r)
			if err != nil {
				utils.RespondErr(w, err)
				return
			}
			if !limiter.Allow(principal.UserID) {
				w.Header().Set("Retry-After", "1")
				utils.RespondError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireSelf 要求路径中的用户与认证身份一致，用户只能操作自己的资源。
func RequireSelf(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.FromContext(r.Context())
			if !ok {
				utils.RespondErr(w, apperr.ErrUnauthorized)
				return
			}
			if chi.URLParam(r, param) != principal.UserID {
				utils.RespondErr(w, apperr.Forbidden("credential does not match the requested user"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
