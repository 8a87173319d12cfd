package http

import (
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"dorm-ledger-service/internal/config"
	"dorm-ledger-service/internal/logger"
	"dorm-ledger-service/internal/security"
)

// Recovery turns a panic in a handler into a 500 with the standard envelope.
// It also assigns the request id used in logs.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		r = r.WithContext(logger.WithRequestID(r.Context(), id))

		defer func() {
			if rec := recover(); rec != nil {
				logger.ErrorContext(r.Context(), "Panic recovered", "panic", rec, "stack", string(debug.Stack()))
				writeErrorBody(w, http.StatusInternalServerError, errorBody{Code: "INTERNAL", Message: "internal server error"})
			}
		}()

		next.ServeHTTP(w, r)
	})
}

type AuthMiddleware struct {
	tokenManager security.TokenManager
}

func NewAuthMiddleware(tm security.TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokenManager: tm}
}

// Authenticate validates the bearer token against the security level of the
// matched route and puts the caller on the request context.
func (a *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		level := config.SecurityAccess
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				level = config.RequiredSecurity(r.Method, tpl)
			}
		}

		if level == config.SecurityPublic {
			next.ServeHTTP(w, r)
			return
		}

		token := extractToken(r)
		if token == "" {
			writeErrorBody(w, http.StatusUnauthorized, errorBody{Code: "UNAUTHENTICATED", Message: "authorization token is not provided"})
			return
		}

		claims, err := a.tokenManager.ValidateToken(token)
		if err != nil {
			writeErrorBody(w, http.StatusUnauthorized, errorBody{Code: "UNAUTHENTICATED", Message: err.Error()})
			return
		}

		actor := claims.Actor()
		switch level {
		case config.SecurityOperator:
			if !actor.IsOperator() {
				writeErrorBody(w, http.StatusForbidden, errorBody{Code: "FORBIDDEN", Message: "warden or admin role required"})
				return
			}
		case config.SecurityAdmin:
			if !actor.IsAdmin() {
				writeErrorBody(w, http.StatusForbidden, errorBody{Code: "FORBIDDEN", Message: "admin role required"})
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(withActor(r.Context(), actor)))
	})
}

func extractToken(r *http.Request) string {
	token := r.Header.Get("Authorization")
	// Remove Bearer prefix if present
	if len(token) > 7 && strings.ToUpper(token[0:7]) == "BEARER " {
		token = token[7:]
	}
	return strings.TrimSpace(token)
}
