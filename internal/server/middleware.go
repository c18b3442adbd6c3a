package server

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type ctxKey int

const userIDKey ctxKey = iota

// authenticate resolves the bearer token to a user id stored in the request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			s.respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, err := s.Verifier.Verify(strings.TrimSpace(token))
		if err != nil {
			s.logger.Debug("token rejected", zap.Error(err))
			s.respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

// userID returns the authenticated caller.
func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}
