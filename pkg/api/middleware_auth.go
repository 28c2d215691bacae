package api

import (
	"net/http"
	"strings"

	"github.com/dd0wney/cluso-pubsub/pkg/auth"
	"github.com/dd0wney/cluso-pubsub/pkg/logging"
)

// requireAuthForWrites leaves GET and HEAD open and sends every other
// method through requireAuth.
func (s *Server) requireAuthForWrites(next http.HandlerFunc) http.HandlerFunc {
	guarded := s.requireAuth(next)
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next(w, r)
			return
		}
		guarded(w, r)
	}
}

// requireAuth middleware validates JWT tokens or API keys. Without an
// authenticator every request is refused.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			s.respondError(w, http.StatusUnauthorized, "Authentication is not configured")
			return
		}

		var (
			claims *auth.Claims
			err    error
			kind   string
		)
		if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && token != "" {
			kind = "token"
			claims, err = s.auth.ValidateToken(token)
		} else if key := r.Header.Get("X-API-Key"); key != "" {
			kind = "api_key"
			claims, err = s.auth.ValidateAPIKey(key)
		} else {
			s.respondError(w, http.StatusUnauthorized, "Missing authentication (Bearer token or X-API-Key header required)")
			return
		}

		if err != nil {
			s.logger.Warn("authentication failed",
				logging.String("kind", kind),
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
				logging.Error(err))
			s.respondError(w, http.StatusUnauthorized, "Invalid or expired credentials")
			return
		}

		s.logger.Debug("write authorized",
			logging.String("subject", claims.Subject),
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path))
		next(w, r)
	}
}
