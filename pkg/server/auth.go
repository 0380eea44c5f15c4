package server

import (
	"fmt"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// adminSecretHeader carries the shared admin secret on management requests
const adminSecretHeader = "X-Admin-Secret"

// isAdmin checks the admin secret header against the configured bcrypt
// hash. With no hash configured nothing is admin.
func (s *Server) isAdmin(r *http.Request) bool {
	if s.config.AdminSecretHash == "" {
		return false
	}

	secret := r.Header.Get(adminSecretHeader)
	if secret == "" {
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(s.config.AdminSecretHash), []byte(secret)) == nil
}

// requireAdmin guards index management endpoints
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.config.AdminSecretHash == "" {
			sendError(w, fmt.Errorf("index management is disabled: no admin secret configured"), http.StatusForbidden)
			return
		}
		if !s.isAdmin(r) {
			sendError(w, fmt.Errorf("invalid or missing admin secret"), http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
