package api

import (
	"net/http"
	"strings"

	"postboard/internal/auth"
)

type APIAuthFunc func(id auth.Identity, w http.ResponseWriter, r *http.Request) error

// authMiddleware rejects the request with 401 unless it carries a valid
// bearer token. The identity is passed to f and stored in the request
// context.
func (s *APIServer) authMiddleware(f APIAuthFunc) APIFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			return &StatusError{Err: auth.ErrUnauthorized, Status: http.StatusUnauthorized, Message: "Not authenticated!"}
		}

		id, err := s.auth.Verify(strings.TrimSpace(token))
		if err != nil {
			return &StatusError{Err: err, Status: http.StatusUnauthorized, Message: "Not authenticated!"}
		}

		return f(id, w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	}
}
