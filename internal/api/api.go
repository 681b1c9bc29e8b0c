// Package api exposes users and posts over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/exp/slog"

	"postboard/internal/auth"
	"postboard/internal/images"
	"postboard/internal/posts"
)

const (
	DefaultMaxUploadBytes = 10 << 20 // 10MB
	maxJSONBodyBytes      = 1 << 20
	shutdownTimeout       = 10 * time.Second
)

type APIServer struct {
	auth           *auth.Service
	posts          *posts.Service
	images         *images.Store
	listenAddr     string
	maxUploadBytes int64
}

func NewAPIServer(authSvc *auth.Service, postSvc *posts.Service, imgs *images.Store, listenAddr string, maxUploadBytes int64) *APIServer {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}

	return &APIServer{
		auth:           authSvc,
		posts:          postSvc,
		images:         imgs,
		listenAddr:     listenAddr,
		maxUploadBytes: maxUploadBytes,
	}
}

type APIFunc func(w http.ResponseWriter, r *http.Request) error

func makeHandler(f APIFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := f(w, r)
		if err == nil {
			return
		}

		var statusError *StatusError
		if !errors.As(err, &statusError) {
			statusError = &StatusError{Status: http.StatusInternalServerError, Err: err}
		}

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", statusError.Status,
			"error", statusError.Err,
		}
		if statusError.Status >= http.StatusInternalServerError {
			slog.Error("Request failed", attrs...)
		} else {
			slog.Warn("Request rejected", attrs...)
		}

		msg := statusError.Message
		if msg == "" {
			msg = http.StatusText(statusError.Status)
		}

		writeJSON(w, statusError.Status, MessageResponse{Message: msg})
	}
}

// StatusError carries the HTTP status and the client-facing message for a
// failed request. Err is only logged.
type StatusError struct {
	Err     error
	Status  int
	Message string
}

func (a *StatusError) Error() string {
	if a.Err != nil {
		return a.Err.Error()
	}

	return a.Message
}

func (a *StatusError) Unwrap() error {
	return a.Err
}

type MessageResponse struct {
	Message string `json:"message"`
}

func (s *APIServer) Routes() http.Handler {
	r := mux.NewRouter()

	r.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/user/signup", makeHandler(s.HandleSignup)).Methods(http.MethodPost)
	api.HandleFunc("/user/login", makeHandler(s.HandleLogin)).Methods(http.MethodPost)

	// Clients address the collection both with and without a trailing slash.
	for _, p := range []string{"/posts", "/posts/"} {
		api.HandleFunc(p, makeHandler(s.HandleListPosts)).Methods(http.MethodGet)
		api.HandleFunc(p, makeHandler(s.authMiddleware(s.HandleCreatePost))).Methods(http.MethodPost)
	}

	api.HandleFunc("/posts/{id}", makeHandler(s.HandleGetPost)).Methods(http.MethodGet)
	api.HandleFunc("/posts/{id}", makeHandler(s.authMiddleware(s.HandleUpdatePost))).Methods(http.MethodPut)
	api.HandleFunc("/posts/{id}", makeHandler(s.authMiddleware(s.HandleDeletePost))).Methods(http.MethodDelete)

	r.PathPrefix("/images/").
		Handler(http.StripPrefix("/images/", s.images.Handler())).
		Methods(http.MethodGet, http.MethodHead)

	// Wrapped rather than r.Use so unmatched routes carry the headers too.
	return corsMiddleware(r)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *APIServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("Starting the server", "listen_addr", s.listenAddr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down the server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)

	return json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &StatusError{Err: err, Status: http.StatusBadRequest, Message: "Invalid request body!"}
	}

	return nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept, Authorization")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, PUT, DELETE, OPTIONS")

		next.ServeHTTP(w, r)
	})
}
