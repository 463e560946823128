package handler

import (
	"net/http"

	"github.com/wadjakorntonsri/tinylink/pkg/config"
	"github.com/wadjakorntonsri/tinylink/pkg/ports"
)

// NewRouter creates and configures the main application router
func NewRouter(cfg *config.Config, service ports.LinkService) http.Handler {
	h := NewHTTPHandler(service)
	mw := NewMiddleware(cfg)
	authHandler := NewAuthHandler(cfg)

	protected := func(fn http.HandlerFunc) http.Handler {
		return mw.AuthMiddleware(fn)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, envelope{"message": "ok"})
	})

	// Auth
	mux.HandleFunc("GET /auth/google/login", authHandler.Login)
	mux.HandleFunc("GET /auth/google/callback", authHandler.Callback)
	mux.HandleFunc("GET /auth/logout", authHandler.Logout)

	// Short links
	mux.Handle("POST /shortlink", protected(h.Create))
	mux.Handle("POST /shortlink/{$}", protected(h.Create))
	mux.Handle("GET /shortlink/my-links", protected(h.MyLinks))
	mux.Handle("GET /shortlink/{id}", protected(h.Get))
	mux.Handle("PUT /shortlink/{id}", protected(h.Update))
	mux.Handle("DELETE /shortlink/{id}", protected(h.Delete))
	mux.HandleFunc("GET /shortlink/r/{code}", h.Redirect)

	// Catch-all redirect; every fixed route above is more specific.
	mux.HandleFunc("GET /{code}", h.Redirect)

	return withMiddleware(mux)
}

// withMiddleware wraps h so that every request, including one that panics,
// gets an access log line.
func withMiddleware(h http.Handler) http.Handler {
	return Logging(Recover(h))
}
