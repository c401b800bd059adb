package main

import (
	"context"
	"net/http"
	"time"

	"libraryapi/internal/app"
	"libraryapi/internal/book"
	"libraryapi/internal/circulation"
	"libraryapi/internal/config"
	"libraryapi/internal/httpx"
	"libraryapi/internal/user"

	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

func newRouter(ctx context.Context, a *app.App, cfg config.Config, log logrus.FieldLogger) http.Handler {
	books := book.NewHTTPHandler(a.Books)
	if a.Importer != nil {
		books.WithImporter(a.Importer)
	}
	users := user.NewHTTPHandler(a.Users)
	circ := circulation.NewHTTPHandler(a.Circulation, a.Sweeper)

	auth := httpx.AuthMiddleware(cfg.JWTSecret, httpx.WithRevocationCheck(a.Users.IsRevoked))
	authed := func(h http.HandlerFunc) http.Handler { return httpx.Chain(h, auth) }
	librarian := func(h http.HandlerFunc) http.Handler {
		return httpx.Chain(h, auth, httpx.RequireRole(user.RoleLibrarian))
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := a.Ready(ctx); err != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.HandleFunc("POST /v1/users/register", users.RegisterUser)
	mux.HandleFunc("POST /v1/users/login", users.LoginUser)
	mux.Handle("POST /v1/users/logout", authed(users.Logout))
	mux.Handle("GET /v1/me", authed(users.GetCurrentUser))
	mux.Handle("PATCH /v1/me", authed(users.UpdateCurrentUser))
	mux.Handle("GET /v1/me/standing", authed(circ.Standing))
	mux.Handle("GET /v1/users/{id}/standing", authed(circ.Standing))

	mux.HandleFunc("GET /v1/books", books.List)
	mux.HandleFunc("GET /v1/books/{id}", books.Get)
	mux.HandleFunc("GET /v1/books/{id}/availability", books.Availability)
	mux.Handle("POST /v1/books", librarian(books.Create))
	mux.Handle("POST /v1/books/import", librarian(books.Import))
	mux.Handle("PATCH /v1/books/{id}", librarian(books.Update))
	mux.Handle("DELETE /v1/books/{id}", librarian(books.Delete))

	mux.Handle("GET /v1/reservations", authed(circ.ListReservations))
	mux.Handle("POST /v1/reservations", authed(circ.CreateReservation))
	mux.Handle("GET /v1/reservations/{id}", authed(circ.GetReservation))
	mux.Handle("DELETE /v1/reservations/{id}", authed(circ.CancelReservation))
	mux.Handle("POST /v1/reservations/{id}/convert-to-loan", authed(circ.ConvertReservation))

	mux.Handle("GET /v1/loans", authed(circ.ListLoans))
	mux.Handle("POST /v1/loans", authed(circ.CreateLoan))
	mux.Handle("GET /v1/loans/active", authed(circ.ListActiveLoans))
	mux.Handle("GET /v1/loans/{id}", authed(circ.GetLoan))
	mux.Handle("POST /v1/loans/{id}/return", authed(circ.ReturnLoan))
	mux.Handle("POST /v1/loans/{id}/share", authed(circ.ShareLoan))

	mux.Handle("GET /v1/transfers", authed(circ.ListTransfers))
	mux.Handle("GET /v1/transfers/{id}", authed(circ.GetTransfer))

	mux.Handle("POST /v1/admin/sweep", librarian(circ.Sweep))

	limiter := httpx.NewRateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst)
	return httpx.Chain(mux,
		httpx.RequestIDMiddleware,
		httpx.AccessLogMiddleware(log),
		httpx.RecoveryMiddleware(log),
		httpx.SecurityHeadersMiddleware(cfg.EnableHSTS),
		httpx.CORSMiddleware(cfg.CORSOrigins),
		httpx.RequestSizeLimitMiddleware(maxBodyBytes),
		limiter.Middleware,
	)
}
