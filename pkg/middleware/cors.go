package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS restricts cross-origin access to the configured clinic frontends.
// The HTTP surface is read/append only, so PUT and DELETE stay out of the
// allowed method set.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	return c.Handler
}
