package middleware

import (
	"net/http"

	gorillahandlers "github.com/gorilla/handlers"
)

// CORS allows the configured frontend origins to call the API with bearer
// tokens. An empty origin list allows any origin.
func CORS(origins []string) func(http.Handler) http.Handler {
	opts := []gorillahandlers.CORSOption{
		gorillahandlers.AllowedMethods([]string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		}),
		gorillahandlers.AllowedHeaders([]string{"Authorization", "Content-Type", "If-None-Match"}),
		gorillahandlers.ExposedHeaders([]string{"ETag", "Retry-After"}),
		gorillahandlers.MaxAge(600),
	}
	if len(origins) > 0 {
		opts = append(opts, gorillahandlers.AllowedOrigins(origins), gorillahandlers.AllowCredentials())
	} else {
		opts = append(opts, gorillahandlers.AllowedOrigins([]string{"*"}))
	}
	return gorillahandlers.CORS(opts...)
}
