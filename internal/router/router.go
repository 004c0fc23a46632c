// Package router sets up all HTTP routes and middleware chains for the
// Ajeyam API. Everything except the health check lives under /api/v1.
package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"ajeyam/internal/handlers"
	"ajeyam/internal/middleware"
)

// Handlers bundles the handler groups the router mounts.
type Handlers struct {
	Auth       *handlers.Auth
	Blogs      *handlers.Blogs
	Comments   *handlers.Comments
	Reviews    *handlers.Reviews
	Users      *handlers.Users
	Categories *handlers.Categories
	Moderation *handlers.Moderation
}

// Options configures the middleware around the routes.
type Options struct {
	CORSOrigins []string

	// AuthLimiter throttles /auth per client address. WriteLimiter throttles
	// content creation and engagement per account. Nil disables either.
	AuthLimiter  *middleware.RateLimiter
	WriteLimiter *middleware.RateLimiter
}

func passthrough(next http.Handler) http.Handler { return next }

// New creates and returns the configured Chi router with all middleware
// and route groups wired up.
func New(auth *middleware.Auth, h Handlers, opts Options) chi.Router {
	r := chi.NewRouter()

	// Global middleware, applied to every request.
	r.Use(chimw.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.SecureHeaders)
	r.Use(middleware.CORS(opts.CORSOrigins))
	r.Use(auth.Authenticate)

	throttleWrites := passthrough
	if opts.WriteLimiter != nil {
		throttleWrites = opts.WriteLimiter.Limit("write", middleware.ByUser)
	}

	r.Get("/health", healthHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler)

		r.Route("/auth", func(r chi.Router) {
			if opts.AuthLimiter != nil {
				r.Use(opts.AuthLimiter.Limit("auth", middleware.ByClientIP))
			}
			r.Post("/register", h.Auth.Register)
			r.Post("/login", h.Auth.Login)
			r.Get("/verify-email/{token}", h.Auth.VerifyEmail)
			r.Post("/forgot-password", h.Auth.ForgotPassword)
			r.Post("/reset-password/{token}", h.Auth.ResetPassword)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAuth)
				r.Post("/logout", h.Auth.Logout)
				r.Get("/me", h.Auth.Me)
				r.Post("/2fa/setup", h.Auth.TwoFASetup)
				r.Post("/2fa/enable", h.Auth.TwoFAEnable)
				r.Post("/2fa/disable", h.Auth.TwoFADisable)
			})
		})

		r.Route("/blogs", func(r chi.Router) {
			r.Get("/", h.Blogs.List)
			r.Get("/published", h.Blogs.Published)
			r.Get("/featured", h.Blogs.Featured)
			r.Get("/author/{authorId}", h.Blogs.ByAuthor)
			r.Get("/{id}/related", h.Blogs.Related)
			r.Get("/{identifier}", h.Blogs.Get)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAuth)
				r.With(throttleWrites).Post("/", h.Blogs.Create)
				r.Patch("/{id}", h.Blogs.Update)
				r.Delete("/{id}", h.Blogs.Delete)
				r.With(throttleWrites).Post("/{id}/like", h.Blogs.Like)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Get("/pending", h.Blogs.Pending)
				r.Put("/{id}/approve", h.Blogs.Approve)
				r.Put("/{id}/reject", h.Blogs.Reject)
				r.Patch("/{id}/status", h.Blogs.ChangeStatus)
			})

			r.Route("/{blogId}/comments", func(r chi.Router) {
				r.Get("/", h.Comments.List)
				r.Get("/{id}", h.Comments.Get)
				r.Get("/{id}/replies", h.Comments.Replies)

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireAuth)
					r.With(throttleWrites).Post("/", h.Comments.Create)
					r.With(throttleWrites).Post("/{id}/replies", h.Comments.Reply)
					r.Patch("/{id}", h.Comments.Update)
					r.Delete("/{id}", h.Comments.Delete)
					r.With(throttleWrites).Post("/{id}/like", h.Comments.Like)
				})
			})
		})

		r.Route("/reviews", func(r chi.Router) {
			r.Get("/", h.Reviews.List)
			r.Get("/{id}", h.Reviews.Get)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAuth)
				r.Get("/mine", h.Reviews.Mine)
				r.With(throttleWrites).Post("/", h.Reviews.Create)
				r.Patch("/{id}", h.Reviews.Update)
				r.Delete("/{id}", h.Reviews.Delete)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Get("/pending", h.Reviews.Pending)
				r.Get("/stats", h.Reviews.Stats)
				r.Put("/{id}/approve", h.Reviews.Approve)
				r.Put("/{id}/reject", h.Reviews.Reject)
				r.Patch("/{id}/status", h.Reviews.ChangeStatus)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAuth)
				r.Get("/saved-blogs", h.Users.SavedBlogs)
				r.Get("/following", h.Users.Following)
				r.Patch("/update-me", h.Users.UpdateMe)
				r.Patch("/update-password", h.Users.UpdatePassword)
				r.Delete("/delete-me", h.Users.DeleteMe)
				r.With(throttleWrites).Post("/save-blog/{blogId}", h.Users.SaveBlog)
				r.With(throttleWrites).Post("/follow/{userId}", h.Users.Follow)
			})

			r.Get("/{id}", h.Users.Get)
			r.Get("/{id}/blogs", h.Users.Blogs)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Get("/", h.Users.List)
				r.Patch("/{id}", h.Users.Update)
				r.Delete("/{id}", h.Users.Delete)
				r.Put("/{id}/block", h.Users.Block)
				r.Put("/{id}/activate", h.Users.Activate)
			})
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", h.Categories.List)
			r.Get("/main-with-subs", h.Categories.MainWithSubs)
			r.Get("/{identifier}", h.Categories.Get)
			r.Get("/{identifier}/blogs", h.Categories.Blogs)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Post("/", h.Categories.Create)
				r.Put("/reorder", h.Categories.Reorder)
				r.Patch("/{id}", h.Categories.Update)
				r.Delete("/{id}", h.Categories.Delete)
			})
		})

		r.With(middleware.RequireAdmin).Get("/moderation/log", h.Moderation.Log)
	})

	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	return r
}

// healthHandler returns a simple JSON health check response.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"status":  "fail",
		"message": "Can't find " + r.URL.Path + " on this server",
	})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
		"status":  "fail",
		"message": r.Method + " is not allowed on " + r.URL.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
