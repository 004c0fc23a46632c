// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"ajeyam/internal/models"
	"ajeyam/internal/session"
	"ajeyam/internal/store"
	"ajeyam/internal/token"
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey string

const (
	userKey    contextKey = "user"
	claimsKey  contextKey = "claims"
	failureKey contextKey = "auth_failure"
)

// Messages returned when a request cannot be authenticated.
const (
	MsgNotLoggedIn     = "You are not logged in. Please log in to get access."
	MsgInvalidToken    = "Invalid token. Please log in again."
	MsgSessionExpired  = "Your session has expired. Please log in again."
	MsgUserGone        = "The user belonging to this token no longer exists."
	MsgPasswordChanged = "User recently changed password. Please log in again."
	MsgAuthFailed      = "Authentication failed. Please log in again."
	MsgForbidden       = "You do not have permission to perform this action"
)

// TokenParser verifies access tokens.
type TokenParser interface {
	Parse(tokenString string) (*token.Claims, error)
}

// SessionLookup finds the session a token belongs to.
type SessionLookup interface {
	Get(ctx context.Context, id string) (*session.Data, error)
}

// UserLookup loads the user a token belongs to.
type UserLookup interface {
	FindByID(ctx context.Context, id uuid.UUID, f store.UserFilter) (*models.User, error)
}

// Auth resolves bearer tokens to users.
type Auth struct {
	tokens   TokenParser
	sessions SessionLookup
	users    UserLookup
	filter   store.UserFilter
}

// NewAuth returns an Auth. The filter decides whether a deactivated user's
// token is still honoured.
func NewAuth(tokens TokenParser, sessions SessionLookup, users UserLookup, filter store.UserFilter) *Auth {
	return &Auth{tokens: tokens, sessions: sessions, users: users, filter: filter}
}

// Authenticate loads the user behind the request's bearer token into the
// context. It does NOT enforce authentication; when the token is missing
// or fails a check the request continues anonymously and the reason is
// kept for RequireAuth.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, claims, failure := a.resolve(r.Context(), raw)
		ctx := r.Context()
		if failure != "" {
			ctx = context.WithValue(ctx, failureKey, failure)
		} else {
			ctx = context.WithValue(ctx, userKey, user)
			ctx = context.WithValue(ctx, claimsKey, claims)
			noteUser(ctx, user.ID.String())
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Auth) resolve(ctx context.Context, raw string) (*models.User, *token.Claims, string) {
	claims, err := a.tokens.Parse(raw)
	if err != nil {
		return nil, nil, MsgInvalidToken
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, nil, MsgInvalidToken
	}

	sess, err := a.sessions.Get(ctx, claims.ID)
	if err != nil {
		slog.Error("session lookup failed", "error", err)
		return nil, nil, MsgAuthFailed
	}
	if sess == nil || sess.UserID != userID {
		return nil, nil, MsgSessionExpired
	}

	user, err := a.users.FindByID(ctx, userID, a.filter)
	if err != nil {
		slog.Error("auth user lookup failed", "error", err, "user_id", userID)
		return nil, nil, MsgAuthFailed
	}
	if user == nil {
		return nil, nil, MsgUserGone
	}
	if claims.IssuedAt != nil && user.ChangedPasswordAfter(claims.IssuedAt.Time) {
		return nil, nil, MsgPasswordChanged
	}
	return user, claims, ""
}

// RequireAuth answers 401 unless Authenticate resolved a user.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromCtx(r.Context()) == nil {
			writeFail(w, http.StatusUnauthorized, failureFromCtx(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin answers 401 for anonymous requests and 403 for non-admins.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := UserFromCtx(r.Context())
		if user == nil {
			writeFail(w, http.StatusUnauthorized, failureFromCtx(r.Context()))
			return
		}
		if !user.IsAdmin() {
			writeFail(w, http.StatusForbidden, MsgForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserFromCtx returns the authenticated user, or nil for anonymous requests.
func UserFromCtx(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey).(*models.User)
	return u
}

// ClaimsFromCtx returns the verified token claims, or nil.
func ClaimsFromCtx(ctx context.Context) *token.Claims {
	c, _ := ctx.Value(claimsKey).(*token.Claims)
	return c
}

// WithUser returns ctx carrying user and claims as Authenticate would.
func WithUser(ctx context.Context, user *models.User, claims *token.Claims) context.Context {
	ctx = context.WithValue(ctx, userKey, user)
	return context.WithValue(ctx, claimsKey, claims)
}

func failureFromCtx(ctx context.Context) string {
	if msg, ok := ctx.Value(failureKey).(string); ok && msg != "" {
		return msg
	}
	return MsgNotLoggedIn
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}
