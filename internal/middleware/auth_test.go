// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ajeyam/internal/models"
	"ajeyam/internal/session"
	"ajeyam/internal/store"
	"ajeyam/internal/token"
)

type fakeTokens struct {
	claims map[string]*token.Claims
}

func (f *fakeTokens) Parse(raw string) (*token.Claims, error) {
	c, ok := f.claims[raw]
	if !ok {
		return nil, token.ErrInvalid
	}
	return c, nil
}

type fakeSessions struct {
	data map[string]*session.Data
	err  error
}

func (f *fakeSessions) Get(_ context.Context, id string) (*session.Data, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.data[id], nil
}

type fakeUsers struct {
	users      map[uuid.UUID]*models.User
	lastFilter store.UserFilter
}

func (f *fakeUsers) FindByID(_ context.Context, id uuid.UUID, filter store.UserFilter) (*models.User, error) {
	f.lastFilter = filter
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	if filter == store.ActiveUsers && !u.Active {
		return nil, nil
	}
	return u, nil
}

type authFixture struct {
	auth     *Auth
	tokens   *fakeTokens
	sessions *fakeSessions
	users    *fakeUsers
	user     *models.User
}

func newAuthFixture(filter store.UserFilter) *authFixture {
	issued := time.Now().Add(-time.Minute)
	user := &models.User{ID: uuid.New(), Name: "Meera", Role: models.RoleUser, Active: true}

	f := &authFixture{
		tokens: &fakeTokens{claims: map[string]*token.Claims{
			"good": {
				Role: "user",
				RegisteredClaims: jwt.RegisteredClaims{
					Subject:  user.ID.String(),
					ID:       "sess-1",
					IssuedAt: jwt.NewNumericDate(issued),
				},
			},
			"orphan": {
				RegisteredClaims: jwt.RegisteredClaims{
					Subject:  user.ID.String(),
					ID:       "sess-gone",
					IssuedAt: jwt.NewNumericDate(issued),
				},
			},
			"bad-subject": {
				RegisteredClaims: jwt.RegisteredClaims{Subject: "42", ID: "sess-1"},
			},
		}},
		sessions: &fakeSessions{data: map[string]*session.Data{
			"sess-1": {UserID: user.ID, Role: "user"},
		}},
		users: &fakeUsers{users: map[uuid.UUID]*models.User{user.ID: user}},
		user:  user,
	}
	f.auth = NewAuth(f.tokens, f.sessions, f.users, filter)
	return f
}

// serve runs the request through Authenticate and RequireAuth.
func (f *authFixture) serve(t *testing.T, authorization string) (*httptest.ResponseRecorder, *models.User) {
	t.Helper()
	var seen *models.User
	handler := f.auth.Authenticate(RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserFromCtx(r.Context())
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr, seen
}

func decodeMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "fail", body.Status)
	return body.Message
}

func TestRequireAuthRejections(t *testing.T) {
	tests := []struct {
		name   string
		header string
		setup  func(f *authFixture)
		want   string
	}{
		{name: "no header", want: MsgNotLoggedIn},
		{name: "wrong scheme", header: "Basic good", want: MsgNotLoggedIn},
		{name: "unknown token", header: "Bearer nope", want: MsgInvalidToken},
		{name: "bad subject", header: "Bearer bad-subject", want: MsgInvalidToken},
		{name: "revoked session", header: "Bearer orphan", want: MsgSessionExpired},
		{
			name:   "session of another user",
			header: "Bearer good",
			setup: func(f *authFixture) {
				f.sessions.data["sess-1"].UserID = uuid.New()
			},
			want: MsgSessionExpired,
		},
		{
			name:   "session store down",
			header: "Bearer good",
			setup: func(f *authFixture) {
				f.sessions.err = errors.New("connection refused")
			},
			want: MsgAuthFailed,
		},
		{
			name:   "user deleted",
			header: "Bearer good",
			setup: func(f *authFixture) {
				delete(f.users.users, f.user.ID)
			},
			want: MsgUserGone,
		},
		{
			name:   "user deactivated",
			header: "Bearer good",
			setup: func(f *authFixture) {
				f.user.Active = false
			},
			want: MsgUserGone,
		},
		{
			name:   "password changed after issue",
			header: "Bearer good",
			setup: func(f *authFixture) {
				changed := time.Now()
				f.user.PasswordChangedAt = &changed
			},
			want: MsgPasswordChanged,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(store.ActiveUsers)
			if tt.setup != nil {
				tt.setup(f)
			}
			rr, seen := f.serve(t, tt.header)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Nil(t, seen)
			assert.Equal(t, tt.want, decodeMessage(t, rr))
		})
	}
}

func TestRequireAuthSuccess(t *testing.T) {
	f := newAuthFixture(store.ActiveUsers)
	rr, seen := f.serve(t, "Bearer good")

	assert.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, seen)
	assert.Equal(t, f.user.ID, seen.ID)
	assert.Equal(t, store.ActiveUsers, f.users.lastFilter)
}

func TestAuthenticateHonoursInactiveLoginPolicy(t *testing.T) {
	f := newAuthFixture(store.AllUsers)
	f.user.Active = false

	rr, seen := f.serve(t, "Bearer good")
	assert.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, seen)
	assert.Equal(t, store.AllUsers, f.users.lastFilter)
}

func TestAuthenticateIsLenient(t *testing.T) {
	f := newAuthFixture(store.ActiveUsers)
	var called bool
	handler := f.auth.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Nil(t, UserFromCtx(r.Context()))
		assert.Nil(t, ClaimsFromCtx(r.Context()))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/blogs", nil)
	req.Header.Set("Authorization", "Bearer nope")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, called)
}

func TestRequireAdmin(t *testing.T) {
	handler := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name string
		user *models.User
		want int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"reader", &models.User{ID: uuid.New(), Role: models.RoleUser}, http.StatusForbidden},
		{"admin", &models.User{ID: uuid.New(), Role: models.RoleAdmin}, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
			if tt.user != nil {
				req = req.WithContext(WithUser(req.Context(), tt.user, &token.Claims{}))
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.want, rr.Code)
			if tt.want == http.StatusForbidden {
				assert.Equal(t, MsgForbidden, decodeMessage(t, rr))
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"":             "",
		"Bearer abc":   "abc",
		"bearer abc":   "abc",
		"Bearer  abc ": "abc",
		"Token abc":    "",
		"Bearerabc":    "",
	}
	for header, want := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		assert.Equal(t, want, bearerToken(req), "header %q", header)
	}
}
