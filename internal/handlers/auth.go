// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"

	"ajeyam/internal/config"
	"ajeyam/internal/mail"
	"ajeyam/internal/middleware"
	"ajeyam/internal/models"
	"ajeyam/internal/session"
	"ajeyam/internal/store"
	"ajeyam/internal/token"
)

const (
	verifyTokenTTL = 24 * time.Hour
	resetTokenTTL  = 10 * time.Minute
	totpIssuer     = "Ajeyam"
)

// Sessions hands out access tokens, each bound to a server-side session
// so it can be revoked.
type Sessions struct {
	store  *session.Store
	issuer *token.Issuer
}

// NewSessions creates a Sessions from the session store and token issuer.
func NewSessions(store *session.Store, issuer *token.Issuer) *Sessions {
	return &Sessions{store: store, issuer: issuer}
}

// issue opens a session for user and signs a token naming it.
func (s *Sessions) issue(r *http.Request, user *models.User) (string, error) {
	id, err := s.store.Create(r.Context(), &session.Data{
		UserID:    user.ID,
		Role:      string(user.Role),
		UserAgent: r.UserAgent(),
		RemoteIP:  r.RemoteAddr,
	})
	if err != nil {
		return "", err
	}
	signed, _, err := s.issuer.Issue(user.ID, string(user.Role), id, time.Now())
	if err != nil {
		s.store.Destroy(r.Context(), id)
		return "", err
	}
	return signed, nil
}

// revokeOthers ends every session of userID except keep.
func (s *Sessions) revokeOthers(ctx context.Context, userID uuid.UUID, keep string) {
	n, err := s.store.DestroyAllForUser(ctx, userID, keep)
	if err != nil {
		slog.Error("revoke sessions failed", "error", err, "user_id", userID)
		return
	}
	slog.Info("sessions revoked", "user_id", userID, "count", n)
}

// writeToken answers with a fresh token and the user.
func (s *Sessions) writeToken(w http.ResponseWriter, r *http.Request, status int, user *models.User) {
	signed, err := s.issue(r, user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, envelope{
		"status": "success",
		"token":  signed,
		"data":   envelope{"user": user},
	})
}

// Auth groups registration, login and account recovery handlers.
type Auth struct {
	users    *store.UserStore
	sessions *Sessions
	mailer   *mail.Sender
	baseURL  string
	policy   config.Policy
}

// NewAuth creates a new Auth handler group.
func NewAuth(users *store.UserStore, sessions *Sessions, mailer *mail.Sender, baseURL string, policy config.Policy) *Auth {
	return &Auth{
		users:    users,
		sessions: sessions,
		mailer:   mailer,
		baseURL:  strings.TrimRight(baseURL, "/"),
		policy:   policy,
	}
}

// loginFilter decides whether deactivated accounts may sign in.
func (a *Auth) loginFilter() store.UserFilter {
	if a.policy.AllowInactiveLogin {
		return store.AllUsers
	}
	return store.ActiveUsers
}

type registerRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

// Register creates an account and logs it in.
func (a *Auth) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	trimAll(&req.Name, &req.Email)

	if req.Name == "" || req.Email == "" || req.Password == "" || req.PasswordConfirm == "" {
		writeFail(w, http.StatusBadRequest, "Please provide all required fields: name, email, password, passwordConfirm")
		return
	}
	for _, msg := range []string{
		validateName(req.Name),
		validateEmail(req.Email),
		validatePassword(req.Password, req.PasswordConfirm),
	} {
		if msg != "" {
			writeFail(w, http.StatusBadRequest, msg)
			return
		}
	}

	existing, err := a.users.FindByEmail(r.Context(), req.Email, store.AllUsers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if existing != nil {
		writeFail(w, http.StatusBadRequest, "Email already in use. Please use a different email or login.")
		return
	}

	user, err := a.users.Create(r.Context(), store.NewUser{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("user registered", "user_id", user.ID)

	a.sendVerification(r.Context(), user)
	a.sessions.writeToken(w, r, http.StatusCreated, user)
}

// sendVerification stores a verification token and mails the link.
// Failures are logged; registration still succeeds.
func (a *Auth) sendVerification(ctx context.Context, user *models.User) {
	raw, hash, err := newOneTimeToken()
	if err != nil {
		slog.Error("verification token failed", "error", err)
		return
	}
	if err := a.users.SetVerifyToken(ctx, user.ID, hash, time.Now().Add(verifyTokenTTL)); err != nil {
		slog.Error("store verification token failed", "error", err, "user_id", user.ID)
		return
	}
	subject, body := mail.VerificationMessage(user.Name, a.baseURL+"/verify-email/"+raw)
	if err := a.mailer.Send(ctx, user.Email, subject, body); err != nil {
		slog.Error("verification mail failed", "error", err, "user_id", user.ID)
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TOTPCode string `json:"totpCode"`
}

// Login verifies credentials, and the TOTP code when 2FA is enabled.
func (a *Auth) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeFail(w, http.StatusBadRequest, "Please provide email and password")
		return
	}

	user, err := a.users.FindByEmail(r.Context(), req.Email, a.loginFilter())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user == nil || !a.users.CheckPassword(user, req.Password) {
		writeFail(w, http.StatusUnauthorized, "Incorrect email or password")
		return
	}

	if user.TOTPEnabled && user.TOTPSecret != nil {
		code := strings.TrimSpace(req.TOTPCode)
		if code == "" {
			writeFail(w, http.StatusUnauthorized, "Two-factor code required")
			return
		}
		if !totp.Validate(code, *user.TOTPSecret) {
			writeFail(w, http.StatusUnauthorized, "Invalid two-factor code")
			return
		}
	}

	a.sessions.writeToken(w, r, http.StatusOK, user)
}

// Logout revokes the session behind the request's token.
func (a *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	if claims := middleware.ClaimsFromCtx(r.Context()); claims != nil {
		if err := a.sessions.store.Destroy(r.Context(), claims.ID); err != nil {
			writeError(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated user.
func (a *Auth) Me(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, envelope{"user": middleware.UserFromCtx(r.Context())})
}

// VerifyEmail consumes an email verification token.
func (a *Auth) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	user, err := a.users.FindByVerifyToken(r.Context(), hashToken(chi.URLParam(r, "token")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user == nil {
		writeFail(w, http.StatusBadRequest, "Token is invalid or has expired")
		return
	}
	if err := a.users.MarkEmailVerified(r.Context(), user.ID); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Email successfully verified. You can now log in.")
}

// forgotPasswordMessage is returned whether or not the address exists.
const forgotPasswordMessage = "If an account exists for that email, a password reset link has been sent."

// ForgotPassword mails a reset link. The response never reveals whether
// the address is registered.
func (a *Auth) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if msg := validateEmail(req.Email); msg != "" {
		writeFail(w, http.StatusBadRequest, msg)
		return
	}

	user, err := a.users.FindByEmail(r.Context(), req.Email, store.ActiveUsers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user != nil {
		a.sendReset(r.Context(), user)
	}
	writeMessage(w, http.StatusOK, forgotPasswordMessage)
}

func (a *Auth) sendReset(ctx context.Context, user *models.User) {
	raw, hash, err := newOneTimeToken()
	if err != nil {
		slog.Error("reset token failed", "error", err)
		return
	}
	if err := a.users.SetResetToken(ctx, user.ID, hash, time.Now().Add(resetTokenTTL)); err != nil {
		slog.Error("store reset token failed", "error", err, "user_id", user.ID)
		return
	}
	subject, body := mail.ResetMessage(user.Name, a.baseURL+"/reset-password/"+raw)
	if err := a.mailer.Send(ctx, user.Email, subject, body); err != nil {
		slog.Error("reset mail failed", "error", err, "user_id", user.ID)
		if err := a.users.ClearResetToken(ctx, user.ID); err != nil {
			slog.Error("clear reset token failed", "error", err, "user_id", user.ID)
		}
	}
}

// ResetPassword sets a new password from a reset token, revokes every
// existing session and logs the user in.
func (a *Auth) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password        string `json:"password"`
		PasswordConfirm string `json:"passwordConfirm"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := a.users.FindByResetToken(r.Context(), hashToken(chi.URLParam(r, "token")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user == nil {
		writeFail(w, http.StatusBadRequest, "Token is invalid or has expired")
		return
	}
	if msg := validatePassword(req.Password, req.PasswordConfirm); msg != "" {
		writeFail(w, http.StatusBadRequest, msg)
		return
	}
	if err := a.users.SetPassword(r.Context(), user.ID, req.Password); err != nil {
		writeError(w, r, err)
		return
	}
	a.sessions.revokeOthers(r.Context(), user.ID, "")

	a.sessions.writeToken(w, r, http.StatusOK, user)
}

// TwoFASetup generates a TOTP secret and returns it with a QR code.
// 2FA is not active until TwoFAEnable confirms a code.
func (a *Auth) TwoFASetup(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user.TOTPEnabled {
		writeFail(w, http.StatusBadRequest, "Two-factor authentication is already enabled")
		return
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: user.Email,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.users.SetTOTPSecret(r.Context(), user.ID, key.Secret()); err != nil {
		writeError(w, r, err)
		return
	}

	png, err := qrcode.Encode(key.URL(), qrcode.Medium, 256)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, envelope{
		"secret": key.Secret(),
		"url":    key.URL(),
		"qrCode": "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	})
}

type totpRequest struct {
	Code string `json:"code"`
}

// checkTOTP validates the code in the request body against the user's
// stored secret.
func (a *Auth) checkTOTP(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	var req totpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return nil, false
	}
	user, err := a.users.FindByID(r.Context(), middleware.UserFromCtx(r.Context()).ID, store.AllUsers)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if user == nil || user.TOTPSecret == nil {
		writeFail(w, http.StatusBadRequest, "Two-factor authentication has not been set up")
		return nil, false
	}
	if !totp.Validate(strings.TrimSpace(req.Code), *user.TOTPSecret) {
		writeFail(w, http.StatusBadRequest, "Invalid two-factor code")
		return nil, false
	}
	return user, true
}

// TwoFAEnable turns on 2FA after the first valid code.
func (a *Auth) TwoFAEnable(w http.ResponseWriter, r *http.Request) {
	user, ok := a.checkTOTP(w, r)
	if !ok {
		return
	}
	if err := a.users.EnableTOTP(r.Context(), user.ID); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("2fa enabled", "user_id", user.ID)
	writeMessage(w, http.StatusOK, "Two-factor authentication enabled")
}

// TwoFADisable turns 2FA off. A current code is required.
func (a *Auth) TwoFADisable(w http.ResponseWriter, r *http.Request) {
	user, ok := a.checkTOTP(w, r)
	if !ok {
		return
	}
	if err := a.users.ResetTOTP(r.Context(), user.ID); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("2fa disabled", "user_id", user.ID)
	writeMessage(w, http.StatusOK, "Two-factor authentication disabled")
}

// newOneTimeToken returns a random URL-safe token and the hash to store.
func newOneTimeToken() (raw, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generate one-time token: %w", err)
	}
	raw = hex.EncodeToString(b)
	return raw, hashToken(raw), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
