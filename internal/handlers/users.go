package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"ajeyam/internal/config"
	"ajeyam/internal/middleware"
	"ajeyam/internal/models"
	"ajeyam/internal/store"
)

const msgUserNotFound = "User not found"

// Users groups profile, social ledger and user administration handlers.
type Users struct {
	users    *store.UserStore
	blogs    *store.BlogStore
	ledger   *store.LedgerStore
	sessions *Sessions
	policy   config.Policy
}

// NewUsers creates a new Users handler group.
func NewUsers(users *store.UserStore, blogs *store.BlogStore, ledger *store.LedgerStore, sessions *Sessions, policy config.Policy) *Users {
	return &Users{users: users, blogs: blogs, ledger: ledger, sessions: sessions, policy: policy}
}

// loadUser resolves {id} to a user visible under f.
func (h *Users) loadUser(w http.ResponseWriter, r *http.Request, f store.UserFilter) (*models.User, bool) {
	id, err := uuidParam(r, "id", msgUserNotFound)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	u, err := h.users.FindByID(r.Context(), id, f)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if u == nil {
		writeFail(w, http.StatusNotFound, msgUserNotFound)
		return nil, false
	}
	return u, true
}

// List returns users for admins. Deactivated accounts are included only
// with ?includeInactive=true.
func (h *Users) List(w http.ResponseWriter, r *http.Request) {
	filter := store.ActiveUsers
	if r.URL.Query().Get("includeInactive") == "true" {
		filter = store.AllUsers
	}
	p := parsePage(r, maxPageLimit)
	users, total, err := h.users.List(r.Context(), filter, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePage(w, "users", users, len(users), total, p)
}

// Get returns a public profile with the number of blogs written.
func (h *Users) Get(w http.ResponseWriter, r *http.Request) {
	u, ok := h.loadUser(w, r, store.ActiveUsers)
	if !ok {
		return
	}
	n, err := h.blogs.CountByAuthor(r.Context(), u.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u.BlogCount = &n
	writeData(w, http.StatusOK, envelope{"user": u, "blogCount": n})
}

// Blogs lists a user's blogs. Only the user and admins see unpublished ones.
func (h *Users) Blogs(w http.ResponseWriter, r *http.Request) {
	u, ok := h.loadUser(w, r, store.ActiveUsers)
	if !ok {
		return
	}
	writeAuthorBlogs(w, r, h.blogs, u.ID)
}

type updateMeRequest struct {
	Name            *string `json:"name"`
	Bio             *string `json:"bio"`
	Avatar          *string `json:"avatar"`
	Password        *string `json:"password"`
	PasswordConfirm *string `json:"passwordConfirm"`
}

// UpdateMe edits the caller's name, bio and avatar.
func (h *Users) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req updateMeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Password != nil || req.PasswordConfirm != nil {
		writeFail(w, http.StatusBadRequest, "This route is not for password updates. Please use /update-password.")
		return
	}
	if msg := validateProfile(req.Name, req.Bio, req.Avatar); msg != "" {
		writeFail(w, http.StatusBadRequest, msg)
		return
	}

	me := middleware.UserFromCtx(r.Context())
	u, err := h.users.Update(r.Context(), me.ID, store.ProfileUpdate{
		Name:   req.Name,
		Bio:    req.Bio,
		Avatar: req.Avatar,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, envelope{"user": u})
}

func validateProfile(name, bio, avatar *string) string {
	if name != nil {
		if msg := validateName(*name); msg != "" {
			return msg
		}
	}
	if bio != nil {
		if msg := validateBio(*bio); msg != "" {
			return msg
		}
	}
	if avatar != nil {
		return validateAvatar(*avatar)
	}
	return ""
}

type updatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

// UpdatePassword changes the caller's password, revokes every session and
// returns a fresh token.
func (h *Users) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req updatePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.CurrentPassword == "" || req.Password == "" || req.PasswordConfirm == "" {
		writeFail(w, http.StatusBadRequest, "Please provide current password, new password and password confirmation")
		return
	}

	me := middleware.UserFromCtx(r.Context())
	if !h.users.CheckPassword(me, req.CurrentPassword) {
		writeFail(w, http.StatusUnauthorized, "Your current password is incorrect")
		return
	}
	if msg := validatePassword(req.Password, req.PasswordConfirm); msg != "" {
		writeFail(w, http.StatusBadRequest, msg)
		return
	}
	if err := h.users.SetPassword(r.Context(), me.ID, req.Password); err != nil {
		writeError(w, r, err)
		return
	}
	h.sessions.revokeOthers(r.Context(), me.ID, "")

	h.sessions.writeToken(w, r, http.StatusOK, me)
}

// DeleteMe deactivates the caller's account and ends their sessions.
func (h *Users) DeleteMe(w http.ResponseWriter, r *http.Request) {
	me := middleware.UserFromCtx(r.Context())
	if err := h.users.SetActive(r.Context(), me.ID, false); err != nil {
		writeError(w, r, err)
		return
	}
	h.sessions.revokeOthers(r.Context(), me.ID, "")
	slog.Info("user deactivated own account", "user_id", me.ID)
	w.WriteHeader(http.StatusNoContent)
}

// SavedBlogs lists the published blogs the caller has saved.
func (h *Users) SavedBlogs(w http.ResponseWriter, r *http.Request) {
	me := middleware.UserFromCtx(r.Context())
	q := store.BlogQuery{
		SavedBy:  &me.ID,
		Statuses: []models.Status{models.StatusPublished},
		Sort:     store.ParseBlogSort("-publishedAt"),
	}
	blogs, _, err := h.blogs.List(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"status":  "success",
		"results": len(blogs),
		"data":    envelope{"savedBlogs": blogs},
	})
}

// SaveBlog toggles a blog in the caller's saved list. Visibility and the
// save-own policy gate adding only; a saved blog can always be unsaved.
func (h *Users) SaveBlog(w http.ResponseWriter, r *http.Request) {
	blogID, err := uuidParam(r, "blogId", msgBlogNotFound)
	if err != nil {
		writeError(w, r, err)
		return
	}
	me := middleware.UserFromCtx(r.Context())
	saved, err := h.ledger.Contains(r.Context(), store.SavedBlogs, me.ID, blogID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.blogs.FindByID(r.Context(), blogID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if b == nil || (!saved && !canSee(me, b)) {
		writeFail(w, http.StatusNotFound, msgBlogNotFound)
		return
	}
	if !saved && b.AuthorID == me.ID && !h.policy.AllowSaveOwn {
		writeFail(w, http.StatusBadRequest, "You cannot save your own blog")
		return
	}

	out, err := h.ledger.Toggle(r.Context(), store.SavedBlogs, me.ID, b.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ids, err := h.ledger.Members(r.Context(), store.SavedBlogs, me.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, envelope{"saved": out.Present, "savedBlogs": ids})
}

// Following lists the active users the caller follows.
func (h *Users) Following(w http.ResponseWriter, r *http.Request) {
	me := middleware.UserFromCtx(r.Context())
	users, err := h.users.Following(r.Context(), me.ID, store.ActiveUsers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	authors := make([]*models.Author, len(users))
	for i := range users {
		authors[i] = users[i].Summary()
	}
	writeJSON(w, http.StatusOK, envelope{
		"status":  "success",
		"results": len(authors),
		"data":    envelope{"following": authors},
	})
}

// Follow toggles following another user.
func (h *Users) Follow(w http.ResponseWriter, r *http.Request) {
	targetID, err := uuidParam(r, "userId", msgUserNotFound)
	if err != nil {
		writeError(w, r, err)
		return
	}
	me := middleware.UserFromCtx(r.Context())
	following, err := h.ledger.Contains(r.Context(), store.Follows, me.ID, targetID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Unfollowing skips the checks so a deactivated account can be dropped.
	if !following {
		if targetID == me.ID && !h.policy.AllowSelfFollow {
			writeFail(w, http.StatusBadRequest, "You cannot follow yourself")
			return
		}
		target, err := h.users.FindByID(r.Context(), targetID, store.ActiveUsers)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if target == nil {
			writeFail(w, http.StatusNotFound, msgUserNotFound)
			return
		}
	}

	out, err := h.ledger.Toggle(r.Context(), store.Follows, me.ID, targetID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ids, err := h.ledger.Members(r.Context(), store.Follows, me.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, envelope{"isFollowing": out.Present, "following": ids})
}

type adminUpdateRequest struct {
	Name   *string      `json:"name"`
	Email  *string      `json:"email"`
	Bio    *string      `json:"bio"`
	Avatar *string      `json:"avatar"`
	Role   *models.Role `json:"role"`
	Active *bool        `json:"active"`
}

// Update lets an admin edit any profile field except the password.
func (h *Users) Update(w http.ResponseWriter, r *http.Request) {
	u, ok := h.loadUser(w, r, store.AllUsers)
	if !ok {
		return
	}
	var req adminUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if msg := validateProfile(req.Name, req.Bio, req.Avatar); msg != "" {
		writeFail(w, http.StatusBadRequest, msg)
		return
	}
	if req.Email != nil {
		if msg := validateEmail(*req.Email); msg != "" {
			writeFail(w, http.StatusBadRequest, msg)
			return
		}
	}
	if req.Role != nil && !req.Role.Valid() {
		writeFail(w, http.StatusBadRequest, "Role must be either user or admin")
		return
	}

	updated, err := h.users.Update(r.Context(), u.ID, store.ProfileUpdate{
		Name:   req.Name,
		Email:  req.Email,
		Bio:    req.Bio,
		Avatar: req.Avatar,
		Role:   req.Role,
		Active: req.Active,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if updated == nil {
		writeFail(w, http.StatusNotFound, msgUserNotFound)
		return
	}
	if req.Active != nil && !*req.Active {
		h.sessions.revokeOthers(r.Context(), u.ID, "")
	}
	writeData(w, http.StatusOK, envelope{"user": updated})
}

// Delete hard-deletes a user who has written no blogs.
func (h *Users) Delete(w http.ResponseWriter, r *http.Request) {
	u, ok := h.loadUser(w, r, store.AllUsers)
	if !ok {
		return
	}
	n, err := h.blogs.CountByAuthor(r.Context(), u.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if n > 0 {
		writeFail(w, http.StatusBadRequest, fmt.Sprintf(
			"User has %d blogs. Please reassign or delete these blogs before deleting the user.", n))
		return
	}
	if err := h.users.Delete(r.Context(), u.ID); err != nil {
		writeError(w, r, err)
		return
	}
	h.sessions.revokeOthers(r.Context(), u.ID, "")
	w.WriteHeader(http.StatusNoContent)
}

// Block deactivates a non-admin user and ends their sessions.
func (h *Users) Block(w http.ResponseWriter, r *http.Request) {
	u, ok := h.loadUser(w, r, store.AllUsers)
	if !ok {
		return
	}
	if u.IsAdmin() {
		writeFail(w, http.StatusForbidden, "Admin users cannot be blocked")
		return
	}
	if !u.Active {
		writeFail(w, http.StatusBadRequest, "User is already blocked")
		return
	}
	h.setActive(w, r, u.ID, false, "User has been blocked successfully")
}

// Activate reactivates a blocked user.
func (h *Users) Activate(w http.ResponseWriter, r *http.Request) {
	u, ok := h.loadUser(w, r, store.AllUsers)
	if !ok {
		return
	}
	if u.Active {
		writeFail(w, http.StatusBadRequest, "User is already active")
		return
	}
	h.setActive(w, r, u.ID, true, "User has been activated successfully")
}

func (h *Users) setActive(w http.ResponseWriter, r *http.Request, id uuid.UUID, active bool, message string) {
	if err := h.users.SetActive(r.Context(), id, active); err != nil {
		writeError(w, r, err)
		return
	}
	if !active {
		h.sessions.revokeOthers(r.Context(), id, "")
	}
	u, err := h.users.FindByID(r.Context(), id, store.AllUsers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"status":  "success",
		"message": message,
		"data":    envelope{"user": u},
	})
}
