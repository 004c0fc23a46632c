package handlers

import (
	"net/http"
	"strings"
	"time"

	"ajeyam/internal/middleware"
	"ajeyam/internal/models"
	"ajeyam/internal/moderation"
	"ajeyam/internal/store"
)

const (
	msgReviewNotFound = "Review not found"
	entityReview      = "review"
)

// Reviews groups the book review handlers.
type Reviews struct {
	reviews *store.ReviewStore
	log     *store.ModerationLogStore
}

// NewReviews creates a new Reviews handler group.
func NewReviews(reviews *store.ReviewStore, log *store.ModerationLogStore) *Reviews {
	return &Reviews{reviews: reviews, log: log}
}

func (h *Reviews) writeList(w http.ResponseWriter, r *http.Request, q store.ReviewQuery) {
	reviews, err := h.reviews.List(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"status":  "success",
		"results": len(reviews),
		"data":    envelope{"reviews": reviews},
	})
}

// List returns reviews, published only unless an admin asks for another
// status.
func (h *Reviews) List(w http.ResponseWriter, r *http.Request) {
	q := store.ReviewQuery{Statuses: []models.Status{models.StatusPublished}}
	if user := middleware.UserFromCtx(r.Context()); user != nil && user.IsAdmin() {
		if statuses := parseStatuses(r.URL.Query().Get("status"), moderation.Review.Allows); len(statuses) > 0 {
			q.Statuses = statuses
		}
	}
	h.writeList(w, r, q)
}

// Mine returns every review by the caller, in any status.
func (h *Reviews) Mine(w http.ResponseWriter, r *http.Request) {
	id := middleware.UserFromCtx(r.Context()).ID
	h.writeList(w, r, store.ReviewQuery{ReviewerID: &id})
}

// Pending returns reviews awaiting moderation.
func (h *Reviews) Pending(w http.ResponseWriter, r *http.Request) {
	h.writeList(w, r, store.ReviewQuery{Statuses: []models.Status{models.StatusPending}})
}

// Stats returns catalogue totals for the admin dashboard.
func (h *Reviews) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reviews.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, stats)
}

func (h *Reviews) load(w http.ResponseWriter, r *http.Request) (*models.BookReview, bool) {
	id, err := uuidParam(r, "id", msgReviewNotFound)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	rv, err := h.reviews.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if rv == nil {
		writeFail(w, http.StatusNotFound, msgReviewNotFound)
		return nil, false
	}
	return rv, true
}

// Get returns one review. Unpublished reviews are visible to their
// reviewer and to admins only.
func (h *Reviews) Get(w http.ResponseWriter, r *http.Request) {
	rv, ok := h.load(w, r)
	if !ok {
		return
	}
	user := middleware.UserFromCtx(r.Context())
	if rv.Status != models.StatusPublished && (user == nil || (!user.IsAdmin() && user.ID != rv.ReviewerID)) {
		writeFail(w, http.StatusNotFound, msgReviewNotFound)
		return
	}
	writeData(w, http.StatusOK, envelope{"review": rv})
}

type reviewRequest struct {
	Title      *string        `json:"title"`
	BookAuthor *string        `json:"bookAuthor"`
	CoverImage *string        `json:"coverImage"`
	Rating     *int           `json:"rating"`
	Summary    *string        `json:"summary"`
	Review     *string        `json:"review"`
	Status     *models.Status `json:"status"`
}

func (req reviewRequest) apply(rv *models.BookReview) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&rv.Title, req.Title)
	set(&rv.BookAuthor, req.BookAuthor)
	set(&rv.CoverImage, req.CoverImage)
	set(&rv.Summary, req.Summary)
	set(&rv.Review, req.Review)
	if req.Rating != nil {
		rv.Rating = *req.Rating
	}
}

func reviewFieldsOf(rv *models.BookReview) reviewFields {
	return reviewFields{
		Title:      rv.Title,
		BookAuthor: rv.BookAuthor,
		CoverImage: rv.CoverImage,
		Rating:     rv.Rating,
		Summary:    rv.Summary,
		Review:     rv.Review,
	}
}

// Create submits a review. Every new review waits for moderation.
func (h *Reviews) Create(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())

	var req reviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rv := &models.BookReview{ReviewerID: user.ID}
	req.apply(rv)
	if msg := validateReview(reviewFieldsOf(rv)); msg != "" {
		writeFail(w, http.StatusBadRequest, msg)
		return
	}

	m, err := moderation.Review.Apply(r.Context(), models.Moderation{}, moderation.Request{
		Action: moderation.ActionCreate,
		Actor:  moderation.Actor{Admin: user.IsAdmin(), Owner: true},
		Now:    time.Now(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	rv.Moderation = m

	created, err := h.reviews.Create(r.Context(), rv)
	if err != nil {
		writeError(w, r, err)
		return
	}
	recordTransition(r.Context(), h.log, entityReview, created.ID, moderation.ActionCreate, "", created.Status)
	writeData(w, http.StatusCreated, envelope{"review": created})
}

func (h *Reviews) loadOwned(w http.ResponseWriter, r *http.Request, verb string) (*models.BookReview, bool) {
	rv, ok := h.load(w, r)
	if !ok {
		return nil, false
	}
	user := middleware.UserFromCtx(r.Context())
	if !user.IsAdmin() && user.ID != rv.ReviewerID {
		writeFail(w, http.StatusForbidden, "You can only "+verb+" your own reviews")
		return nil, false
	}
	return rv, true
}

// Update edits a review. A reviewer editing a published review sends it
// back to pending.
func (h *Reviews) Update(w http.ResponseWriter, r *http.Request) {
	rv, ok := h.loadOwned(w, r, "edit")
	if !ok {
		return
	}
	var req reviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.apply(rv)
	if msg := validateReview(reviewFieldsOf(rv)); msg != "" {
		writeFail(w, http.StatusBadRequest, msg)
		return
	}

	var status models.Status
	if req.Status != nil {
		status = *req.Status
	}
	m, err := transition(r.Context(), h.log, moderation.Review, entityReview, rv.ID, rv.Moderation, moderation.Request{
		Action: moderation.ActionEdit,
		Actor:  actorFor(middleware.UserFromCtx(r.Context()), rv.ReviewerID),
		Status: status,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	rv.Moderation = m

	updated, err := h.reviews.Update(r.Context(), rv)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, envelope{"review": updated})
}

// Delete removes a review.
func (h *Reviews) Delete(w http.ResponseWriter, r *http.Request) {
	rv, ok := h.loadOwned(w, r, "delete")
	if !ok {
		return
	}
	if err := h.reviews.Delete(r.Context(), rv.ID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Approve publishes a pending review.
func (h *Reviews) Approve(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, moderation.Request{Action: moderation.ActionApprove})
}

// Reject rejects a pending review. The reason is optional.
func (h *Reviews) Reject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RejectionReason string `json:"rejectionReason"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if msg := validateReason(req.RejectionReason); msg != "" {
		writeFail(w, http.StatusBadRequest, msg)
		return
	}
	h.moderate(w, r, moderation.Request{Action: moderation.ActionReject, Reason: req.RejectionReason})
}

// ChangeStatus sets any review status as an admin override.
func (h *Reviews) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status          models.Status `json:"status"`
		RejectionReason string        `json:"rejectionReason"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.moderate(w, r, moderation.Request{
		Action: moderation.ActionOverride,
		Status: req.Status,
		Reason: req.RejectionReason,
	})
}

func (h *Reviews) moderate(w http.ResponseWriter, r *http.Request, req moderation.Request) {
	rv, ok := h.load(w, r)
	if !ok {
		return
	}
	req.Actor = actorFor(middleware.UserFromCtx(r.Context()), rv.ReviewerID)

	m, err := transition(r.Context(), h.log, moderation.Review, entityReview, rv.ID, rv.Moderation, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := h.reviews.SetModeration(r.Context(), rv.ID, rv.Status, m)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, envelope{"review": updated})
}
