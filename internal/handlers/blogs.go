package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"ajeyam/internal/apperr"
	"ajeyam/internal/middleware"
	"ajeyam/internal/models"
	"ajeyam/internal/moderation"
	"ajeyam/internal/slug"
	"ajeyam/internal/store"
)

const (
	msgBlogNotFound     = "No blog found with that ID"
	defaultFeaturedLim  = 6
	defaultRelatedLimit = 3
	entityBlog          = "blog"
)

// Blogs groups the blog handlers.
type Blogs struct {
	blogs      *store.BlogStore
	categories *store.CategoryStore
	ledger     *store.LedgerStore
	log        *store.ModerationLogStore
}

// NewBlogs creates a new Blogs handler group.
func NewBlogs(blogs *store.BlogStore, categories *store.CategoryStore, ledger *store.LedgerStore, log *store.ModerationLogStore) *Blogs {
	return &Blogs{blogs: blogs, categories: categories, ledger: ledger, log: log}
}

// canSee reports whether user may read b. Unpublished blogs are visible
// only to their author and to admins.
func canSee(user *models.User, b *models.Blog) bool {
	if b.Status == models.StatusPublished {
		return true
	}
	return user != nil && (user.IsAdmin() || user.ID == b.AuthorID)
}

// List serves the filtered blog listing. Non-admins only ever see
// published blogs, whatever status they ask for.
func (h *Blogs) List(w http.ResponseWriter, r *http.Request) {
	q, ok := h.parseQuery(w, r)
	if !ok {
		return
	}
	user := middleware.UserFromCtx(r.Context())
	if user != nil && user.IsAdmin() {
		q.Statuses = parseStatuses(r.URL.Query().Get("status"), moderation.Blog.Allows)
	} else {
		q.Statuses = []models.Status{models.StatusPublished}
	}
	h.writeList(w, r, q)
}

// Published lists published blogs only.
func (h *Blogs) Published(w http.ResponseWriter, r *http.Request) {
	q, ok := h.parseQuery(w, r)
	if !ok {
		return
	}
	q.Statuses = []models.Status{models.StatusPublished}
	h.writeList(w, r, q)
}

// Featured lists the newest featured published blogs.
func (h *Blogs) Featured(w http.ResponseWriter, r *http.Request) {
	q := store.BlogQuery{
		Statuses: []models.Status{models.StatusPublished},
		Featured: true,
		Sort:     store.ParseBlogSort("-publishedAt"),
		Page:     store.Page{Number: 1, Limit: queryLimit(r, defaultFeaturedLim)},
	}
	blogs, _, err := h.blogs.List(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"status":  "success",
		"results": len(blogs),
		"data":    envelope{"blogs": blogs},
	})
}

// Pending lists blogs awaiting moderation, oldest first.
func (h *Blogs) Pending(w http.ResponseWriter, r *http.Request) {
	q := store.BlogQuery{
		Statuses: []models.Status{models.StatusPending},
		Sort:     store.ParseBlogSort("createdAt"),
		Page:     parsePage(r, defaultPageLimit),
		Authors:  store.AllUsers,
	}
	h.writeList(w, r, q)
}

// ByAuthor lists one author's blogs. Drafts and unpublished work are
// included only for the author and for admins.
func (h *Blogs) ByAuthor(w http.ResponseWriter, r *http.Request) {
	authorID, err := uuidParam(r, "authorId", "No user found with that ID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeAuthorBlogs(w, r, h.blogs, authorID)
}

// writeAuthorBlogs lists authorID's blogs, newest published first.
func writeAuthorBlogs(w http.ResponseWriter, r *http.Request, blogs *store.BlogStore, authorID uuid.UUID) {
	q := store.BlogQuery{
		AuthorID: &authorID,
		Sort:     store.ParseBlogSort("-publishedAt,-createdAt"),
		Page:     parsePage(r, defaultPageLimit),
	}
	user := middleware.UserFromCtx(r.Context())
	if user == nil || (!user.IsAdmin() && user.ID != authorID) {
		q.Statuses = []models.Status{models.StatusPublished}
	}
	writeBlogList(w, r, blogs, q)
}

// Related lists published blogs that share the blog's category or a tag.
func (h *Blogs) Related(w http.ResponseWriter, r *http.Request) {
	b, ok := h.load(w, r, "id")
	if !ok {
		return
	}
	related, err := h.blogs.Related(r.Context(), b, queryLimit(r, defaultRelatedLimit))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"status":  "success",
		"results": len(related),
		"data":    envelope{"blogs": related},
	})
}

// Get returns one blog by id or slug and counts the view.
func (h *Blogs) Get(w http.ResponseWriter, r *http.Request) {
	b, err := h.blogs.FindByIdentifier(r.Context(), chi.URLParam(r, "identifier"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	user := middleware.UserFromCtx(r.Context())
	if b == nil || !canSee(user, b) {
		writeFail(w, http.StatusNotFound, msgBlogNotFound)
		return
	}

	views, err := h.blogs.IncrementViews(r.Context(), b.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b.Views = views

	data := envelope{"blog": b}
	if user != nil {
		liked, err := h.ledger.Contains(r.Context(), store.BlogLikes, b.ID, user.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		saved, err := h.ledger.Contains(r.Context(), store.SavedBlogs, user.ID, b.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		data["isLiked"] = liked
		data["isSaved"] = saved
	}
	writeData(w, http.StatusOK, data)
}

type blogRequest struct {
	Title      *string        `json:"title"`
	Summary    *string        `json:"summary"`
	Content    *string        `json:"content"`
	CoverImage *string        `json:"coverImage"`
	Category   *string        `json:"category"`
	Tags       *[]string      `json:"tags"`
	Status     *models.Status `json:"status"`
	IsFeatured *bool          `json:"isFeatured"`
}

// apply merges the author-editable fields of the request into b.
func (req blogRequest) apply(b *models.Blog) {
	if req.Title != nil {
		b.Title = strings.TrimSpace(*req.Title)
	}
	if req.Summary != nil {
		b.Summary = strings.TrimSpace(*req.Summary)
	}
	if req.Content != nil {
		b.Content = *req.Content
	}
	if req.CoverImage != nil {
		b.CoverImage = strings.TrimSpace(*req.CoverImage)
	}
	if req.Tags != nil {
		b.Tags = models.NormalizeTags(*req.Tags)
	}
}

func (req blogRequest) status() models.Status {
	if req.Status == nil {
		return ""
	}
	return *req.Status
}

func fieldsOf(b *models.Blog) blogFields {
	return blogFields{
		Title:      b.Title,
		Summary:    b.Summary,
		Content:    strings.TrimSpace(b.Content),
		CoverImage: b.CoverImage,
		Tags:       b.Tags,
	}
}

// resolveCategory checks that the requested category exists.
func (h *Blogs) resolveCategory(r *http.Request, raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, apperr.Validation("A blog must belong to a category")
	}
	c, err := h.categories.FindByIdentifier(r.Context(), raw, true)
	if err != nil {
		return uuid.Nil, err
	}
	if c == nil {
		return uuid.Nil, apperr.Validation(msgCategoryNotFound)
	}
	return c.ID, nil
}

// Create stores a new blog. Non-admin authors always start at pending.
func (h *Blogs) Create(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())

	var req blogRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	b := &models.Blog{AuthorID: user.ID, Tags: []string{}}
	req.apply(b)
	if msg := validateBlog(fieldsOf(b)); msg != "" {
		writeFail(w, http.StatusBadRequest, msg)
		return
	}

	var category string
	if req.Category != nil {
		category = *req.Category
	}
	categoryID, err := h.resolveCategory(r, category)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b.CategoryID = categoryID

	now := time.Now()
	m, err := moderation.Blog.Apply(r.Context(), models.Moderation{}, moderation.Request{
		Action: moderation.ActionCreate,
		Actor:  moderation.Actor{Admin: user.IsAdmin(), Owner: true},
		Status: req.status(),
		Now:    now,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	b.Moderation = m
	b.Slug = slug.Unique(b.Title, now)
	b.ReadTime = models.ReadTimeFor(b.Content)
	if req.IsFeatured != nil && user.IsAdmin() {
		b.IsFeatured = *req.IsFeatured
	}

	created, err := h.blogs.Create(r.Context(), b)
	if err != nil {
		writeError(w, r, err)
		return
	}
	recordTransition(r.Context(), h.log, entityBlog, created.ID, moderation.ActionCreate, "", created.Status)
	writeData(w, http.StatusCreated, envelope{"blog": created})
}

// load fetches the blog named by the URL parameter, answering 404 itself.
func (h *Blogs) load(w http.ResponseWriter, r *http.Request, param string) (*models.Blog, bool) {
	id, err := uuidParam(r, param, msgBlogNotFound)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	b, err := h.blogs.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if b == nil {
		writeFail(w, http.StatusNotFound, msgBlogNotFound)
		return nil, false
	}
	return b, true
}

// loadOwned is load plus the author-or-admin guard.
func (h *Blogs) loadOwned(w http.ResponseWriter, r *http.Request, verb string) (*models.Blog, bool) {
	b, ok := h.load(w, r, "id")
	if !ok {
		return nil, false
	}
	user := middleware.UserFromCtx(r.Context())
	if !user.IsAdmin() && user.ID != b.AuthorID {
		writeFail(w, http.StatusForbidden, "You can only "+verb+" your own blogs")
		return nil, false
	}
	return b, true
}

// Update edits a blog. A non-admin editing their published blog sends it
// back to pending.
func (h *Blogs) Update(w http.ResponseWriter, r *http.Request) {
	b, ok := h.loadOwned(w, r, "edit")
	if !ok {
		return
	}
	user := middleware.UserFromCtx(r.Context())

	var req blogRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	oldTitle := b.Title
	req.apply(b)
	if msg := validateBlog(fieldsOf(b)); msg != "" {
		writeFail(w, http.StatusBadRequest, msg)
		return
	}
	if req.Category != nil {
		categoryID, err := h.resolveCategory(r, *req.Category)
		if err != nil {
			writeError(w, r, err)
			return
		}
		b.CategoryID = categoryID
	}

	now := time.Now()
	if b.Title != oldTitle {
		b.Slug = slug.Unique(b.Title, now)
	}
	b.ReadTime = models.ReadTimeFor(b.Content)
	if req.IsFeatured != nil && user.IsAdmin() {
		b.IsFeatured = *req.IsFeatured
	}

	m, err := transition(r.Context(), h.log, moderation.Blog, entityBlog, b.ID, b.Moderation, moderation.Request{
		Action: moderation.ActionEdit,
		Actor:  actorFor(user, b.AuthorID),
		Status: req.status(),
		Now:    now,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	b.Moderation = m

	updated, err := h.blogs.Update(r.Context(), b)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, envelope{"blog": updated})
}

// Delete removes a blog and every comment on it.
func (h *Blogs) Delete(w http.ResponseWriter, r *http.Request) {
	b, ok := h.loadOwned(w, r, "delete")
	if !ok {
		return
	}
	if err := h.blogs.Delete(r.Context(), b.ID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Like toggles the caller's like on a blog.
func (h *Blogs) Like(w http.ResponseWriter, r *http.Request) {
	b, ok := h.load(w, r, "id")
	if !ok {
		return
	}
	user := middleware.UserFromCtx(r.Context())
	if !canSee(user, b) {
		writeFail(w, http.StatusNotFound, msgBlogNotFound)
		return
	}
	out, err := h.ledger.Toggle(r.Context(), store.BlogLikes, b.ID, user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, envelope{"liked": out.Present, "likesCount": out.Count})
}

// Approve publishes a pending blog.
func (h *Blogs) Approve(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, moderation.Request{Action: moderation.ActionApprove})
}

// Reject rejects a pending blog with a reason.
func (h *Blogs) Reject(w http.ResponseWriter, r *http.Request) {
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

// ChangeStatus sets any status as an admin override.
func (h *Blogs) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status          models.Status `json:"status"`
		RejectionReason string        `json:"rejectionReason"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if msg := validateReason(req.RejectionReason); msg != "" {
		writeFail(w, http.StatusBadRequest, msg)
		return
	}
	h.moderate(w, r, moderation.Request{
		Action: moderation.ActionOverride,
		Status: req.Status,
		Reason: req.RejectionReason,
	})
}

func (h *Blogs) moderate(w http.ResponseWriter, r *http.Request, req moderation.Request) {
	b, ok := h.load(w, r, "id")
	if !ok {
		return
	}
	req.Actor = actorFor(middleware.UserFromCtx(r.Context()), b.AuthorID)

	m, err := transition(r.Context(), h.log, moderation.Blog, entityBlog, b.ID, b.Moderation, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := h.blogs.SetModeration(r.Context(), b.ID, b.Status, m)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, envelope{"blog": updated})
}

// parseQuery reads the shared listing parameters.
func (h *Blogs) parseQuery(w http.ResponseWriter, r *http.Request) (store.BlogQuery, bool) {
	v := r.URL.Query()
	q := store.BlogQuery{
		Tag:      strings.TrimSpace(v.Get("tag")),
		Featured: v.Get("featured") == "true",
		Search:   strings.TrimSpace(v.Get("search")),
		Sort:     store.ParseBlogSort(v.Get("sort")),
		Page:     parsePage(r, defaultPageLimit),
	}

	if raw := strings.TrimSpace(v.Get("category")); raw != "" {
		c, err := h.categories.FindByIdentifier(r.Context(), raw, true)
		if err != nil {
			writeError(w, r, err)
			return q, false
		}
		if c == nil {
			writeFail(w, http.StatusNotFound, msgCategoryNotFound)
			return q, false
		}
		q.CategoryIDs = []uuid.UUID{c.ID}
	}
	if raw := strings.TrimSpace(v.Get("author")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeFail(w, http.StatusBadRequest, "Invalid author ID")
			return q, false
		}
		q.AuthorID = &id
	}
	return q, true
}

func (h *Blogs) writeList(w http.ResponseWriter, r *http.Request, q store.BlogQuery) {
	writeBlogList(w, r, h.blogs, q)
}

func writeBlogList(w http.ResponseWriter, r *http.Request, s *store.BlogStore, q store.BlogQuery) {
	blogs, total, err := s.List(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePage(w, "blogs", blogs, len(blogs), total, q.Page)
}
