package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"ajeyam/internal/middleware"
	"ajeyam/internal/models"
	"ajeyam/internal/store"
)

const (
	msgCommentBlogNotFound = "Blog not found"
	msgCommentNotFound     = "Comment not found"
)

// Comments groups the comment thread handlers mounted under a blog.
type Comments struct {
	comments *store.CommentStore
	blogs    *store.BlogStore
	ledger   *store.LedgerStore
}

// NewComments creates a new Comments handler group.
func NewComments(comments *store.CommentStore, blogs *store.BlogStore, ledger *store.LedgerStore) *Comments {
	return &Comments{comments: comments, blogs: blogs, ledger: ledger}
}

// loadBlog resolves {blogId} to a blog the caller may see.
func (h *Comments) loadBlog(w http.ResponseWriter, r *http.Request) (*models.Blog, bool) {
	id, err := uuidParam(r, "blogId", msgCommentBlogNotFound)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	b, err := h.blogs.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if b == nil || !canSee(middleware.UserFromCtx(r.Context()), b) {
		writeFail(w, http.StatusNotFound, msgCommentBlogNotFound)
		return nil, false
	}
	return b, true
}

// loadComment resolves {id} to a live comment on blog.
func (h *Comments) loadComment(w http.ResponseWriter, r *http.Request, blog *models.Blog) (*models.Comment, bool) {
	id, err := uuidParam(r, "id", msgCommentNotFound)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	c, err := h.comments.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if c == nil || c.IsDeleted || c.BlogID != blog.ID {
		writeFail(w, http.StatusNotFound, msgCommentNotFound)
		return nil, false
	}
	return c, true
}

// List returns the blog's threads.
func (h *Comments) List(w http.ResponseWriter, r *http.Request) {
	b, ok := h.loadBlog(w, r)
	if !ok {
		return
	}
	comments, err := h.comments.ListForBlog(r.Context(), b.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"status":  "success",
		"results": len(comments),
		"data":    envelope{"comments": comments},
	})
}

// Get returns one comment with its replies.
func (h *Comments) Get(w http.ResponseWriter, r *http.Request) {
	b, ok := h.loadBlog(w, r)
	if !ok {
		return
	}
	c, ok := h.loadComment(w, r, b)
	if !ok {
		return
	}
	replies, err := h.comments.ListReplies(r.Context(), c.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c.Replies = replies
	writeData(w, http.StatusOK, envelope{"comment": c})
}

// Replies lists a comment's live replies, oldest first.
func (h *Comments) Replies(w http.ResponseWriter, r *http.Request) {
	b, ok := h.loadBlog(w, r)
	if !ok {
		return
	}
	c, ok := h.loadComment(w, r, b)
	if !ok {
		return
	}
	replies, err := h.comments.ListReplies(r.Context(), c.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"status":  "success",
		"results": len(replies),
		"data":    envelope{"replies": replies},
	})
}

type commentRequest struct {
	Content       string `json:"content"`
	ParentComment string `json:"parentComment"`
}

// Create adds a comment. The parent, if any, must be on the same blog.
func (h *Comments) Create(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.create(w, r, req.Content, strings.TrimSpace(req.ParentComment))
}

// Reply adds a reply to the comment named in the URL.
func (h *Comments) Reply(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.create(w, r, req.Content, chi.URLParam(r, "id"))
}

func (h *Comments) create(w http.ResponseWriter, r *http.Request, content, parent string) {
	b, ok := h.loadBlog(w, r)
	if !ok {
		return
	}
	content = strings.TrimSpace(content)
	if msg := validateComment(content); msg != "" {
		writeFail(w, http.StatusBadRequest, msg)
		return
	}

	c := &models.Comment{
		Content: content,
		BlogID:  b.ID,
		UserID:  middleware.UserFromCtx(r.Context()).ID,
	}
	if parent != "" {
		parentID, err := uuid.Parse(parent)
		if err != nil {
			writeFail(w, http.StatusBadRequest, "Invalid parent comment")
			return
		}
		p, err := h.comments.FindByID(r.Context(), parentID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if p == nil || p.BlogID != b.ID {
			writeFail(w, http.StatusBadRequest, "Invalid parent comment")
			return
		}
		c.ParentID = &parentID
	}

	created, err := h.comments.Create(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, envelope{"comment": created})
}

// loadOwned is loadComment plus the author-or-admin guard.
func (h *Comments) loadOwned(w http.ResponseWriter, r *http.Request, verb string) (*models.Comment, bool) {
	b, ok := h.loadBlog(w, r)
	if !ok {
		return nil, false
	}
	c, ok := h.loadComment(w, r, b)
	if !ok {
		return nil, false
	}
	user := middleware.UserFromCtx(r.Context())
	if !user.IsAdmin() && user.ID != c.UserID {
		writeFail(w, http.StatusForbidden, "You can only "+verb+" your own comments")
		return nil, false
	}
	return c, true
}

// Update replaces a comment's text and marks it edited.
func (h *Comments) Update(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadOwned(w, r, "edit")
	if !ok {
		return
	}
	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	content := strings.TrimSpace(req.Content)
	if msg := validateComment(content); msg != "" {
		writeFail(w, http.StatusBadRequest, msg)
		return
	}
	updated, err := h.comments.UpdateContent(r.Context(), c.ID, content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, envelope{"comment": updated})
}

// Delete soft-deletes a comment. Its replies stay in place.
func (h *Comments) Delete(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadOwned(w, r, "delete")
	if !ok {
		return
	}
	if err := h.comments.SoftDelete(r.Context(), c); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Like toggles the caller's like on a comment.
func (h *Comments) Like(w http.ResponseWriter, r *http.Request) {
	b, ok := h.loadBlog(w, r)
	if !ok {
		return
	}
	c, ok := h.loadComment(w, r, b)
	if !ok {
		return
	}
	out, err := h.ledger.Toggle(r.Context(), store.CommentLikes, c.ID, middleware.UserFromCtx(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, envelope{"liked": out.Present, "likesCount": out.Count})
}
