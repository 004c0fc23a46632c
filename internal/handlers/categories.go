// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"ajeyam/internal/apperr"
	"ajeyam/internal/cache"
	"ajeyam/internal/middleware"
	"ajeyam/internal/models"
	"ajeyam/internal/slug"
	"ajeyam/internal/store"
)

const (
	msgCategoryNotFound = "Category not found"
	msgParentNotFound   = "Parent category not found"

	// maxCategoryDepth bounds the ancestor walk when re-parenting.
	maxCategoryDepth = 16
)

// Categories groups the category handlers. Anonymous and non-admin reads
// are served from the response cache when one is configured.
type Categories struct {
	categories *store.CategoryStore
	blogs      *store.BlogStore
	cache      *cache.ResponseCache
}

// NewCategories creates a new Categories handler group. rc may be nil.
func NewCategories(categories *store.CategoryStore, blogs *store.BlogStore, rc *cache.ResponseCache) *Categories {
	return &Categories{categories: categories, blogs: blogs, cache: rc}
}

func isAdmin(r *http.Request) bool {
	u := middleware.UserFromCtx(r.Context())
	return u != nil && u.IsAdmin()
}

// serveCached writes the success envelope around build's result. Public
// responses are cached by URL and carry an ETag so clients can revalidate.
func (h *Categories) serveCached(w http.ResponseWriter, r *http.Request, build func() (any, error)) {
	if isAdmin(r) {
		data, err := build()
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, data)
		return
	}

	key := r.URL.Path + "?" + r.URL.RawQuery
	var body []byte
	if h.cache != nil {
		body, _ = h.cache.Get(r.Context(), key)
	}
	if body == nil {
		data, err := build()
		if err != nil {
			writeError(w, r, err)
			return
		}
		body, err = json.Marshal(envelope{"status": "success", "data": data})
		if err != nil {
			writeError(w, r, err)
			return
		}
		body = append(body, '\n')
		if h.cache != nil {
			h.cache.Set(r.Context(), key, body)
		}
	}

	etag := `"` + strconv.FormatUint(xxhash.Sum64(body), 16) + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=60")
	if match := r.Header.Get("If-None-Match"); match != "" && strings.Contains(match, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// invalidate drops every cached category response after a write.
func (h *Categories) invalidate(r *http.Request) {
	if h.cache != nil {
		h.cache.InvalidateAll(r.Context())
	}
}

// List returns categories. ?parent=null or ?parent=main lists top-level
// categories; ?parent=<id> lists one category's children.
func (h *Categories) List(w http.ResponseWriter, r *http.Request) {
	f := store.CategoryFilter{IncludeInactive: isAdmin(r)}
	switch parent := r.URL.Query().Get("parent"); parent {
	case "":
	case "null", "main":
		f.RootsOnly = true
	default:
		id, err := uuid.Parse(parent)
		if err != nil {
			writeFail(w, http.StatusBadRequest, "Invalid parent category")
			return
		}
		f.ParentID = &id
	}

	h.serveCached(w, r, func() (any, error) {
		items, err := h.categories.List(r.Context(), f)
		if err != nil {
			return nil, err
		}
		return envelope{"categories": items}, nil
	})
}

// MainWithSubs returns the active category tree.
func (h *Categories) MainWithSubs(w http.ResponseWriter, r *http.Request) {
	h.serveCached(w, r, func() (any, error) {
		tree, err := h.categories.Tree(r.Context())
		if err != nil {
			return nil, err
		}
		return envelope{"categories": tree}, nil
	})
}

// find resolves {identifier}. Inactive categories exist only for admins.
func (h *Categories) find(r *http.Request) (*models.Category, error) {
	admin := isAdmin(r)
	c, err := h.categories.FindByIdentifier(r.Context(), chi.URLParam(r, "identifier"), admin)
	if err != nil {
		return nil, err
	}
	if c == nil || (!c.IsActive && !admin) {
		return nil, apperr.NotFound(msgCategoryNotFound)
	}
	return c, nil
}

// Get returns one category with its direct subcategories.
func (h *Categories) Get(w http.ResponseWriter, r *http.Request) {
	h.serveCached(w, r, func() (any, error) {
		c, err := h.find(r)
		if err != nil {
			return nil, err
		}
		return envelope{"category": c}, nil
	})
}

// Blogs lists the published blogs of a category and its direct
// subcategories, newest first.
func (h *Categories) Blogs(w http.ResponseWriter, r *http.Request) {
	c, err := h.find(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ids := []uuid.UUID{c.ID}
	for _, sub := range c.Children {
		ids = append(ids, sub.ID)
	}

	p := parsePage(r, defaultPageLimit)
	blogs, total, err := h.blogs.List(r.Context(), store.BlogQuery{
		Statuses:    []models.Status{models.StatusPublished},
		CategoryIDs: ids,
		Sort:        store.ParseBlogSort("-publishedAt"),
		Page:        p,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"status":     "success",
		"results":    len(blogs),
		"pagination": pagination(p, total),
		"data":       envelope{"category": c, "blogs": blogs},
	})
}

type categoryRequest struct {
	Name           *string `json:"name"`
	Description    *string `json:"description"`
	ImageURL       *string `json:"imageUrl"`
	ParentCategory *string `json:"parentCategory"`
	Order          *int    `json:"order"`
	IsActive       *bool   `json:"isActive"`
}

func (req categoryRequest) apply(c *models.Category) {
	if req.Name != nil {
		c.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		c.Description = strings.TrimSpace(*req.Description)
	}
	if req.ImageURL != nil {
		c.ImageURL = strings.TrimSpace(*req.ImageURL)
	}
	if req.Order != nil {
		c.SortOrder = *req.Order
	}
	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}
}

// resolveParent checks the requested parent of category id. An empty value
// means top level.
func (h *Categories) resolveParent(r *http.Request, id uuid.UUID, raw string) (*uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	parentID, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperr.Validation(msgParentNotFound)
	}
	if parentID == id {
		return nil, apperr.Validation("Category cannot be its own parent")
	}

	// Walk up from the new parent; meeting id would close a cycle.
	cur := &parentID
	for depth := 0; cur != nil && depth < maxCategoryDepth; depth++ {
		c, err := h.categories.FindByID(r.Context(), *cur)
		if err != nil {
			return nil, err
		}
		if c == nil {
			if depth == 0 {
				return nil, apperr.Validation(msgParentNotFound)
			}
			break
		}
		if c.ID == id {
			return nil, apperr.Validation("Category cannot be nested under its own subcategory")
		}
		cur = c.ParentID
	}
	return &parentID, nil
}

// Create adds a category. Without an explicit order it goes last among
// its siblings.
func (h *Categories) Create(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c := &models.Category{IsActive: true}
	req.apply(c)
	if msg := validateCategory(c.Name, c.Description, c.ImageURL); msg != "" {
		writeFail(w, http.StatusBadRequest, msg)
		return
	}

	if req.ParentCategory != nil {
		parentID, err := h.resolveParent(r, uuid.Nil, *req.ParentCategory)
		if err != nil {
			writeError(w, r, err)
			return
		}
		c.ParentID = parentID
	}
	if req.Order == nil {
		next, err := h.categories.NextSortOrder(r.Context(), c.ParentID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		c.SortOrder = next
	}
	c.Slug = slug.Generate(c.Name)

	created, err := h.categories.Create(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.invalidate(r)
	writeData(w, http.StatusCreated, envelope{"category": created})
}

func (h *Categories) load(w http.ResponseWriter, r *http.Request) (*models.Category, bool) {
	id, err := uuidParam(r, "id", msgCategoryNotFound)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	c, err := h.categories.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if c == nil {
		writeFail(w, http.StatusNotFound, msgCategoryNotFound)
		return nil, false
	}
	return c, true
}

// Update edits a category. Renaming regenerates the slug.
func (h *Categories) Update(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	oldName := c.Name
	req.apply(c)
	if msg := validateCategory(c.Name, c.Description, c.ImageURL); msg != "" {
		writeFail(w, http.StatusBadRequest, msg)
		return
	}
	if req.ParentCategory != nil {
		parentID, err := h.resolveParent(r, c.ID, *req.ParentCategory)
		if err != nil {
			writeError(w, r, err)
			return
		}
		c.ParentID = parentID
	}
	if c.Name != oldName {
		c.Slug = slug.Generate(c.Name)
	}

	updated, err := h.categories.Update(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.invalidate(r)
	writeData(w, http.StatusOK, envelope{"category": updated})
}

// Delete removes an empty category.
func (h *Categories) Delete(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}
	children, err := h.categories.CountChildren(r.Context(), c.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if children > 0 {
		writeFail(w, http.StatusBadRequest, "Cannot delete category with subcategories. Please reassign or delete subcategories first.")
		return
	}
	blogs, err := h.categories.CountBlogs(r.Context(), c.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if blogs > 0 {
		writeFail(w, http.StatusBadRequest, "Cannot delete category with blogs. Please reassign or delete blogs first.")
		return
	}

	if err := h.categories.Delete(r.Context(), c.ID); err != nil {
		writeError(w, r, err)
		return
	}
	h.invalidate(r)
	w.WriteHeader(http.StatusNoContent)
}

// Reorder moves categories and sets their order in one transaction.
func (h *Categories) Reorder(w http.ResponseWriter, r *http.Request) {
	var items []store.ReorderItem
	if err := decodeJSON(w, r, &items); err != nil {
		writeError(w, r, err)
		return
	}
	if len(items) == 0 {
		writeFail(w, http.StatusBadRequest, "Please provide the categories to reorder")
		return
	}
	for _, item := range items {
		if item.ParentID != nil && *item.ParentID == item.ID {
			writeFail(w, http.StatusBadRequest, "Category cannot be its own parent")
			return
		}
	}

	if err := h.categories.Reorder(r.Context(), items); err != nil {
		writeError(w, r, err)
		return
	}
	h.invalidate(r)

	tree, err := h.categories.Tree(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, envelope{"categories": tree})
}
