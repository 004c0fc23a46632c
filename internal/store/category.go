// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"ajeyam/internal/models"
)

// CategoryStore manages categories in the database.
type CategoryStore struct {
	db *sql.DB
}

// NewCategoryStore returns a new CategoryStore.
func NewCategoryStore(db *sql.DB) *CategoryStore {
	return &CategoryStore{db: db}
}

const categoryColumns = `c.id, c.name, c.slug, c.description, c.image_url, c.parent_id,
	c.sort_order, c.is_active, c.created_at, c.updated_at,
	(SELECT COUNT(*) FROM blogs b WHERE b.category_id = c.id) AS blog_count`

// scanCategory scans a row selected with categoryColumns.
func scanCategory(scanner interface{ Scan(...any) error }) (*models.Category, error) {
	var c models.Category
	err := scanner.Scan(
		&c.ID, &c.Name, &c.Slug, &c.Description, &c.ImageURL, &c.ParentID,
		&c.SortOrder, &c.IsActive, &c.CreatedAt, &c.UpdatedAt, &c.BlogCount,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CategoryFilter narrows a category listing. The zero value lists active
// categories at every level.
type CategoryFilter struct {
	IncludeInactive bool
	RootsOnly       bool
	ParentID        *uuid.UUID
}

// List returns categories ordered by sort_order then name, with blog counts.
func (s *CategoryStore) List(ctx context.Context, f CategoryFilter) ([]models.Category, error) {
	q := psql.Select(categoryColumns).From("categories c").OrderBy("c.sort_order", "c.name")
	if !f.IncludeInactive {
		q = q.Where("c.is_active")
	}
	switch {
	case f.RootsOnly:
		q = q.Where("c.parent_id IS NULL")
	case f.ParentID != nil:
		q = q.Where(sq.Eq{"c.parent_id": *f.ParentID})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build category list: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	items := []models.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		items = append(items, *c)
	}
	return items, rows.Err()
}

// Tree returns the active categories as a nested tree, top level first.
func (s *CategoryStore) Tree(ctx context.Context) ([]models.Category, error) {
	flat, err := s.List(ctx, CategoryFilter{})
	if err != nil {
		return nil, err
	}
	return buildTree(flat, nil, 0), nil
}

// buildTree recursively builds a tree from a flat list. A child whose
// parent is missing from flat (an inactive parent) is dropped.
func buildTree(flat []models.Category, parentID *uuid.UUID, depth int) []models.Category {
	result := []models.Category{}
	for _, c := range flat {
		if ptrEqual(c.ParentID, parentID) {
			c.Depth = depth
			c.Children = buildTree(flat, &c.ID, depth+1)
			result = append(result, c)
		}
	}
	return result
}

// ptrEqual compares two *uuid.UUID for equality (both nil or same value).
func ptrEqual(a, b *uuid.UUID) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func (s *CategoryStore) findOne(ctx context.Context, op, where string, arg any) (*models.Category, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories c WHERE `+where, arg)
	c, err := scanCategory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

// FindByID retrieves a category by ID. Returns nil if not found.
func (s *CategoryStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	return s.findOne(ctx, "find category by id", "c.id = $1", id)
}

// FindBySlug retrieves a category by slug. Returns nil if not found.
func (s *CategoryStore) FindBySlug(ctx context.Context, slug string) (*models.Category, error) {
	return s.findOne(ctx, "find category by slug", "c.slug = $1", slug)
}

// FindByIdentifier accepts either a UUID or a slug and loads the direct
// subcategories. Inactive subcategories are included only when
// includeInactive is set.
func (s *CategoryStore) FindByIdentifier(ctx context.Context, identifier string, includeInactive bool) (*models.Category, error) {
	var (
		c   *models.Category
		err error
	)
	if id, perr := uuid.Parse(identifier); perr == nil {
		c, err = s.FindByID(ctx, id)
	} else {
		c, err = s.FindBySlug(ctx, identifier)
	}
	if err != nil || c == nil {
		return nil, err
	}

	children, err := s.List(ctx, CategoryFilter{IncludeInactive: includeInactive, ParentID: &c.ID})
	if err != nil {
		return nil, err
	}
	c.Children = children
	return c, nil
}

// Create inserts a new category and returns it.
func (s *CategoryStore) Create(ctx context.Context, c *models.Category) (*models.Category, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO categories (name, slug, description, image_url, parent_id, sort_order, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, c.Name, c.Slug, c.Description, c.ImageURL, c.ParentID, c.SortOrder, c.IsActive).Scan(&id)
	if err != nil {
		return nil, conflictOr(err, "create category", "A category with this name already exists")
	}
	return s.FindByID(ctx, id)
}

// Update writes every editable column of c and returns the stored row.
func (s *CategoryStore) Update(ctx context.Context, c *models.Category) (*models.Category, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE categories SET
			name = $1, slug = $2, description = $3, image_url = $4, parent_id = $5,
			sort_order = $6, is_active = $7, updated_at = NOW()
		WHERE id = $8
	`, c.Name, c.Slug, c.Description, c.ImageURL, c.ParentID, c.SortOrder, c.IsActive, c.ID)
	if err != nil {
		return nil, conflictOr(err, "update category", "A category with this name already exists")
	}
	return s.FindByID(ctx, c.ID)
}

// Delete removes a category by ID. Callers check CountChildren and
// CountBlogs first; the foreign keys restrict the delete either way.
func (s *CategoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}

// CountChildren returns the number of direct subcategories.
func (s *CategoryStore) CountChildren(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories WHERE parent_id = $1`, id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count subcategories: %w", err)
	}
	return n, nil
}

// CountBlogs returns the number of blogs in the category, any status.
func (s *CategoryStore) CountBlogs(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blogs WHERE category_id = $1`, id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count category blogs: %w", err)
	}
	return n, nil
}

// ReorderItem represents a single item in a reorder request.
type ReorderItem struct {
	ID       uuid.UUID  `json:"id"`
	ParentID *uuid.UUID `json:"parentCategory"`
	Order    int        `json:"order"`
}

// Reorder updates sort_order and parent_id for multiple categories in a transaction.
func (s *CategoryStore) Reorder(ctx context.Context, items []ReorderItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE categories SET parent_id = $1, sort_order = $2, updated_at = $3
		WHERE id = $4`)
	if err != nil {
		return fmt.Errorf("prepare reorder: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, item := range items {
		if _, err := stmt.ExecContext(ctx, item.ParentID, item.Order, now, item.ID); err != nil {
			return fmt.Errorf("reorder category %s: %w", item.ID, err)
		}
	}

	return tx.Commit()
}

// NextSortOrder returns the next sort_order value for a given parent.
func (s *CategoryStore) NextSortOrder(ctx context.Context, parentID *uuid.UUID) (int, error) {
	var maxOrder sql.NullInt64
	var err error
	if parentID == nil {
		err = s.db.QueryRowContext(ctx, `SELECT MAX(sort_order) FROM categories WHERE parent_id IS NULL`).Scan(&maxOrder)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT MAX(sort_order) FROM categories WHERE parent_id = $1`, *parentID).Scan(&maxOrder)
	}
	if err != nil {
		return 0, fmt.Errorf("next sort order: %w", err)
	}
	if maxOrder.Valid {
		return int(maxOrder.Int64) + 1, nil
	}
	return 0, nil
}
