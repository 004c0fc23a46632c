package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"ajeyam/internal/models"
)

// CommentStore manages threaded comments and the blog comment counter.
type CommentStore struct {
	db *sql.DB
}

// NewCommentStore returns a new CommentStore.
func NewCommentStore(db *sql.DB) *CommentStore {
	return &CommentStore{db: db}
}

const commentColumns = `cm.id, cm.content, cm.blog_id, cm.user_id, cu.id, cu.name, cu.avatar,
	cm.parent_id, cm.likes_count, cm.is_edited, cm.is_deleted, cm.deleted_at,
	cm.created_at, cm.updated_at`

// commentFrom joins the comment author when the account is active.
const commentFrom = ` FROM comments cm LEFT JOIN users cu ON cu.id = cm.user_id AND cu.active `

func scanComment(scanner interface{ Scan(...any) error }) (*models.Comment, error) {
	var (
		c        models.Comment
		authorID uuid.NullUUID
		name     sql.NullString
		avatar   sql.NullString
	)
	err := scanner.Scan(
		&c.ID, &c.Content, &c.BlogID, &c.UserID, &authorID, &name, &avatar,
		&c.ParentID, &c.LikesCount, &c.IsEdited, &c.IsDeleted, &c.DeletedAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if authorID.Valid {
		c.User = &models.Author{ID: authorID.UUID, Name: name.String, Avatar: avatar.String}
	}
	return &c, nil
}

func (s *CommentStore) queryMany(ctx context.Context, op, where string, args ...any) ([]models.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+commentColumns+commentFrom+where, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, *c)
	}
	return comments, rows.Err()
}

// FindByID retrieves a comment, deleted or not. Returns nil if not found.
func (s *CommentStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Comment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+commentColumns+commentFrom+`WHERE cm.id = $1`, id)
	c, err := scanComment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find comment by id: %w", err)
	}
	return c, nil
}

// ListForBlog returns the blog's threads: roots newest first, each with its
// live replies oldest first. Deleted roots are kept as tombstones only while
// they still have live replies.
func (s *CommentStore) ListForBlog(ctx context.Context, blogID uuid.UUID) ([]models.Comment, error) {
	roots, err := s.queryMany(ctx, "list root comments", `
		WHERE cm.blog_id = $1 AND cm.parent_id IS NULL
		  AND (NOT cm.is_deleted OR EXISTS (
			SELECT 1 FROM comments r WHERE r.parent_id = cm.id AND NOT r.is_deleted))
		ORDER BY cm.created_at DESC
	`, blogID)
	if err != nil {
		return nil, err
	}

	replies, err := s.queryMany(ctx, "list replies", `
		WHERE cm.blog_id = $1 AND cm.parent_id IS NOT NULL AND NOT cm.is_deleted
		ORDER BY cm.created_at ASC
	`, blogID)
	if err != nil {
		return nil, err
	}

	byParent := make(map[uuid.UUID][]models.Comment)
	for _, r := range replies {
		byParent[*r.ParentID] = append(byParent[*r.ParentID], r)
	}
	for i := range roots {
		roots[i].Replies = byParent[roots[i].ID]
	}
	return roots, nil
}

// ListReplies returns the live direct replies of a comment, oldest first.
func (s *CommentStore) ListReplies(ctx context.Context, parentID uuid.UUID) ([]models.Comment, error) {
	return s.queryMany(ctx, "list comment replies", `
		WHERE cm.parent_id = $1 AND NOT cm.is_deleted
		ORDER BY cm.created_at ASC
	`, parentID)
}

// Create inserts a comment and refreshes the blog's comment count.
func (s *CommentStore) Create(ctx context.Context, c *models.Comment) (*models.Comment, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO comments (content, blog_id, user_id, parent_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, c.Content, c.BlogID, c.UserID, c.ParentID).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}

	s.refreshBlogCount(ctx, c.BlogID)
	return s.FindByID(ctx, id)
}

// UpdateContent replaces the text of a live comment and marks it edited.
func (s *CommentStore) UpdateContent(ctx context.Context, id uuid.UUID, content string) (*models.Comment, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE comments SET content = $1, is_edited = TRUE, updated_at = NOW()
		WHERE id = $2 AND NOT is_deleted
	`, content, id)
	if err != nil {
		return nil, fmt.Errorf("update comment: %w", err)
	}
	return s.FindByID(ctx, id)
}

// SoftDelete replaces the comment text with the tombstone and refreshes
// the blog's comment count. Replies are untouched.
func (s *CommentStore) SoftDelete(ctx context.Context, c *models.Comment) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE comments SET
			content = $1, is_deleted = TRUE, deleted_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND NOT is_deleted
	`, models.DeletedCommentText, c.ID)
	if err != nil {
		return fmt.Errorf("soft delete comment: %w", err)
	}

	s.refreshBlogCount(ctx, c.BlogID)
	return nil
}

// RecountForBlog sets blogs.comments_count to the number of live comments
// and returns it.
func (s *CommentStore) RecountForBlog(ctx context.Context, blogID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		UPDATE blogs SET comments_count = (
			SELECT COUNT(*) FROM comments WHERE blog_id = $1 AND NOT is_deleted
		)
		WHERE id = $1
		RETURNING comments_count
	`, blogID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("recount blog comments: %w", err)
	}
	return n, nil
}

// refreshBlogCount recounts after a comment mutation. The comment write has
// already happened, so a failure here is logged rather than returned.
func (s *CommentStore) refreshBlogCount(ctx context.Context, blogID uuid.UUID) {
	n, err := s.RecountForBlog(ctx, blogID)
	if err != nil {
		slog.Warn("failed to refresh blog comment count", "blog_id", blogID, "error", err)
		return
	}
	slog.Debug("blog comment count refreshed", "blog_id", blogID, "count", n)
}
