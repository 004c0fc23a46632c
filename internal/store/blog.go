package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"ajeyam/internal/apperr"
	"ajeyam/internal/models"
)

// BlogStore manages blogs and their comment cascade.
type BlogStore struct {
	db *sql.DB
}

// NewBlogStore returns a new BlogStore.
func NewBlogStore(db *sql.DB) *BlogStore {
	return &BlogStore{db: db}
}

var blogSelectColumns = []string{
	"b.id", "b.title", "b.slug", "b.summary", "b.content", "b.cover_image",
	"b.category_id", "c.name", "c.slug",
	"COALESCE(array_to_json(b.tags), '[]'::json)::text",
	"b.read_time", "b.author_id", "au.id", "au.name", "au.avatar", "au.bio",
	"b.status", "b.rejection_reason", "b.published_at",
	"b.views", "b.likes_count", "b.comments_count", "b.is_featured",
	"b.created_at", "b.updated_at",
}

// blogBase selects blogs with their category and, when the filter lets the
// author through, their author card.
func blogBase(authors UserFilter) sq.SelectBuilder {
	return psql.Select(blogSelectColumns...).
		From("blogs b").
		Join("categories c ON c.id = b.category_id").
		LeftJoin("users au ON au.id = b.author_id AND " + authors.clause("au"))
}

func scanBlog(scanner interface{ Scan(...any) error }) (*models.Blog, error) {
	var (
		b          models.Blog
		cat        models.CategoryRef
		tagsJSON   string
		authorID   uuid.NullUUID
		authorName sql.NullString
		avatar     sql.NullString
		bio        sql.NullString
	)
	err := scanner.Scan(
		&b.ID, &b.Title, &b.Slug, &b.Summary, &b.Content, &b.CoverImage,
		&b.CategoryID, &cat.Name, &cat.Slug,
		&tagsJSON,
		&b.ReadTime, &b.AuthorID, &authorID, &authorName, &avatar, &bio,
		&b.Status, &b.RejectionReason, &b.PublishedAt,
		&b.Views, &b.LikesCount, &b.CommentsCount, &b.IsFeatured,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	cat.ID = b.CategoryID
	b.Category = &cat
	if authorID.Valid {
		b.Author = &models.Author{
			ID:     authorID.UUID,
			Name:   authorName.String,
			Avatar: avatar.String,
			Bio:    bio.String,
		}
	}
	if b.Tags, err = decodeTags([]byte(tagsJSON)); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *BlogStore) queryOne(ctx context.Context, op string, q sq.SelectBuilder) (*models.Blog, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", op, err)
	}
	b, err := scanBlog(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return b, nil
}

func (s *BlogStore) queryMany(ctx context.Context, op string, q sq.SelectBuilder) ([]models.Blog, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", op, err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	blogs := []models.Blog{}
	for rows.Next() {
		b, err := scanBlog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan blog: %w", err)
		}
		blogs = append(blogs, *b)
	}
	return blogs, rows.Err()
}

// FindByID retrieves a blog by ID. Returns nil if not found.
func (s *BlogStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Blog, error) {
	return s.queryOne(ctx, "find blog by id", blogBase(ActiveUsers).Where(sq.Eq{"b.id": id}))
}

// FindBySlug retrieves a blog by slug. Returns nil if not found.
func (s *BlogStore) FindBySlug(ctx context.Context, slug string) (*models.Blog, error) {
	return s.queryOne(ctx, "find blog by slug", blogBase(ActiveUsers).Where(sq.Eq{"b.slug": slug}))
}

// FindByIdentifier accepts either a UUID or a slug.
func (s *BlogStore) FindByIdentifier(ctx context.Context, ident string) (*models.Blog, error) {
	if id, err := uuid.Parse(ident); err == nil {
		return s.FindByID(ctx, id)
	}
	return s.FindBySlug(ctx, ident)
}

// IncrementViews bumps the view counter and returns the new value.
func (s *BlogStore) IncrementViews(ctx context.Context, id uuid.UUID) (int, error) {
	var views int
	err := s.db.QueryRowContext(ctx, `
		UPDATE blogs SET views = views + 1 WHERE id = $1 RETURNING views
	`, id).Scan(&views)
	if err != nil {
		return 0, fmt.Errorf("increment blog views: %w", err)
	}
	return views, nil
}

// BlogQuery describes a filtered, sorted, paginated blog listing.
type BlogQuery struct {
	Statuses    []models.Status
	CategoryIDs []uuid.UUID
	AuthorID    *uuid.UUID
	Tag         string
	Featured    bool
	Search      string
	SavedBy     *uuid.UUID
	ExcludeID   *uuid.UUID
	Sort        []SortField
	Page        Page
	Authors     UserFilter
}

// SortField is one ORDER BY term.
type SortField struct {
	Column string
	Desc   bool
}

// blogSortColumns maps public sort keys to columns.
var blogSortColumns = map[string]string{
	"publishedAt":   "b.published_at",
	"createdAt":     "b.created_at",
	"updatedAt":     "b.updated_at",
	"title":         "b.title",
	"views":         "b.views",
	"likesCount":    "b.likes_count",
	"commentsCount": "b.comments_count",
	"readTime":      "b.read_time",
}

// ParseBlogSort parses "-publishedAt,title" style sort expressions. Unknown
// keys are skipped; an empty result falls back to newest published first.
func ParseBlogSort(expr string) []SortField {
	var out []SortField
	for _, key := range strings.Split(expr, ",") {
		key = strings.TrimSpace(key)
		desc := strings.HasPrefix(key, "-")
		col, ok := blogSortColumns[strings.TrimPrefix(key, "-")]
		if !ok {
			continue
		}
		out = append(out, SortField{Column: col, Desc: desc})
	}
	if len(out) == 0 {
		out = []SortField{{Column: "b.published_at", Desc: true}}
	}
	return out
}

func (q BlogQuery) apply(b sq.SelectBuilder) sq.SelectBuilder {
	if len(q.Statuses) > 0 {
		statuses := make([]string, len(q.Statuses))
		for i, st := range q.Statuses {
			statuses[i] = string(st)
		}
		b = b.Where(sq.Eq{"b.status": statuses})
	}
	if len(q.CategoryIDs) > 0 {
		b = b.Where(sq.Eq{"b.category_id": q.CategoryIDs})
	}
	if q.AuthorID != nil {
		b = b.Where(sq.Eq{"b.author_id": *q.AuthorID})
	}
	if q.Tag != "" {
		b = b.Where(sq.Expr("? = ANY(b.tags)", q.Tag))
	}
	if q.Featured {
		b = b.Where(sq.Eq{"b.is_featured": true})
	}
	if q.Search != "" {
		pattern := "%" + escapeLike(q.Search) + "%"
		b = b.Where(sq.Or{
			sq.ILike{"b.title": pattern},
			sq.ILike{"b.summary": pattern},
			sq.ILike{"b.content": pattern},
			sq.Expr("array_to_string(b.tags, ' ') ILIKE ?", pattern),
		})
	}
	if q.SavedBy != nil {
		b = b.Where(sq.Expr("EXISTS (SELECT 1 FROM user_saved_blogs sb WHERE sb.blog_id = b.id AND sb.user_id = ?)", *q.SavedBy))
	}
	if q.ExcludeID != nil {
		b = b.Where(sq.NotEq{"b.id": *q.ExcludeID})
	}
	return b
}

// List returns one page of blogs matching q and the total match count.
func (s *BlogStore) List(ctx context.Context, q BlogQuery) ([]models.Blog, int, error) {
	countQuery, countArgs, err := q.apply(psql.Select("COUNT(*)").From("blogs b")).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count blogs: %w", err)
	}
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count blogs: %w", err)
	}

	sel := q.apply(blogBase(q.Authors))
	sort := q.Sort
	if len(sort) == 0 {
		sort = ParseBlogSort("")
	}
	for _, f := range sort {
		dir := "ASC NULLS FIRST"
		if f.Desc {
			dir = "DESC NULLS LAST"
		}
		sel = sel.OrderBy(f.Column + " " + dir)
	}
	sel = sel.OrderBy("b.created_at DESC")
	if q.Page.Limit > 0 {
		sel = sel.Limit(uint64(q.Page.Limit)).Offset(uint64(q.Page.Offset()))
	}

	blogs, err := s.queryMany(ctx, "list blogs", sel)
	if err != nil {
		return nil, 0, err
	}
	return blogs, total, nil
}

// Related returns published blogs sharing b's category or any of its tags,
// most liked first.
func (s *BlogStore) Related(ctx context.Context, b *models.Blog, limit int) ([]models.Blog, error) {
	related := sq.Or{sq.Eq{"b.category_id": b.CategoryID}}
	if len(b.Tags) > 0 {
		related = append(related, sq.Expr("b.tags && ?", b.Tags))
	}
	sel := blogBase(ActiveUsers).
		Where(sq.Eq{"b.status": string(models.StatusPublished)}).
		Where(sq.NotEq{"b.id": b.ID}).
		Where(related).
		OrderBy("b.likes_count DESC", "b.published_at DESC NULLS LAST").
		Limit(uint64(limit))
	return s.queryMany(ctx, "list related blogs", sel)
}

// CountByAuthor returns the number of blogs a user has written, in any status.
func (s *BlogStore) CountByAuthor(ctx context.Context, authorID uuid.UUID) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM blogs WHERE author_id = $1`, authorID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count blogs by author: %w", err)
	}
	return n, nil
}

// Create inserts a new blog. A duplicate slug returns a ConflictError.
func (s *BlogStore) Create(ctx context.Context, b *models.Blog) (*models.Blog, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO blogs (
			title, slug, summary, content, cover_image, category_id, tags, read_time,
			author_id, status, rejection_reason, published_at, is_featured
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`,
		b.Title, b.Slug, b.Summary, b.Content, b.CoverImage, b.CategoryID, tagArray(b.Tags), b.ReadTime,
		b.AuthorID, string(b.Status), b.RejectionReason, b.PublishedAt, b.IsFeatured,
	).Scan(&id)
	if err != nil {
		return nil, conflictOr(err, "create blog", "A blog with this slug already exists")
	}
	return s.FindByID(ctx, id)
}

// Update writes every editable field and the moderation state of b.
func (s *BlogStore) Update(ctx context.Context, b *models.Blog) (*models.Blog, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE blogs SET
			title = $1, slug = $2, summary = $3, content = $4, cover_image = $5,
			category_id = $6, tags = $7, read_time = $8, is_featured = $9,
			status = $10, rejection_reason = $11, published_at = $12,
			updated_at = NOW()
		WHERE id = $13
	`,
		b.Title, b.Slug, b.Summary, b.Content, b.CoverImage,
		b.CategoryID, tagArray(b.Tags), b.ReadTime, b.IsFeatured,
		string(b.Status), b.RejectionReason, b.PublishedAt,
		b.ID,
	)
	if err != nil {
		return nil, conflictOr(err, "update blog", "A blog with this slug already exists")
	}
	return s.FindByID(ctx, b.ID)
}

// SetModeration stores a moderation outcome decided against status from.
// The write is refused with an invalid state error when another request
// moved the blog off from in the meantime.
func (s *BlogStore) SetModeration(ctx context.Context, id uuid.UUID, from models.Status, m models.Moderation) (*models.Blog, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE blogs SET status = $1, rejection_reason = $2, published_at = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5
	`, string(m.Status), m.RejectionReason, m.PublishedAt, id, string(from))
	if err != nil {
		return nil, fmt.Errorf("set blog moderation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("set blog moderation: %w", err)
	}
	if n == 0 {
		return nil, apperr.InvalidState("Blog status changed, please reload and try again")
	}
	return s.FindByID(ctx, id)
}

// Delete removes a blog together with all of its comments. Likes and saves
// go with the blog through their foreign keys.
func (s *BlogStore) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE blog_id = $1`, id); err != nil {
		return fmt.Errorf("delete blog comments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM blogs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete blog: %w", err)
	}
	return tx.Commit()
}

// IsLikedBy reports whether userID has liked the blog.
func (s *BlogStore) IsLikedBy(ctx context.Context, blogID, userID uuid.UUID) (bool, error) {
	var liked bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM blog_likes WHERE blog_id = $1 AND user_id = $2)
	`, blogID, userID).Scan(&liked)
	if err != nil {
		return false, fmt.Errorf("check blog like: %w", err)
	}
	return liked, nil
}

// tagArray keeps a nil slice from being written as NULL.
func tagArray(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// escapeLike escapes LIKE wildcards in user input.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
