package store

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"ajeyam/internal/apperr"
	"ajeyam/internal/models"
)

// ReviewStore manages book reviews.
type ReviewStore struct {
	db *sql.DB
}

// NewReviewStore returns a new ReviewStore.
func NewReviewStore(db *sql.DB) *ReviewStore {
	return &ReviewStore{db: db}
}

const reviewColumns = `r.id, r.title, r.book_author, r.cover_image, r.reviewer_id,
	ru.id, ru.name, ru.avatar, ru.bio, r.rating, r.summary, r.review,
	r.status, r.rejection_reason, r.published_at, r.created_at, r.updated_at`

func reviewBase(reviewers UserFilter) sq.SelectBuilder {
	return psql.Select(reviewColumns).
		From("book_reviews r").
		LeftJoin("users ru ON ru.id = r.reviewer_id AND " + reviewers.clause("ru"))
}

func scanReview(scanner interface{ Scan(...any) error }) (*models.BookReview, error) {
	var (
		r          models.BookReview
		reviewerID uuid.NullUUID
		name       sql.NullString
		avatar     sql.NullString
		bio        sql.NullString
	)
	err := scanner.Scan(
		&r.ID, &r.Title, &r.BookAuthor, &r.CoverImage, &r.ReviewerID,
		&reviewerID, &name, &avatar, &bio, &r.Rating, &r.Summary, &r.Review,
		&r.Status, &r.RejectionReason, &r.PublishedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if reviewerID.Valid {
		r.Reviewer = &models.Author{ID: reviewerID.UUID, Name: name.String, Avatar: avatar.String, Bio: bio.String}
	}
	return &r, nil
}

// FindByID retrieves a review. Returns nil if not found.
func (s *ReviewStore) FindByID(ctx context.Context, id uuid.UUID) (*models.BookReview, error) {
	query, args, err := reviewBase(ActiveUsers).Where(sq.Eq{"r.id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build review query: %w", err)
	}
	r, err := scanReview(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find review by id: %w", err)
	}
	return r, nil
}

// ReviewQuery filters a review listing. Empty fields do not filter.
type ReviewQuery struct {
	Statuses   []models.Status
	ReviewerID *uuid.UUID
	Limit      int
}

// List returns matching reviews, newest first.
func (s *ReviewStore) List(ctx context.Context, q ReviewQuery) ([]models.BookReview, error) {
	b := reviewBase(ActiveUsers).OrderBy("r.created_at DESC")
	if len(q.Statuses) > 0 {
		statuses := make([]string, len(q.Statuses))
		for i, st := range q.Statuses {
			statuses[i] = string(st)
		}
		b = b.Where(sq.Eq{"r.status": statuses})
	}
	if q.ReviewerID != nil {
		b = b.Where(sq.Eq{"r.reviewer_id": *q.ReviewerID})
	}
	if q.Limit > 0 {
		b = b.Limit(uint64(q.Limit))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build review list: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	reviews := []models.BookReview{}
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, *r)
	}
	return reviews, rows.Err()
}

// Create inserts a review with the moderation fields already decided by
// the caller and returns the stored row.
func (s *ReviewStore) Create(ctx context.Context, r *models.BookReview) (*models.BookReview, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO book_reviews
			(title, book_author, cover_image, reviewer_id, rating, summary, review,
			 status, rejection_reason, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, r.Title, r.BookAuthor, r.CoverImage, r.ReviewerID, r.Rating, r.Summary, r.Review,
		string(r.Status), r.RejectionReason, r.PublishedAt).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("create review: %w", err)
	}
	return s.FindByID(ctx, id)
}

// Update writes the editable fields and the moderation state of r.
func (s *ReviewStore) Update(ctx context.Context, r *models.BookReview) (*models.BookReview, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE book_reviews SET
			title = $1, book_author = $2, cover_image = $3, rating = $4, summary = $5,
			review = $6, status = $7, rejection_reason = $8, published_at = $9,
			updated_at = NOW()
		WHERE id = $10
	`, r.Title, r.BookAuthor, r.CoverImage, r.Rating, r.Summary, r.Review,
		string(r.Status), r.RejectionReason, r.PublishedAt, r.ID)
	if err != nil {
		return nil, fmt.Errorf("update review: %w", err)
	}
	return s.FindByID(ctx, r.ID)
}

// SetModeration persists only the moderation fields, provided the review
// is still in status from.
func (s *ReviewStore) SetModeration(ctx context.Context, id uuid.UUID, from models.Status, m models.Moderation) (*models.BookReview, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE book_reviews SET
			status = $1, rejection_reason = $2, published_at = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5
	`, string(m.Status), m.RejectionReason, m.PublishedAt, id, string(from))
	if err != nil {
		return nil, fmt.Errorf("set review moderation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("set review moderation: %w", err)
	}
	if n == 0 {
		return nil, apperr.InvalidState("Review status changed, please reload and try again")
	}
	return s.FindByID(ctx, id)
}

// Delete removes a review by ID.
func (s *ReviewStore) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM book_reviews WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	return nil
}

// recentReviewLimit is how many published reviews Stats returns.
const recentReviewLimit = 5

// Stats summarises the review catalogue. The average rating covers
// published reviews only.
func (s *ReviewStore) Stats(ctx context.Context) (*models.ReviewStats, error) {
	var st models.ReviewStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'published'),
			COUNT(*) FILTER (WHERE status = 'rejected'),
			COALESCE(AVG(rating) FILTER (WHERE status = 'published'), 0)::float8
		FROM book_reviews
	`).Scan(&st.Total, &st.Pending, &st.Published, &st.Rejected, &st.AverageRating)
	if err != nil {
		return nil, fmt.Errorf("review stats: %w", err)
	}
	st.TotalRatings = st.Published

	st.Recent, err = s.List(ctx, ReviewQuery{
		Statuses: []models.Status{models.StatusPublished},
		Limit:    recentReviewLimit,
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}
