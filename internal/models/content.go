package models

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the moderation state of a blog or book review.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusRejected  Status = "rejected"
)

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusPublished, StatusRejected:
		return true
	}
	return false
}

// Moderation holds the fields every moderated entity carries.
type Moderation struct {
	Status          Status     `json:"status"`
	RejectionReason *string    `json:"rejectionReason,omitempty"`
	PublishedAt     *time.Time `json:"publishedAt,omitempty"`
}

// Blog is a long-form article authored by a user.
type Blog struct {
	ID         uuid.UUID    `json:"id"`
	Title      string       `json:"title"`
	Slug       string       `json:"slug"`
	Summary    string       `json:"summary"`
	Content    string       `json:"content"`
	CoverImage string       `json:"coverImage"`
	CategoryID uuid.UUID    `json:"categoryId"`
	Category   *CategoryRef `json:"category,omitempty"`
	Tags       []string     `json:"tags"`
	ReadTime   int          `json:"readTime"`
	AuthorID   uuid.UUID    `json:"authorId"`
	Author     *Author      `json:"author"` // nil when the author is inactive
	Moderation
	Views         int       `json:"views"`
	LikesCount    int       `json:"likesCount"`
	CommentsCount int       `json:"commentsCount"`
	IsFeatured    bool      `json:"isFeatured"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// CategoryRef is the category summary embedded in a blog.
type CategoryRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Slug string    `json:"slug"`
}

// wordsPerMinute is the reading speed used for ReadTime.
const wordsPerMinute = 200

// ReadTimeFor estimates reading time in whole minutes, at least one.
func ReadTimeFor(content string) int {
	words := len(strings.Fields(content))
	minutes := int(math.Ceil(float64(words) / wordsPerMinute))
	if minutes < 1 {
		return 1
	}
	return minutes
}

// NormalizeTags trims tags and drops blanks and duplicates, keeping order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// BookReview is a user's review of a book. Reviews have no draft state.
type BookReview struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	BookAuthor string    `json:"bookAuthor"`
	CoverImage string    `json:"coverImage"`
	ReviewerID uuid.UUID `json:"reviewerId"`
	Reviewer   *Author   `json:"reviewer"`
	Rating     int       `json:"rating"`
	Summary    string    `json:"summary"`
	Review     string    `json:"review"`
	Moderation
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ReviewStats summarises the review catalogue for the admin dashboard.
type ReviewStats struct {
	Total         int          `json:"total"`
	Pending       int          `json:"pending"`
	Published     int          `json:"published"`
	Rejected      int          `json:"rejected"`
	AverageRating float64      `json:"avgRating"`
	TotalRatings  int          `json:"totalRatings"`
	Recent        []BookReview `json:"recentReviews"`
}
