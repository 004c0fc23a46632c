package handlers

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// Field limits for user input.
const (
	minNameLen        = 3
	maxNameLen        = 50
	maxBioLen         = 250
	minPasswordLen    = 6
	minBlogTitleLen   = 10
	maxBlogTitleLen   = 100
	minBlogSummaryLen = 50
	maxBlogSummaryLen = 300
	minBlogContentLen = 500
	maxTagLen         = 50
	maxTags           = 20
	minCommentLen     = 2
	maxCommentLen     = 1000
	maxReviewTitleLen = 200
	maxReviewTextLen  = 20_000
	maxCategoryName   = 50
	maxCategoryDesc   = 500
	maxReasonLen      = 500
)

var formats = validator.New()

func isEmail(s string) bool { return formats.Var(s, "required,email") == nil }

func isURL(s string) bool { return formats.Var(s, "required,url") == nil }

func runes(s string) int { return utf8.RuneCountInString(s) }

// validateName checks a display name and returns the first problem found.
func validateName(name string) string {
	n := runes(strings.TrimSpace(name))
	switch {
	case n == 0:
		return "Please provide your name"
	case n < minNameLen:
		return fmt.Sprintf("Name must be at least %d characters long", minNameLen)
	case n > maxNameLen:
		return fmt.Sprintf("Name cannot exceed %d characters", maxNameLen)
	}
	return ""
}

func validateEmail(email string) string {
	if strings.TrimSpace(email) == "" {
		return "Please provide your email"
	}
	if !isEmail(strings.TrimSpace(email)) {
		return "Please provide a valid email"
	}
	return ""
}

func validatePassword(password, confirm string) string {
	if runes(password) < minPasswordLen {
		return fmt.Sprintf("Password must be at least %d characters long", minPasswordLen)
	}
	if password != confirm {
		return "Passwords do not match"
	}
	return ""
}

func validateBio(bio string) string {
	if runes(strings.TrimSpace(bio)) > maxBioLen {
		return fmt.Sprintf("Bio cannot exceed %d characters", maxBioLen)
	}
	return ""
}

// validateAvatar accepts an empty value (keep the generated avatar) or a URL.
func validateAvatar(avatar string) string {
	if avatar = strings.TrimSpace(avatar); avatar != "" && !isURL(avatar) {
		return "Avatar must be a valid URL"
	}
	return ""
}

// blogFields are the author-editable blog fields after trimming.
type blogFields struct {
	Title      string
	Summary    string
	Content    string
	CoverImage string
	Tags       []string
}

func validateBlog(f blogFields) string {
	switch n := runes(f.Title); {
	case n == 0:
		return "A blog must have a title"
	case n < minBlogTitleLen:
		return fmt.Sprintf("Blog title must be at least %d characters long", minBlogTitleLen)
	case n > maxBlogTitleLen:
		return fmt.Sprintf("Blog title cannot exceed %d characters", maxBlogTitleLen)
	}
	switch n := runes(f.Summary); {
	case n == 0:
		return "Please provide a blog summary"
	case n < minBlogSummaryLen:
		return fmt.Sprintf("Summary must be at least %d characters long", minBlogSummaryLen)
	case n > maxBlogSummaryLen:
		return fmt.Sprintf("Summary cannot exceed %d characters", maxBlogSummaryLen)
	}
	switch n := runes(f.Content); {
	case n == 0:
		return "Please provide blog content"
	case n < minBlogContentLen:
		return fmt.Sprintf("Blog content must be at least %d characters long", minBlogContentLen)
	}
	if f.CoverImage == "" {
		return "A blog must have a cover image"
	}
	if !isURL(f.CoverImage) {
		return "Cover image must be a valid URL"
	}
	if len(f.Tags) > maxTags {
		return fmt.Sprintf("A blog can have at most %d tags", maxTags)
	}
	for _, t := range f.Tags {
		if runes(t) > maxTagLen {
			return fmt.Sprintf("Tags cannot exceed %d characters", maxTagLen)
		}
	}
	return ""
}

func validateComment(content string) string {
	switch n := runes(strings.TrimSpace(content)); {
	case n == 0:
		return "Comment cannot be empty"
	case n < minCommentLen:
		return fmt.Sprintf("Comment must be at least %d characters long", minCommentLen)
	case n > maxCommentLen:
		return fmt.Sprintf("Comment cannot exceed %d characters", maxCommentLen)
	}
	return ""
}

// reviewFields are the reviewer-editable review fields after trimming.
type reviewFields struct {
	Title      string
	BookAuthor string
	CoverImage string
	Rating     int
	Summary    string
	Review     string
}

func validateReview(f reviewFields) string {
	if f.Title == "" || f.BookAuthor == "" || f.Review == "" {
		return "Please provide title, bookAuthor, rating and review"
	}
	if runes(f.Title) > maxReviewTitleLen || runes(f.BookAuthor) > maxReviewTitleLen {
		return fmt.Sprintf("Title and book author cannot exceed %d characters", maxReviewTitleLen)
	}
	if f.Rating < 1 || f.Rating > 5 {
		return "Rating must be between 1 and 5"
	}
	if runes(f.Review) > maxReviewTextLen {
		return "Review is too long"
	}
	if runes(f.Summary) > maxBlogSummaryLen {
		return fmt.Sprintf("Summary cannot exceed %d characters", maxBlogSummaryLen)
	}
	if f.CoverImage != "" && !isURL(f.CoverImage) {
		return "Cover image must be a valid URL"
	}
	return ""
}

func validateCategory(name, description, image string) string {
	switch n := runes(name); {
	case n == 0:
		return "A category must have a name"
	case n > maxCategoryName:
		return fmt.Sprintf("Category name cannot exceed %d characters", maxCategoryName)
	}
	switch n := runes(description); {
	case n == 0:
		return "Please provide a category description"
	case n > maxCategoryDesc:
		return fmt.Sprintf("Description cannot exceed %d characters", maxCategoryDesc)
	}
	if image != "" && !isURL(image) {
		return "Image must be a valid URL"
	}
	return ""
}

func validateReason(reason string) string {
	if runes(reason) > maxReasonLen {
		return fmt.Sprintf("Rejection reason cannot exceed %d characters", maxReasonLen)
	}
	return ""
}

// trimAll trims every string in ss in place.
func trimAll(ss ...*string) {
	for _, s := range ss {
		*s = strings.TrimSpace(*s)
	}
}
