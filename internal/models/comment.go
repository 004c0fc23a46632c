package models

import (
	"time"

	"github.com/google/uuid"
)

// DeletedCommentText replaces the content of a soft-deleted comment.
const DeletedCommentText = "This comment has been deleted"

// Comment is a threaded remark on a blog. ParentID is nil for roots.
type Comment struct {
	ID         uuid.UUID  `json:"id"`
	Content    string     `json:"content"`
	BlogID     uuid.UUID  `json:"blogId"`
	UserID     uuid.UUID  `json:"userId"`
	User       *Author    `json:"user"`
	ParentID   *uuid.UUID `json:"parentComment"`
	LikesCount int        `json:"likesCount"`
	IsEdited   bool       `json:"isEdited"`
	IsDeleted  bool       `json:"isDeleted"`
	DeletedAt  *time.Time `json:"deletedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`

	// Replies is populated for root comments in thread listings.
	Replies []Comment `json:"replies,omitempty"`
}

// IsRoot reports whether the comment starts a thread.
func (c *Comment) IsRoot() bool {
	return c.ParentID == nil
}
