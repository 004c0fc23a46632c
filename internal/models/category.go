// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"time"

	"github.com/google/uuid"
)

// Category groups blogs by historical period or theme. Categories nest one
// level deep in practice but the schema allows any depth.
type Category struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Slug        string     `json:"slug"`
	Description string     `json:"description"`
	ImageURL    string     `json:"imageUrl"`
	ParentID    *uuid.UUID `json:"parentCategory"`
	SortOrder   int        `json:"order"`
	IsActive    bool       `json:"isActive"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`

	// Virtual fields populated by store methods.
	Children  []Category `json:"subcategories,omitempty"`
	Depth     int        `json:"depth"`
	BlogCount int        `json:"blogsCount"`
}
