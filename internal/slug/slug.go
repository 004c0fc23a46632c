// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package slug provides URL-friendly slug generation from arbitrary strings.
package slug

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	// nonAlphanumeric matches anything that isn't a letter, digit, space or hyphen.
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9\s-]`)
	// multipleHyphens collapses consecutive hyphens into one.
	multipleHyphens = regexp.MustCompile(`-{2,}`)
)

// Generate creates a URL-friendly slug from the given string.
// Example: "Battle of Plassey, 1757" → "battle-of-plassey-1757"
func Generate(s string) string {
	result := strings.ToLower(s)
	result = nonAlphanumeric.ReplaceAllString(result, "")
	result = strings.Join(strings.Fields(result), "-")
	result = multipleHyphens.ReplaceAllString(result, "-")
	return strings.Trim(result, "-")
}

// suffixModulus keeps the last six digits of the millisecond clock.
const suffixModulus = 1_000_000

// Unique returns Generate(s) followed by a six-digit suffix taken from t,
// so two blogs with the same title still get distinct slugs.
func Unique(s string, t time.Time) string {
	base := Generate(s)
	suffix := fmt.Sprintf("%06d", t.UnixMilli()%suffixModulus)
	if base == "" {
		return suffix
	}
	return base + "-" + suffix
}
