// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package torznab

import (
	"strconv"
	"strings"
)

// Torznab standard category IDs
const (
	CategoryMovies = 2000
	CategoryTV     = 5000
)

// MediaKind is the media type a search is restricted to.
type MediaKind string

const (
	KindUnknown MediaKind = ""
	KindMovie   MediaKind = "movie"
	KindTV      MediaKind = "tv"
)

// ParseMediaKind maps user input to a MediaKind. Unrecognised values map to KindUnknown.
func ParseMediaKind(s string) MediaKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "movie", "movies":
		return KindMovie
	case "tv", "series", "show":
		return KindTV
	default:
		return KindUnknown
	}
}

// CategoriesFor returns the Torznab categories searched for kind.
// Unknown kinds search both movies and TV.
func CategoriesFor(kind MediaKind) []int {
	switch kind {
	case KindMovie:
		return []int{CategoryMovies}
	case KindTV:
		return []int{CategoryTV}
	default:
		return []int{CategoryMovies, CategoryTV}
	}
}

// JoinCategories renders categories as the comma separated "cat" parameter.
func JoinCategories(categories []int) string {
	parts := make([]string, 0, len(categories))
	for _, c := range categories {
		parts = append(parts, strconv.Itoa(c))
	}
	return strings.Join(parts, ",")
}
