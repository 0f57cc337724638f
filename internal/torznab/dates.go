// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package torznab

import (
	"strings"
	"time"

	"github.com/bcampbell/fuzzytime"
)

// DateLayout is the canonical publish date layout of SearchResult.
const DateLayout = "2006-01-02 15:04:05"

var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	DateLayout,
}

// NormalizeDate converts a feed date into DateLayout in UTC.
// It returns an empty string when no full date can be recovered.
func NormalizeDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Format(DateLayout)
		}
	}

	t, ok := parseFuzzyDate(raw)
	if !ok {
		return ""
	}
	return t.UTC().Format(DateLayout)
}

func parseFuzzyDate(raw string) (time.Time, bool) {
	dt, _, err := fuzzytime.USContext.Extract(raw)
	if err != nil || !dt.HasFullDate() {
		return time.Time{}, false
	}

	if dt.Time.Empty() {
		dt.Time.SetHour(0)
		dt.Time.SetMinute(0)
	}
	if !dt.Time.HasSecond() {
		dt.Time.SetSecond(0)
	}
	if !dt.HasTZOffset() {
		dt.Time.SetTZOffset(0)
	}

	t, err := time.Parse("2006-01-02T15:04:05Z07:00", dt.ISOFormat())
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
