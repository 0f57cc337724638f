// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"errors"
	"strings"
)

var ErrInvalidIdentity = errors.New("invalid indexer identity")

// IndexerIdentity is one remote indexer as exposed to the site registry.
type IndexerIdentity struct {
	// ID is the manager scoped identifier, e.g. "Prowlarr-12".
	ID string `json:"id"`
	// Name is the display name "{Manager}-{nativeName}".
	Name     string `json:"name"`
	NativeID string `json:"nativeId"`
	// Domain is the synthetic registry key, e.g. "jackett.1337x".
	Domain   string `json:"domain"`
	URL      string `json:"url"`
	Manager  string `json:"manager"`
	Public   bool   `json:"public"`
	Proxy    bool   `json:"proxy"`
	Language string `json:"language"`
	Result   bool   `json:"result"`
}

// ManagerPrefix returns the part of Name before the first dash.
func (i IndexerIdentity) ManagerPrefix() string {
	prefix, _, _ := strings.Cut(i.Name, "-")
	return prefix
}

// Validate checks the fields every registered identity needs.
func (i IndexerIdentity) Validate() error {
	switch {
	case strings.TrimSpace(i.Domain) == "":
		return errors.Join(ErrInvalidIdentity, errors.New("domain is required"))
	case strings.TrimSpace(i.Name) == "":
		return errors.Join(ErrInvalidIdentity, errors.New("name is required"))
	case strings.TrimSpace(i.URL) == "":
		return errors.Join(ErrInvalidIdentity, errors.New("url is required"))
	}
	return nil
}

// SearchResult is the canonical torrent record produced from both the
// Torznab XML and the Prowlarr JSON response formats.
type SearchResult struct {
	// Indexer is the display name of the identity that was searched
	Indexer     string `json:"indexer"`
	Title       string `json:"title"`
	DownloadURL string `json:"downloadUrl"`
	Description string `json:"description,omitempty"`
	Size        int64  `json:"size"`
	Seeders     int    `json:"seeders"`
	Peers       int    `json:"peers"`
	// PublishDate uses the "2006-01-02 15:04:05" layout in UTC, or is empty
	PublishDate string `json:"publishDate,omitempty"`
	InfoURL     string `json:"infoUrl,omitempty"`
	ImdbID      string `json:"imdbId,omitempty"`
	InfoHash    string `json:"infoHash,omitempty"`
	// OriginTag marks which bridge produced the result. It is constant per manager.
	OriginTag string `json:"originTag"`

	Resolution string `json:"resolution,omitempty"`
	Source     string `json:"source,omitempty"`
	Group      string `json:"group,omitempty"`
	Year       int    `json:"year,omitempty"`
}

// Valid reports whether the result can be downloaded.
func (r SearchResult) Valid() bool {
	return strings.TrimSpace(r.Title) != "" && strings.TrimSpace(r.DownloadURL) != ""
}
