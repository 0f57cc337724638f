// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package torznab

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/autobrr/indexbridge/internal/models"
)

var ErrNotArray = errors.New("response is not a json array")

// Release is one entry of the Prowlarr /api/v1/search response.
type Release struct {
	GUID        string          `json:"guid"`
	Title       string          `json:"title"`
	SortTitle   string          `json:"sortTitle"`
	Size        int64           `json:"size"`
	DownloadURL string          `json:"downloadUrl"`
	MagnetURL   string          `json:"magnetUrl"`
	InfoURL     string          `json:"infoUrl"`
	InfoHash    string          `json:"infoHash"`
	ImdbID      json.RawMessage `json:"imdbId"`
	Seeders     *int            `json:"seeders"`
	Leechers    *int            `json:"leechers"`
	PublishDate string          `json:"publishDate"`
	Indexer     string          `json:"indexer"`
	IndexerID   int             `json:"indexerId"`
	Protocol    string          `json:"protocol"`
}

func (r Release) result(origin string) models.SearchResult {
	downloadURL := strings.TrimSpace(r.DownloadURL)
	if downloadURL == "" {
		downloadURL = strings.TrimSpace(r.MagnetURL)
	}

	infoURL := strings.TrimSpace(r.InfoURL)
	if infoURL == "" {
		infoURL = strings.TrimSpace(r.GUID)
	}

	infoHash := strings.ToLower(strings.TrimSpace(r.InfoHash))
	if infoHash == "" {
		infoHash = MagnetInfoHash(r.MagnetURL)
	}

	result := models.SearchResult{
		Title:       strings.TrimSpace(r.Title),
		DownloadURL: downloadURL,
		Description: strings.TrimSpace(r.SortTitle),
		Size:        r.Size,
		PublishDate: NormalizeDate(r.PublishDate),
		InfoURL:     infoURL,
		ImdbID:      formatImdbID(rawScalar(r.ImdbID)),
		InfoHash:    infoHash,
		OriginTag:   origin,
	}
	if r.Seeders != nil {
		result.Seeders = *r.Seeders
	}
	if r.Leechers != nil {
		result.Peers = *r.Leechers
	}

	return result
}

// DecodeReleases decodes a Prowlarr search response. A body that is not a
// JSON array returns ErrNotArray.
func DecodeReleases(r io.Reader) ([]Release, error) {
	br := bufio.NewReader(r)
	if err := expectArray(br); err != nil {
		return nil, err
	}

	var releases []Release
	dec := json.NewDecoder(br)
	if err := dec.Decode(&releases); err != nil {
		return nil, fmt.Errorf("decode releases: %w", err)
	}

	return releases, nil
}

func expectArray(br *bufio.Reader) error {
	for {
		b, err := br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: empty body", ErrNotArray)
			}
			return err
		}
		if bytes.IndexByte([]byte(" \t\r\n"), b) >= 0 {
			continue
		}
		if err := br.UnreadByte(); err != nil {
			return err
		}
		if b != '[' {
			return fmt.Errorf("%w: starts with %q", ErrNotArray, string(b))
		}
		return nil
	}
}

// ParseReleases converts a Prowlarr search response into search results in
// response order. Entries are not filtered; use SearchResult.Valid.
func ParseReleases(r io.Reader, origin string) ([]models.SearchResult, error) {
	releases, err := DecodeReleases(r)
	if err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, 0, len(releases))
	for _, rel := range releases {
		results = append(results, rel.result(origin))
	}

	return results, nil
}

// rawScalar renders a JSON string or number as plain text. Prowlarr has
// sent imdbId both as an integer and as a "tt" prefixed string.
func rawScalar(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		return unquoted
	}
	return s
}
