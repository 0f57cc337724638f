// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package torznab

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html/charset"

	"github.com/autobrr/indexbridge/internal/models"
)

var ErrNoFeed = errors.New("response is not a torznab feed")

// FeedError is the <error code="" description=""/> document Torznab
// endpoints return instead of a feed.
type FeedError struct {
	Code        string `xml:"code,attr"`
	Description string `xml:"description,attr"`
}

func (e *FeedError) Error() string {
	return fmt.Sprintf("torznab error %s: %s", e.Code, e.Description)
}

type feedAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type feedEnclosure struct {
	URL    string `xml:"url,attr"`
	Length string `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

// FeedItem is one decoded <item> of a Torznab feed.
type FeedItem struct {
	Title       string        `xml:"title"`
	GUID        string        `xml:"guid"`
	Link        string        `xml:"link"`
	Comments    string        `xml:"comments"`
	PubDate     string        `xml:"pubDate"`
	Size        string        `xml:"size"`
	Description string        `xml:"description"`
	Enclosure   feedEnclosure `xml:"enclosure"`
	Attrs       []feedAttr    `xml:"attr"`

	attrs map[string]string
}

func (i *FeedItem) attr(name string) string {
	if i.attrs == nil {
		i.attrs = make(map[string]string, len(i.Attrs))
		for _, a := range i.Attrs {
			key := strings.ToLower(strings.TrimSpace(a.Name))
			if key == "" {
				continue
			}
			if _, seen := i.attrs[key]; !seen {
				i.attrs[key] = strings.TrimSpace(a.Value)
			}
		}
	}
	return i.attrs[name]
}

func (i *FeedItem) intAttr(name string) int {
	v, err := strconv.Atoi(i.attr(name))
	if err != nil {
		return 0
	}
	return v
}

func (i *FeedItem) floatAttr(name string, fallback float64) float64 {
	v, err := strconv.ParseFloat(i.attr(name), 64)
	if err != nil {
		return fallback
	}
	return v
}

// DownloadVolumeFactor defaults to 1 when the attr is absent or invalid.
func (i *FeedItem) DownloadVolumeFactor() float64 {
	return i.floatAttr("downloadvolumefactor", 1)
}

// UploadVolumeFactor defaults to 1 when the attr is absent or invalid.
func (i *FeedItem) UploadVolumeFactor() float64 {
	return i.floatAttr("uploadvolumefactor", 1)
}

// Freeleech reports a zero download volume factor. SearchResult has no
// field for it, so the value is not carried past the parser.
func (i *FeedItem) Freeleech() bool {
	return i.DownloadVolumeFactor() == 0
}

func (i *FeedItem) size() int64 {
	for _, raw := range []string{i.Size, i.Enclosure.Length, i.attr("size")} {
		if v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil && v > 0 {
			return v
		}
	}
	return 0
}

func (i *FeedItem) result(origin string) models.SearchResult {
	downloadURL := strings.TrimSpace(i.Enclosure.URL)

	infoHash := strings.ToLower(i.attr("infohash"))
	if infoHash == "" {
		infoHash = MagnetInfoHash(i.attr("magneturl"))
	}
	if infoHash == "" {
		infoHash = MagnetInfoHash(downloadURL)
	}

	imdb := i.attr("imdbid")
	if imdb == "" {
		imdb = i.attr("imdb")
	}

	return models.SearchResult{
		Title:       strings.TrimSpace(i.Title),
		DownloadURL: downloadURL,
		Description: strings.TrimSpace(i.Description),
		Size:        i.size(),
		Seeders:     i.intAttr("seeders"),
		Peers:       i.intAttr("peers"),
		PublishDate: NormalizeDate(i.PubDate),
		InfoURL:     strings.TrimSpace(i.Comments),
		ImdbID:      formatImdbID(imdb),
		InfoHash:    infoHash,
		OriginTag:   origin,
	}
}

// DecodeFeed streams the <item> elements of a Torznab RSS document.
// Items that fail to decode are skipped. A syntax error anywhere in the
// document fails the whole feed.
func DecodeFeed(r io.Reader) ([]FeedItem, error) {
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = charset.NewReaderLabel
	decoder.Entity = xml.HTMLEntity

	var (
		items    []FeedItem
		sawRoot  bool
		depth    int
		rootName string
	)

	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode torznab feed: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			if !sawRoot {
				sawRoot = true
				rootName = strings.ToLower(el.Name.Local)
				if rootName == "error" {
					feedErr := &FeedError{}
					if err := decoder.DecodeElement(feedErr, &el); err != nil {
						return nil, fmt.Errorf("decode torznab error: %w", err)
					}
					return nil, feedErr
				}
				if rootName != "rss" && rootName != "feed" {
					return nil, fmt.Errorf("%w: root element <%s>", ErrNoFeed, el.Name.Local)
				}
				depth = 1
				continue
			}

			if strings.EqualFold(el.Name.Local, "item") {
				var item FeedItem
				if err := decoder.DecodeElement(&item, &el); err != nil {
					var syntaxErr *xml.SyntaxError
					if errors.As(err, &syntaxErr) {
						return nil, fmt.Errorf("decode torznab feed: %w", err)
					}
					log.Debug().Err(err).Msg("Skipping undecodable torznab item")
					continue
				}
				items = append(items, item)
				continue
			}
			depth++
		case xml.EndElement:
			depth--
		}
	}

	if !sawRoot {
		return nil, ErrNoFeed
	}
	if depth > 0 {
		return nil, fmt.Errorf("decode torznab feed: unexpected end of <%s>", rootName)
	}

	return items, nil
}

// ParseFeed converts a Torznab RSS document into search results, preserving
// item order. Items without a title or enclosure URL are skipped.
func ParseFeed(r io.Reader, origin string) ([]models.SearchResult, error) {
	items, err := DecodeFeed(r)
	if err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, 0, len(items))
	for idx := range items {
		result := items[idx].result(origin)
		if result.Title == "" || result.DownloadURL == "" {
			log.Debug().
				Int("item", idx).
				Str("title", result.Title).
				Msg("Skipping torznab item without title or enclosure")
			continue
		}
		results = append(results, result)
	}

	return results, nil
}

func formatImdbID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "0" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(raw), "tt") {
		return "tt" + raw[2:]
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return ""
	}
	return fmt.Sprintf("tt%07d", n)
}
