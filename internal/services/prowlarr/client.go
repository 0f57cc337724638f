// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package prowlarr talks to a Prowlarr server: indexer statistics listing
// and paged JSON search.
package prowlarr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/indexbridge/internal/domain"
	"github.com/autobrr/indexbridge/internal/httpclient"
	"github.com/autobrr/indexbridge/internal/models"
	"github.com/autobrr/indexbridge/internal/services/bridge"
	"github.com/autobrr/indexbridge/internal/torznab"
)

const (
	Name = "Prowlarr"

	minimumVersion = "1.0.0"

	maxResponseBytes int64 = 16 << 20
)

var errMissingSettings = errors.New("prowlarr host and api key are required")

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.override = hc
	}
}

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

type Client struct {
	template torznab.IdentityTemplate
	override *http.Client
	timeout  time.Duration

	mu   sync.RWMutex
	cfg  domain.ManagerConfig
	http *http.Client
}

func NewClient(cfg domain.ManagerConfig, opts ...ClientOption) *Client {
	c := &Client{template: torznab.ProwlarrTemplate}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.Configure(cfg); err != nil {
		log.Warn().Err(err).Str("manager", Name).Msg("Invalid transport settings, using a direct connection")
		cfg.Proxy = false
		_ = c.Configure(cfg)
	}

	return c
}

func (c *Client) Name() string {
	return Name
}

func (c *Client) OriginTag() string {
	return c.template.Domain
}

func (c *Client) MinimumVersion() string {
	return minimumVersion
}

func (c *Client) Configure(cfg domain.ManagerConfig) error {
	cfg = cfg.Normalized()

	hc := c.override
	if hc == nil {
		timeout := c.timeout
		if timeout <= 0 {
			timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
		}
		var err error
		hc, err = httpclient.New(httpclient.Options{
			Timeout:  timeout,
			ProxyURL: cfg.ProxyURL,
			UseProxy: cfg.Proxy,
		})
		if err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.cfg = cfg
	c.http = hc
	c.mu.Unlock()

	return nil
}

func (c *Client) snapshot() (domain.ManagerConfig, *http.Client) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg, c.http
}

func (c *Client) get(ctx context.Context, op, path string, query url.Values) (*http.Response, error) {
	cfg, hc := c.snapshot()
	if !cfg.Configured() {
		return nil, bridge.NewError(bridge.KindConfigMissing, op, errMissingSettings)
	}

	endpoint := cfg.Host + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, bridge.NewError(bridge.KindConfigMissing, op, err)
	}
	req.Header.Set("X-Api-Key", cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, bridge.NewError(bridge.KindTransportFailure, op, err)
	}

	if err := httpclient.CheckStatus(resp); err != nil {
		httpclient.DrainAndClose(resp)
		return nil, bridge.NewError(bridge.KindTransportFailure, op, err)
	}

	return resp, nil
}

type indexerStats struct {
	Indexers *[]indexerStat `json:"indexers"`
}

type indexerStat struct {
	IndexerID   int    `json:"indexerId"`
	IndexerName string `json:"indexerName"`
}

// Discover lists the indexers reported by /api/v1/indexerstats.
func (c *Client) Discover(ctx context.Context) ([]models.IndexerIdentity, error) {
	const op = "prowlarr discover"

	resp, err := c.get(ctx, op, "/api/v1/indexerstats", nil)
	if err != nil {
		return nil, err
	}
	defer httpclient.DrainAndClose(resp)

	var stats indexerStats
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&stats); err != nil {
		return nil, bridge.NewError(bridge.KindProtocolMismatch, op, fmt.Errorf("decode indexer stats: %w", err))
	}
	if stats.Indexers == nil {
		return nil, bridge.NewError(bridge.KindProtocolMismatch, op, errors.New("indexer stats without indexers array"))
	}

	cfg, _ := c.snapshot()
	identities := make([]models.IndexerIdentity, 0, len(*stats.Indexers))
	for _, stat := range *stats.Indexers {
		name := strings.TrimSpace(stat.IndexerName)
		if stat.IndexerID <= 0 || name == "" {
			log.Warn().
				Str("manager", Name).
				Int("id", stat.IndexerID).
				Str("name", stat.IndexerName).
				Msg("Skipping indexer without id or name")
			continue
		}

		id := strconv.Itoa(stat.IndexerID)
		domainName, err := c.template.Encode(id)
		if err != nil {
			log.Warn().Err(err).Str("manager", Name).Int("id", stat.IndexerID).Msg("Skipping indexer")
			continue
		}

		identities = append(identities, models.IndexerIdentity{
			ID:       Name + "-" + id,
			Name:     Name + "-" + name,
			NativeID: id,
			Domain:   domainName,
			URL:      fmt.Sprintf("%s/api/v1/indexer/%s", cfg.Host, id),
			Manager:  Name,
			Public:   true,
			Proxy:    false,
			Language: "en",
			Result:   true,
		})
	}

	return identities, nil
}

type systemStatus struct {
	Version string `json:"version"`
}

// ServerVersion returns the Prowlarr version from /api/v1/system/status.
func (c *Client) ServerVersion(ctx context.Context) (string, error) {
	const op = "prowlarr version"

	resp, err := c.get(ctx, op, "/api/v1/system/status", nil)
	if err != nil {
		return "", err
	}
	defer httpclient.DrainAndClose(resp)

	var status systemStatus
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&status); err != nil {
		return "", bridge.NewError(bridge.KindProtocolMismatch, op, err)
	}
	if status.Version == "" {
		return "", bridge.NewError(bridge.KindProtocolMismatch, op, errors.New("version missing"))
	}

	return status.Version, nil
}

// Search runs one keyword against one indexer. An empty array is a valid
// answer and yields no results without error.
func (c *Client) Search(ctx context.Context, identity models.IndexerIdentity, q bridge.Query) ([]models.SearchResult, error) {
	const op = "prowlarr search"

	nativeID := identity.NativeID
	if nativeID == "" {
		nativeID = torznab.DecodeNativeID(identity.Domain)
	}
	if _, err := strconv.Atoi(nativeID); err != nil {
		return nil, bridge.NewError(bridge.KindIdentityMismatch, op, fmt.Errorf("cannot resolve indexer id from %q", identity.Domain))
	}

	limit := q.Limit
	if limit <= 0 {
		limit = bridge.DefaultSearchLimit
	}
	offset := max(q.Offset, 0)

	params := url.Values{}
	params.Set("query", q.Keyword)
	params.Set("indexerIds", nativeID)
	params.Set("type", "search")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	for _, cat := range q.Categories {
		params.Add("categories", strconv.Itoa(cat))
	}

	resp, err := c.get(ctx, op, "/api/v1/search", params)
	if err != nil {
		return nil, err
	}
	defer httpclient.DrainAndClose(resp)

	results, err := torznab.ParseReleases(io.LimitReader(resp.Body, maxResponseBytes), c.OriginTag())
	if err != nil {
		return nil, bridge.NewError(bridge.KindProtocolMismatch, op, err)
	}

	log.Debug().
		Str("manager", Name).
		Str("indexer", identity.Name).
		Str("query", q.Keyword).
		Int("offset", offset).
		Int("results", len(results)).
		Msg("Prowlarr search finished")

	return results, nil
}
