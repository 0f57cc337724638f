// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package jackett talks to a Jackett server: session login, configured
// indexer listing and Torznab search.
package jackett

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
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
	// Name prefixes every identity this client produces.
	Name = "Jackett"

	minimumVersion = "0.20.0"

	// maxResponseBytes bounds listing and feed bodies.
	maxResponseBytes int64 = 16 << 20
)

var errMissingSettings = errors.New("jackett host and api key are required")

type ClientOption func(*Client)

// WithHTTPClient replaces the transport built from the settings. A cookie
// jar is attached when the client has none.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.override = hc
	}
}

// WithTimeout overrides the per request timeout from the settings.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// Client is safe for concurrent use. Configure swaps the settings and the
// session atomically.
type Client struct {
	template torznab.IdentityTemplate
	override *http.Client
	timeout  time.Duration

	mu   sync.RWMutex
	cfg  domain.ManagerConfig
	http *http.Client
}

func NewClient(cfg domain.ManagerConfig, opts ...ClientOption) *Client {
	c := &Client{template: torznab.JackettTemplate}
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

// Configure applies cfg and starts a fresh cookie session.
func (c *Client) Configure(cfg domain.ManagerConfig) error {
	cfg = cfg.Normalized()

	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}

	var hc *http.Client
	if c.override != nil {
		clone := *c.override
		if clone.Jar == nil {
			clone.Jar = jar
		}
		hc = &clone
	} else {
		timeout := c.timeout
		if timeout <= 0 {
			timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
		}
		hc, err = httpclient.New(httpclient.Options{
			Timeout:  timeout,
			ProxyURL: cfg.ProxyURL,
			UseProxy: cfg.Proxy,
			Jar:      jar,
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

type indexerEntry struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Configured bool   `json:"configured"`
	Type       string `json:"type"`
}

// Discover logs in and lists the configured indexers.
func (c *Client) Discover(ctx context.Context) ([]models.IndexerIdentity, error) {
	const op = "jackett discover"

	cfg, hc := c.snapshot()
	if !cfg.Configured() {
		return nil, bridge.NewError(bridge.KindConfigMissing, op, errMissingSettings)
	}

	c.login(ctx, cfg, hc)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.Host+"/api/v2.0/indexers?configured=true", nil)
	if err != nil {
		return nil, bridge.NewError(bridge.KindConfigMissing, op, err)
	}
	req.Header.Set("X-Api-Key", cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, bridge.NewError(bridge.KindTransportFailure, op, err)
	}
	defer httpclient.DrainAndClose(resp)

	if err := httpclient.CheckStatus(resp); err != nil {
		return nil, bridge.NewError(bridge.KindTransportFailure, op, err)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, bridge.NewError(bridge.KindTransportFailure, op, err)
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '[' {
		return nil, bridge.NewError(bridge.KindProtocolMismatch, op, fmt.Errorf("indexer list is not a json array (%d bytes)", len(body)))
	}

	var entries []indexerEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, bridge.NewError(bridge.KindProtocolMismatch, op, fmt.Errorf("decode indexer list: %w", err))
	}

	identities := make([]models.IndexerIdentity, 0, len(entries))
	for _, entry := range entries {
		identity, err := c.identity(cfg, entry)
		if err != nil {
			log.Warn().
				Err(err).
				Str("manager", Name).
				Str("id", entry.ID).
				Str("name", entry.Name).
				Msg("Skipping indexer")
			continue
		}
		identities = append(identities, identity)
	}

	return identities, nil
}

func (c *Client) identity(cfg domain.ManagerConfig, entry indexerEntry) (models.IndexerIdentity, error) {
	id := strings.TrimSpace(entry.ID)
	name := strings.TrimSpace(entry.Name)
	if id == "" || name == "" {
		return models.IndexerIdentity{}, errors.New("indexer entry without id or name")
	}

	domainName, err := c.template.Encode(id)
	if err != nil {
		return models.IndexerIdentity{}, fmt.Errorf("encode indexer id: %w", err)
	}

	display := Name + "-" + name
	return models.IndexerIdentity{
		ID:       display,
		Name:     display,
		NativeID: id,
		Domain:   domainName,
		URL:      fmt.Sprintf("%s/api/v2.0/indexers/%s/results/torznab/", cfg.Host, id),
		Manager:  Name,
		Public:   true,
		Proxy:    false,
		Language: "en",
		Result:   true,
	}, nil
}

// login posts the admin password to the dashboard so the jar holds a
// session cookie. Failures are logged; listing is still attempted.
func (c *Client) login(ctx context.Context, cfg domain.ManagerConfig, hc *http.Client) {
	form := url.Values{"password": {cfg.Password}}
	loginURL := cfg.Host + "/UI/Dashboard?" + form.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		log.Warn().Err(err).Str("manager", Name).Msg("Failed to build login request")
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")

	resp, err := hc.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("manager", Name).Msg("Login request failed")
		return
	}
	statusErr := httpclient.CheckStatus(resp)
	httpclient.DrainAndClose(resp)
	if statusErr != nil {
		log.Warn().Err(statusErr).Str("manager", Name).Msg("Login rejected")
	}

	if hc.Jar == nil {
		return
	}
	hostURL, err := url.Parse(cfg.Host)
	if err != nil {
		return
	}
	if len(hc.Jar.Cookies(hostURL)) == 0 {
		log.Warn().Str("manager", Name).Msg("Session cookie missing after login")
	}
}

type serverConfig struct {
	AppVersion string `json:"app_version"`
}

// ServerVersion returns the Jackett app_version.
func (c *Client) ServerVersion(ctx context.Context) (string, error) {
	const op = "jackett version"

	cfg, hc := c.snapshot()
	if !cfg.Configured() {
		return "", bridge.NewError(bridge.KindConfigMissing, op, errMissingSettings)
	}

	c.login(ctx, cfg, hc)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.Host+"/api/v2.0/server/config", nil)
	if err != nil {
		return "", bridge.NewError(bridge.KindConfigMissing, op, err)
	}
	req.Header.Set("X-Api-Key", cfg.APIKey)

	resp, err := hc.Do(req)
	if err != nil {
		return "", bridge.NewError(bridge.KindTransportFailure, op, err)
	}
	defer httpclient.DrainAndClose(resp)

	if err := httpclient.CheckStatus(resp); err != nil {
		return "", bridge.NewError(bridge.KindTransportFailure, op, err)
	}

	var sc serverConfig
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&sc); err != nil {
		return "", bridge.NewError(bridge.KindProtocolMismatch, op, err)
	}
	if sc.AppVersion == "" {
		return "", bridge.NewError(bridge.KindProtocolMismatch, op, errors.New("app_version missing"))
	}

	return sc.AppVersion, nil
}

// Search queries one indexer's Torznab endpoint. Jackett does not page,
// so q.Offset and q.Limit are ignored.
func (c *Client) Search(ctx context.Context, identity models.IndexerIdentity, q bridge.Query) ([]models.SearchResult, error) {
	const op = "jackett search"

	cfg, hc := c.snapshot()
	if !cfg.Configured() {
		return nil, bridge.NewError(bridge.KindConfigMissing, op, errMissingSettings)
	}

	nativeID := identity.NativeID
	if nativeID == "" {
		nativeID = torznab.DecodeNativeID(identity.Domain)
	}
	if nativeID == "" {
		return nil, bridge.NewError(bridge.KindIdentityMismatch, op, fmt.Errorf("cannot resolve indexer id from %q", identity.Domain))
	}

	params := url.Values{}
	params.Set("apikey", cfg.APIKey)
	params.Set("t", "search")
	params.Set("q", q.Keyword)
	if len(q.Categories) > 0 {
		params.Set("cat", torznab.JoinCategories(q.Categories))
	}

	endpoint := fmt.Sprintf("%s/api/v2.0/indexers/%s/results/torznab/?%s", cfg.Host, url.PathEscape(nativeID), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, bridge.NewError(bridge.KindConfigMissing, op, err)
	}
	req.Header.Set("Accept", "application/rss+xml, application/xml, text/xml")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, bridge.NewError(bridge.KindTransportFailure, op, err)
	}
	defer httpclient.DrainAndClose(resp)

	if err := httpclient.CheckStatus(resp); err != nil {
		return nil, bridge.NewError(bridge.KindTransportFailure, op, err)
	}

	results, err := torznab.ParseFeed(io.LimitReader(resp.Body, maxResponseBytes), c.OriginTag())
	if err != nil {
		return nil, bridge.NewError(bridge.KindProtocolMismatch, op, err)
	}

	log.Debug().
		Str("manager", Name).
		Str("indexer", identity.Name).
		Str("query", q.Keyword).
		Int("results", len(results)).
		Msg("Torznab search finished")

	return results, nil
}
