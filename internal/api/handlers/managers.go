// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/indexbridge/internal/filter"
	"github.com/autobrr/indexbridge/internal/models"
	"github.com/autobrr/indexbridge/internal/services/bridge"
	"github.com/autobrr/indexbridge/internal/torznab"
)

const (
	searchCacheTTL = 2 * time.Minute
	maxSearchPage  = 100
)

// ManagerBridge is the part of *bridge.Bridge the API drives.
type ManagerBridge interface {
	Name() string
	Status() bridge.Status
	ListIdentities(ctx context.Context) []models.IndexerIdentity
	Lookup(domain string) (models.IndexerIdentity, bool)
	Refresh(ctx context.Context) error
	Search(ctx context.Context, identity models.IndexerIdentity, keywords []string, kind torznab.MediaKind, page int) []models.SearchResult
}

// Managers holds the configured bridges in registration order.
type Managers struct {
	order  []string
	byName map[string]ManagerBridge
}

func NewManagers(bridges ...ManagerBridge) *Managers {
	m := &Managers{byName: make(map[string]ManagerBridge, len(bridges))}
	for _, b := range bridges {
		if b == nil {
			continue
		}
		key := strings.ToLower(b.Name())
		if _, exists := m.byName[key]; !exists {
			m.order = append(m.order, key)
		}
		m.byName[key] = b
	}
	return m
}

// Get resolves a manager by case-insensitive name.
func (m *Managers) Get(name string) (ManagerBridge, bool) {
	b, ok := m.byName[strings.ToLower(strings.TrimSpace(name))]
	return b, ok
}

func (m *Managers) All() []ManagerBridge {
	out := make([]ManagerBridge, 0, len(m.order))
	for _, key := range m.order {
		out = append(out, m.byName[key])
	}
	return out
}

// SearchResponse is returned by the search endpoint.
type SearchResponse struct {
	Indexer string                `json:"indexer"`
	Page    int                   `json:"page"`
	Total   int                   `json:"total"`
	Cached  bool                  `json:"cached"`
	Results []models.SearchResult `json:"results"`
}

type ManagersHandler struct {
	managers *Managers
	cache    *ttlcache.Cache[string, []models.SearchResult]
}

func NewManagersHandler(managers *Managers) *ManagersHandler {
	return &ManagersHandler{
		managers: managers,
		cache:    ttlcache.New(ttlcache.Options[string, []models.SearchResult]{}.SetDefaultTTL(searchCacheTTL)),
	}
}

func (h *ManagersHandler) Routes(r chi.Router) {
	r.Route("/managers", func(r chi.Router) {
		r.Get("/", h.List)
		r.Route("/{manager}", func(r chi.Router) {
			r.Get("/indexers", h.ListIndexers)
			r.Post("/refresh", h.Refresh)
			r.Get("/search", h.Search)
		})
	})
}

func (h *ManagersHandler) manager(w http.ResponseWriter, r *http.Request) (ManagerBridge, bool) {
	name := chi.URLParam(r, "manager")
	m, ok := h.managers.Get(name)
	if !ok {
		RespondError(w, http.StatusNotFound, fmt.Sprintf("unknown manager %q", name))
		return nil, false
	}
	return m, true
}

// List returns the status of every configured manager.
func (h *ManagersHandler) List(w http.ResponseWriter, _ *http.Request) {
	statuses := make([]bridge.Status, 0)
	for _, m := range h.managers.All() {
		statuses = append(statuses, m.Status())
	}
	RespondJSON(w, http.StatusOK, statuses)
}

// ListIndexers refreshes and returns the manager's indexers, optionally
// narrowed by a fuzzy name filter.
func (h *ManagersHandler) ListIndexers(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}

	identities := m.ListIdentities(r.Context())
	identities = filter.MatchName(r.URL.Query().Get("filter"), identities)
	if identities == nil {
		identities = []models.IndexerIdentity{}
	}

	RespondJSON(w, http.StatusOK, identities)
}

func (h *ManagersHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}

	if err := m.Refresh(r.Context()); err != nil {
		switch {
		case errors.Is(err, bridge.ErrNotRunning):
			RespondError(w, http.StatusConflict, err.Error())
		case bridge.IsKind(err, bridge.KindConfigMissing):
			RespondError(w, http.StatusBadRequest, err.Error())
		default:
			log.Error().Err(err).Str("manager", m.Name()).Msg("Manual indexer refresh failed")
			RespondError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	RespondJSON(w, http.StatusOK, m.Status())
}

// lookupIdentity resolves domain from the cache. On a miss the cache is
// listed once, which refills it when empty, and the lookup is retried.
func lookupIdentity(ctx context.Context, m ManagerBridge, domain string) (models.IndexerIdentity, bool) {
	if identity, ok := m.Lookup(domain); ok {
		return identity, true
	}
	for _, identity := range m.ListIdentities(ctx) {
		if identity.Domain == domain {
			return identity, true
		}
	}
	return models.IndexerIdentity{}, false
}

// Search runs a keyword search against one indexer. Results failing the
// optional expr filter, and results without title or download URL, are
// dropped.
func (h *ManagersHandler) Search(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()

	domain := strings.TrimSpace(q.Get("indexer"))
	if domain == "" {
		RespondError(w, http.StatusBadRequest, "indexer is required")
		return
	}
	identity, ok := lookupIdentity(r.Context(), m, domain)
	if !ok {
		RespondError(w, http.StatusNotFound, fmt.Sprintf("unknown indexer %q", domain))
		return
	}

	keywords := make([]string, 0)
	for _, raw := range q["q"] {
		if kw := strings.TrimSpace(raw); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	if len(keywords) == 0 {
		RespondError(w, http.StatusBadRequest, "q is required")
		return
	}

	page := 0
	if raw := q.Get("page"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p < 0 || p > maxSearchPage {
			RespondError(w, http.StatusBadRequest, fmt.Sprintf("page must be between 0 and %d", maxSearchPage))
			return
		}
		page = p
	}

	program, err := filter.Compile(q.Get("expr"))
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	kind := torznab.ParseMediaKind(q.Get("type"))
	key := searchCacheKey(m.Name(), domain, kind, page, keywords)

	results, cached := h.cache.Get(key)
	if !cached {
		results = make([]models.SearchResult, 0)
		for _, result := range m.Search(r.Context(), identity, keywords, kind, page) {
			if result.Valid() {
				results = append(results, result)
			}
		}
		if len(results) > 0 {
			h.cache.Set(key, slices.Clone(results), ttlcache.DefaultTTL)
		}
	}

	results = program.Apply(results)

	RespondJSON(w, http.StatusOK, SearchResponse{
		Indexer: identity.Name,
		Page:    page,
		Total:   len(results),
		Cached:  cached,
		Results: results,
	})
}

func searchCacheKey(manager, domain string, kind torznab.MediaKind, page int, keywords []string) string {
	return strings.Join([]string{
		strings.ToLower(manager),
		domain,
		string(kind),
		strconv.Itoa(page),
		strings.ToLower(strings.Join(keywords, "\x00")),
	}, "|")
}
