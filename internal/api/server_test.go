// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/autobrr/indexbridge/internal/api/handlers"
	"github.com/autobrr/indexbridge/internal/api/swagger"
	"github.com/autobrr/indexbridge/internal/config"
	"github.com/autobrr/indexbridge/internal/database"
	"github.com/autobrr/indexbridge/internal/domain"
	"github.com/autobrr/indexbridge/internal/models"
	"github.com/autobrr/indexbridge/internal/services/bridge"
	"github.com/autobrr/indexbridge/internal/torznab"
)

type routeKey struct {
	Method string
	Path   string
}

var undocumentedRoutes = map[routeKey]struct{}{}

func TestAllEndpointsDocumented(t *testing.T) {
	server := NewServer(newTestDependencies(t, ""))
	router, err := server.Handler()
	require.NoError(t, err)

	actualRoutes := collectRouterRoutes(t, router)
	documentedRoutes := loadDocumentedRoutes(t)

	undocumented := diffRoutes(actualRoutes, documentedRoutes)
	if len(undocumented) > 0 {
		t.Fatalf("found %d undocumented API endpoints:\n%s", len(undocumented), formatRoutes(undocumented))
	}

	missingHandlers := diffRoutes(documentedRoutes, actualRoutes)
	if len(missingHandlers) > 0 {
		t.Fatalf("found %d documented endpoints without handlers:\n%s", len(missingHandlers), formatRoutes(missingHandlers))
	}

	t.Logf("checked %d API routes registered in chi", len(actualRoutes))
}

type stubBridge struct {
	name    string
	healthy bool
}

func (b *stubBridge) Name() string { return b.name }

func (b *stubBridge) Status() bridge.Status {
	return bridge.Status{Manager: b.name, State: "idle", Healthy: b.healthy}
}

func (b *stubBridge) ListIdentities(context.Context) []models.IndexerIdentity { return nil }

func (b *stubBridge) Lookup(string) (models.IndexerIdentity, bool) {
	return models.IndexerIdentity{}, false
}

func (b *stubBridge) Refresh(context.Context) error { return nil }

func (b *stubBridge) Search(context.Context, models.IndexerIdentity, []string, torznab.MediaKind, int) []models.SearchResult {
	return nil
}

func newTestDependencies(t *testing.T, apiKey string) *Dependencies {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.New(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	return &Dependencies{
		Config: &config.AppConfig{
			Config: &domain.Config{
				BaseURL: "/",
				APIKey:  apiKey,
			},
		},
		Version: "test",
		Managers: []handlers.ManagerBridge{
			&stubBridge{name: "Jackett", healthy: true},
			&stubBridge{name: "Prowlarr"},
		},
		SiteStore: models.NewSiteStore(db),
	}
}

func TestRouterServesAPI(t *testing.T) {
	server := NewServer(newTestDependencies(t, "secret"))
	router, err := server.Handler()
	require.NoError(t, err)

	srv := httptest.NewServer(router)
	defer srv.Close()

	tests := []struct {
		name   string
		method string
		path   string
		apiKey string
		want   int
	}{
		{name: "health is public", method: http.MethodGet, path: "/health", want: http.StatusOK},
		{name: "liveness", method: http.MethodGet, path: "/healthz/liveness", want: http.StatusOK},
		{name: "openapi is public", method: http.MethodGet, path: "/api/openapi.yaml", want: http.StatusOK},
		{name: "managers need key", method: http.MethodGet, path: "/api/managers", want: http.StatusUnauthorized},
		{name: "managers", method: http.MethodGet, path: "/api/managers", apiKey: "secret", want: http.StatusOK},
		{name: "unknown manager", method: http.MethodGet, path: "/api/managers/sonarr/indexers", apiKey: "secret", want: http.StatusNotFound},
		{name: "sites", method: http.MethodGet, path: "/api/sites", apiKey: "secret", want: http.StatusOK},
		{name: "delete missing site", method: http.MethodDelete, path: "/api/sites/jackett.none", apiKey: "secret", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, nil)
			require.NoError(t, err)
			if tt.apiKey != "" {
				req.Header.Set("X-API-Key", tt.apiKey)
			}

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestBaseURLPrefix(t *testing.T) {
	deps := newTestDependencies(t, "")
	deps.Config.Config.BaseURL = "/indexbridge/"

	router, err := NewServer(deps).Handler()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/indexbridge/api/managers", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "/indexbridge/")
}

func collectRouterRoutes(t *testing.T, r chi.Routes) map[routeKey]struct{} {
	t.Helper()

	routes := make(map[routeKey]struct{})
	err := chi.Walk(r, func(method string, path string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		method = strings.ToUpper(method)
		if !isComparableMethod(method) {
			return nil
		}

		normalizedPath, ok := normalizeRoutePath(path)
		if !ok {
			return nil
		}

		route := routeKey{Method: method, Path: normalizedPath}
		if _, skip := undocumentedRoutes[route]; skip {
			return nil
		}

		routes[route] = struct{}{}
		return nil
	})
	require.NoError(t, err)

	return routes
}

func loadDocumentedRoutes(t *testing.T) map[routeKey]struct{} {
	t.Helper()

	specBytes, err := swagger.GetOpenAPISpec()
	require.NoError(t, err)
	require.NotEmpty(t, specBytes, "OpenAPI spec should be embedded")

	var spec map[string]any
	require.NoError(t, yaml.Unmarshal(specBytes, &spec))

	pathsNode, ok := spec["paths"].(map[string]any)
	require.True(t, ok, "OpenAPI spec missing paths section")

	routes := make(map[routeKey]struct{})

	for path, pathItem := range pathsNode {
		normalizedPath, ok := normalizeRoutePath(path)
		if !ok {
			continue
		}

		methods, ok := pathItem.(map[string]any)
		if !ok {
			continue
		}

		for method := range methods {
			upperMethod := strings.ToUpper(method)
			if !isComparableMethod(upperMethod) {
				continue
			}

			routes[routeKey{Method: upperMethod, Path: normalizedPath}] = struct{}{}
		}
	}

	return routes
}

func normalizeRoutePath(path string) (string, bool) {
	if path == "" {
		return "", false
	}

	if strings.Contains(path, "/*") {
		return "", false
	}

	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}

	if path == "/api/openapi.yaml" {
		return "", false
	}

	if !strings.HasPrefix(path, "/api") && !strings.HasPrefix(path, "/health") {
		return "", false
	}

	return path, true
}

func isComparableMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func diffRoutes(left, right map[routeKey]struct{}) []routeKey {
	diff := make([]routeKey, 0)
	for route := range left {
		if _, exists := right[route]; !exists {
			diff = append(diff, route)
		}
	}

	sort.Slice(diff, func(i, j int) bool {
		if diff[i].Path == diff[j].Path {
			return diff[i].Method < diff[j].Method
		}
		return diff[i].Path < diff[j].Path
	})

	return diff
}

func formatRoutes(routes []routeKey) string {
	lines := make([]string, len(routes))
	for i, route := range routes {
		lines[i] = fmt.Sprintf("%s %s", route.Method, route.Path)
	}
	return strings.Join(lines, "\n")
}
