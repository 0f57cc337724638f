// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/autobrr/indexbridge/internal/services/bridge"
)

func TestCollectorObservations(t *testing.T) {
	c := NewCollector()

	c.ObserveDiscovery("Jackett", 4, nil)
	c.ObserveDiscovery("Jackett", 0, &bridge.Error{Kind: bridge.KindTransportFailure, Op: "discover", Err: errors.New("refused")})
	c.ObserveSearch("Prowlarr", 12, nil)
	c.ObserveSearch("Prowlarr", 3, nil)
	c.ObserveSearch("Prowlarr", 0, &bridge.Error{Kind: bridge.KindProtocolMismatch, Op: "search", Err: errors.New("html")})
	c.ObserveSearch("Prowlarr", 0, errors.New("plain"))

	assert.InDelta(t, 1, testutil.ToFloat64(c.discoveries.WithLabelValues("Jackett", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.discoveries.WithLabelValues("Jackett", "error")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(c.indexers.WithLabelValues("Jackett")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(c.searches.WithLabelValues("Prowlarr", "success")), 0)
	assert.InDelta(t, 15, testutil.ToFloat64(c.searchResults.WithLabelValues("Prowlarr")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.errors.WithLabelValues("Jackett", "transport_failure")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.errors.WithLabelValues("Prowlarr", "protocol_mismatch")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.errors.WithLabelValues("Prowlarr", "unknown")), 0)
}

func TestFailedDiscoveryKeepsIndexerGauge(t *testing.T) {
	c := NewCollector()
	c.ObserveDiscovery("Jackett", 7, nil)
	c.ObserveDiscovery("Jackett", 0, errors.New("down"))
	assert.InDelta(t, 7, testutil.ToFloat64(c.indexers.WithLabelValues("Jackett")), 0)
}

func TestParseBasicAuthUsers(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	users, err := ParseBasicAuthUsers(" prom:" + string(hash) + " ,, ")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"prom": string(hash)}, users)

	users, err = ParseBasicAuthUsers("")
	require.NoError(t, err)
	assert.Empty(t, users)

	for _, bad := range []string{"nohash", "user:", ":hash", "user:notbcrypt"} {
		_, err := ParseBasicAuthUsers(bad)
		assert.Error(t, err, bad)
	}
}

func TestHandler(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	c := NewCollector()
	c.ObserveSearch("Jackett", 2, nil)

	tests := []struct {
		name       string
		users      map[string]string
		user, pass string
		wantStatus int
	}{
		{name: "open", wantStatus: http.StatusOK},
		{name: "valid credentials", users: map[string]string{"prom": string(hash)}, user: "prom", pass: "secret", wantStatus: http.StatusOK},
		{name: "wrong password", users: map[string]string{"prom": string(hash)}, user: "prom", pass: "nope", wantStatus: http.StatusUnauthorized},
		{name: "unknown user", users: map[string]string{"prom": string(hash)}, user: "other", pass: "secret", wantStatus: http.StatusUnauthorized},
		{name: "no credentials", users: map[string]string{"prom": string(hash)}, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(Handler(c, tt.users))
			defer srv.Close()

			req, err := http.NewRequest(http.MethodGet, srv.URL+"/metrics", nil)
			require.NoError(t, err)
			if tt.user != "" {
				req.SetBasicAuth(tt.user, tt.pass)
			}

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantStatus == http.StatusOK {
				body, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				assert.Contains(t, string(body), `indexbridge_search_results_total{manager="Jackett"} 2`)
			}
		})
	}
}

func TestNewServerAddr(t *testing.T) {
	s := NewServer(NewCollector(), "127.0.0.1", 9074, nil)
	assert.Equal(t, "127.0.0.1:9074", s.Addr())
}
