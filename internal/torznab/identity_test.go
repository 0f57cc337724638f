// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package torznab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityRoundTrip(t *testing.T) {
	ids := []string{"7", "1337x", "rutracker-ru", "thepiratebay", "42"}

	for _, tmpl := range []IdentityTemplate{JackettTemplate, ProwlarrTemplate} {
		for _, id := range ids {
			t.Run(tmpl.Domain+"/"+id, func(t *testing.T) {
				domain, err := tmpl.Encode(id)
				require.NoError(t, err)
				assert.Equal(t, id, DecodeNativeID(domain))
				assert.True(t, tmpl.Owns(domain))
			})
		}
	}
}

func TestIdentityEncode(t *testing.T) {
	domain, err := JackettTemplate.Encode("7")
	require.NoError(t, err)
	assert.Equal(t, "jackett.7", domain)

	domain, err = ProwlarrTemplate.Encode(" 12 ")
	require.NoError(t, err)
	assert.Equal(t, "prowlarr.12", domain)

	for _, bad := range []string{"", "  ", "a.b", "a/b", "a:b", "a b"} {
		_, err := JackettTemplate.Encode(bad)
		assert.ErrorIs(t, err, ErrInvalidNativeID, "id %q", bad)
	}
}

func TestIdentityDistinctAcrossIdsAndManagers(t *testing.T) {
	a, err := JackettTemplate.Encode("1")
	require.NoError(t, err)
	b, err := JackettTemplate.Encode("2")
	require.NoError(t, err)
	c, err := ProwlarrTemplate.Encode("1")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.False(t, ProwlarrTemplate.Owns(a))
	assert.False(t, JackettTemplate.Owns(c))
}

func TestDecodeNativeID(t *testing.T) {
	tests := []struct {
		name   string
		domain string
		want   string
	}{
		{name: "plain", domain: "jackett.1337x", want: "1337x"},
		{name: "url", domain: "https://prowlarr.12/", want: "12"},
		{name: "url with path", domain: "http://jackett.abc/api?x=1", want: "abc"},
		{name: "port", domain: "jackett.abc:443", want: "abc"},
		{name: "no dots", domain: "single", want: "single"},
		{name: "empty", domain: "", want: ""},
		{name: "trailing dot", domain: "jackett.", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeNativeID(tt.domain))
		})
	}
}
