// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/indexbridge/internal/models"
)

func sampleResults() []models.SearchResult {
	return []models.SearchResult{
		{Title: "Foo.2021.1080p.BluRay", DownloadURL: "http://x/1", Seeders: 12, Size: 8 << 30, Resolution: "1080p", Year: 2021},
		{Title: "Foo.2021.720p.WEB", DownloadURL: "http://x/2", Seeders: 3, Size: 2 << 30, Resolution: "720p", Year: 2021},
		{Title: "Bar.2019.2160p", DownloadURL: "http://x/3", Seeders: 40, Size: 30 << 30, Resolution: "2160p", Year: 2019},
	}
}

func TestCompileAndApply(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want []string
	}{
		{name: "seeders", expr: "Seeders > 5", want: []string{"Foo.2021.1080p.BluRay", "Bar.2019.2160p"}},
		{name: "resolution and year", expr: `Resolution == "720p" && Year == 2021`, want: []string{"Foo.2021.720p.WEB"}},
		{name: "title contains", expr: `Title contains "Bar"`, want: []string{"Bar.2019.2160p"}},
		{name: "size", expr: "Size < 10 * 1024 * 1024 * 1024", want: []string{"Foo.2021.1080p.BluRay", "Foo.2021.720p.WEB"}},
		{name: "nothing", expr: "Seeders > 1000", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Compile(tt.expr)
			require.NoError(t, err)
			require.NotNil(t, p)
			assert.Equal(t, tt.expr, p.String())

			got := make([]string, 0)
			for _, r := range p.Apply(sampleResults()) {
				got = append(got, r.Title)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompileCachesPrograms(t *testing.T) {
	first, err := Compile("Seeders > 1")
	require.NoError(t, err)
	second, err := Compile("  Seeders > 1 ")
	require.NoError(t, err)
	assert.Same(t, first.program, second.program)
}

func TestCompileErrors(t *testing.T) {
	for _, bad := range []string{"Seeders >", "Unknown == 1", `Title + "x"`} {
		_, err := Compile(bad)
		assert.Error(t, err, bad)
	}
}

func TestEmptyExpressionMatchesAll(t *testing.T) {
	p, err := Compile("   ")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Len(t, p.Apply(sampleResults()), 3)

	ok, err := p.Match(models.SearchResult{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMatchName(t *testing.T) {
	identities := []models.IndexerIdentity{
		{Name: "Jackett-1337x", NativeID: "1337x", Domain: "jackett.1337x"},
		{Name: "Jackett-RuTracker", NativeID: "rutracker", Domain: "jackett.rutracker"},
		{Name: "Jackett-TorrentLeech", NativeID: "torrentleech", Domain: "jackett.torrentleech"},
	}

	got := MatchName("rutr", identities)
	require.Len(t, got, 1)
	assert.Equal(t, "Jackett-RuTracker", got[0].Name)

	got = MatchName("TRACKER", identities)
	require.Len(t, got, 1)

	got = MatchName("torrentle", identities)
	require.Len(t, got, 1)
	assert.Equal(t, "Jackett-TorrentLeech", got[0].Name)

	assert.Len(t, MatchName("", identities), 3)
	assert.Empty(t, MatchName("zzz", identities))
}

