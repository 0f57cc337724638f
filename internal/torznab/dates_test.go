// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package torznab

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "rfc1123z", in: "Mon, 02 Jan 2006 15:04:05 -0700", want: "2006-01-02 22:04:05"},
		{name: "rfc1123", in: "Mon, 02 Jan 2006 15:04:05 UTC", want: "2006-01-02 15:04:05"},
		{name: "single digit day", in: "Fri, 5 May 2023 10:00:00 +0200", want: "2023-05-05 08:00:00"},
		{name: "rfc3339", in: "2023-05-01T12:34:56Z", want: "2023-05-01 12:34:56"},
		{name: "rfc3339 offset", in: "2023-05-01T12:34:56+02:00", want: "2023-05-01 10:34:56"},
		{name: "already canonical", in: "2023-05-01 12:34:56", want: "2023-05-01 12:34:56"},
		{name: "fuzzy date only", in: "2023-05-01", want: "2023-05-01 00:00:00"},
		{name: "empty", in: "", want: ""},
		{name: "garbage", in: "not a date", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDate(tt.in))
		})
	}
}

func TestMagnetInfoHash(t *testing.T) {
	const hash = "c9e15763f722f23e98a29decdfae341b98d53056"

	assert.Equal(t, hash, MagnetInfoHash("magnet:?xt=urn:btih:C9E15763F722F23E98A29DECDFAE341B98D53056&dn=Foo"))
	assert.Equal(t, "", MagnetInfoHash("http://x/dl"))
	assert.Equal(t, "", MagnetInfoHash("magnet:?dn=missing-hash"))
	assert.Equal(t, "", MagnetInfoHash(""))
}
