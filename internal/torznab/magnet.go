// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package torznab

import (
	"strings"

	"github.com/anacrolix/torrent/metainfo"
)

// MagnetInfoHash returns the lower case hex btih of a magnet link, or "".
func MagnetInfoHash(link string) string {
	link = strings.TrimSpace(link)
	if !strings.HasPrefix(strings.ToLower(link), "magnet:") {
		return ""
	}

	m, err := metainfo.ParseMagnetUri(link)
	if err != nil {
		return ""
	}

	return strings.ToLower(m.InfoHash.HexString())
}
