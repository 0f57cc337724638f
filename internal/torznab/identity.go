// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package torznab

import (
	"errors"
	"net/url"
	"strings"
)

var ErrInvalidNativeID = errors.New("invalid native indexer id")

// IdentityTemplate derives synthetic registry domains for one manager.
// Token inside Domain is replaced by the manager's native indexer id.
type IdentityTemplate struct {
	Domain string
	Token  string
}

var (
	JackettTemplate  = IdentityTemplate{Domain: "jackett.indexbridge", Token: "indexbridge"}
	ProwlarrTemplate = IdentityTemplate{Domain: "prowlarr.indexbridge", Token: "indexbridge"}
)

// Encode returns the synthetic domain for nativeID.
// Ids containing a dot, slash, colon or space are rejected since
// DecodeNativeID could not recover them.
func (t IdentityTemplate) Encode(nativeID string) (string, error) {
	nativeID = strings.TrimSpace(nativeID)
	if nativeID == "" || strings.ContainsAny(nativeID, "./: ") {
		return "", ErrInvalidNativeID
	}
	return strings.ReplaceAll(t.Domain, t.Token, nativeID), nil
}

// Owns reports whether domain was produced by this template.
func (t IdentityTemplate) Owns(domain string) bool {
	prefix, _, ok := strings.Cut(t.Domain, t.Token)
	if !ok {
		return false
	}
	return strings.HasPrefix(hostOf(domain), prefix)
}

// DecodeNativeID recovers the native id from a synthetic domain by taking
// its last dot separated segment. URL shaped input is reduced to its host first.
func DecodeNativeID(domain string) string {
	host := hostOf(domain)
	if host == "" {
		return ""
	}
	idx := strings.LastIndex(host, ".")
	return host[idx+1:]
}

func hostOf(domain string) string {
	domain = strings.TrimSpace(domain)
	if strings.Contains(domain, "://") {
		if u, err := url.Parse(domain); err == nil {
			return u.Hostname()
		}
	}
	domain, _, _ = strings.Cut(domain, "/")
	if h, _, ok := strings.Cut(domain, ":"); ok {
		domain = h
	}
	return domain
}
