// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package httpclient builds the outbound HTTP clients used to talk to the
// indexer managers.
package httpclient

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/autobrr/indexbridge/internal/buildinfo"
)

// DefaultTimeout applies when Options.Timeout is zero.
const DefaultTimeout = 60 * time.Second

// maxDrainBytes bounds how much of an unread body is discarded before close
// so the connection can be reused.
const maxDrainBytes = 64 << 10

type Options struct {
	Timeout time.Duration
	// ProxyURL is used when UseProxy is set. An empty ProxyURL falls back to
	// the HTTP_PROXY/HTTPS_PROXY environment.
	ProxyURL  string
	UseProxy  bool
	Jar       http.CookieJar
	UserAgent string
}

// New returns an http.Client with its own transport.
func New(opts Options) (*http.Client, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	if opts.UseProxy {
		proxy, err := proxyFunc(opts.ProxyURL)
		if err != nil {
			return nil, err
		}
		transport.Proxy = proxy
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = buildinfo.UserAgent
	}

	return &http.Client{
		Timeout:   timeout,
		Jar:       opts.Jar,
		Transport: &userAgentTransport{base: transport, userAgent: userAgent},
	}, nil
}

func proxyFunc(raw string) (func(*http.Request) (*url.URL, error), error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return http.ProxyFromEnvironment, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid proxy url %q: scheme and host are required", raw)
	}

	return http.ProxyURL(u), nil
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(clone)
}

// DrainAndClose discards a bounded amount of the body and closes it.
func DrainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	_ = resp.Body.Close()
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// CheckStatus returns a *StatusError when resp is not 2xx. A short excerpt of
// the body is kept for the error message.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{
		Method:     resp.Request.Method,
		URL:        RedactURL(resp.Request.URL),
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(excerpt)),
	}
}

// RedactURL renders u with credential query parameters masked.
func RedactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	redacted := *u
	q := redacted.Query()
	for _, key := range []string{"apikey", "password"} {
		if q.Has(key) {
			q.Set(key, "REDACTED")
		}
	}
	redacted.RawQuery = q.Encode()
	return redacted.String()
}
