// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"strings"
)

// DefaultCron refreshes the indexer list once a day.
const DefaultCron = "0 0 */24 * *"

// Config represents the application configuration
type Config struct {
	Version               string
	Host                  string `toml:"host" mapstructure:"host"`
	Port                  int    `toml:"port" mapstructure:"port"`
	BaseURL               string `toml:"baseUrl" mapstructure:"baseUrl"`
	APIKey                string `toml:"apiKey" mapstructure:"apiKey"`
	LogLevel              string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath               string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize            int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups         int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`
	DataDir               string `toml:"dataDir" mapstructure:"dataDir"`
	MetricsEnabled        bool   `toml:"metricsEnabled" mapstructure:"metricsEnabled"`
	MetricsHost           string `toml:"metricsHost" mapstructure:"metricsHost"`
	MetricsPort           int    `toml:"metricsPort" mapstructure:"metricsPort"`
	MetricsBasicAuthUsers string `toml:"metricsBasicAuthUsers" mapstructure:"metricsBasicAuthUsers"`

	// ProxyURL is used by managers with proxy enabled. Empty falls back to the
	// HTTP_PROXY/HTTPS_PROXY environment.
	ProxyURL string `toml:"proxyUrl" mapstructure:"proxyUrl"`
	// RequestTimeout bounds every outbound call, in seconds.
	RequestTimeout int `toml:"requestTimeout" mapstructure:"requestTimeout"`

	Jackett  ManagerConfig `toml:"jackett" mapstructure:"jackett"`
	Prowlarr ManagerConfig `toml:"prowlarr" mapstructure:"prowlarr"`
}

// ManagerConfig holds the connection and scheduling settings for one indexer manager.
type ManagerConfig struct {
	Enabled  bool   `toml:"enabled" mapstructure:"enabled"`
	Host     string `toml:"host" mapstructure:"host"`
	APIKey   string `toml:"apiKey" mapstructure:"apiKey"`
	Password string `toml:"password" mapstructure:"password"`
	Proxy    bool   `toml:"proxy" mapstructure:"proxy"`
	Cron     string `toml:"cron" mapstructure:"cron"`
	OnlyOnce bool   `toml:"onlyOnce" mapstructure:"onlyOnce"`

	// Filled from the top-level config when the manager section is resolved.
	ProxyURL       string `toml:"-" mapstructure:"-"`
	TimeoutSeconds int    `toml:"-" mapstructure:"-"`
}

// Manager returns the settings for the named manager with the shared
// transport settings applied.
func (c *Config) Manager(name string) (ManagerConfig, bool) {
	var mc ManagerConfig
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "jackett":
		mc = c.Jackett
	case "prowlarr":
		mc = c.Prowlarr
	default:
		return ManagerConfig{}, false
	}

	mc.ProxyURL = c.ProxyURL
	mc.TimeoutSeconds = c.RequestTimeout
	return mc, true
}

// Normalized returns a copy with the host normalized and the cron defaulted.
func (m ManagerConfig) Normalized() ManagerConfig {
	m.Host = NormalizeHost(m.Host)
	m.APIKey = strings.TrimSpace(m.APIKey)
	m.Cron = strings.TrimSpace(m.Cron)
	if m.Cron == "" {
		m.Cron = DefaultCron
	}
	return m
}

// Configured reports whether the manager has enough settings to be contacted.
func (m ManagerConfig) Configured() bool {
	return strings.TrimSpace(m.Host) != "" && strings.TrimSpace(m.APIKey) != ""
}

// NormalizeHost prefixes a scheme when missing and strips trailing slashes.
func NormalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return strings.TrimRight(host, "/")
}
