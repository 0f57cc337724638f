// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/indexbridge/internal/domain"
)

func TestDatabasePathResolution(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, tmpDir string) (configPath string, envDataDir string, expectedDBPath string)
	}{
		{
			name: "default_next_to_config",
			prepare: func(t *testing.T, tmpDir string) (string, string, string) {
				configPath := filepath.Join(tmpDir, "config.toml")
				content := "host = \"localhost\"\nport = 8080\n"
				require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
				return configPath, "", filepath.Join(tmpDir, "indexbridge.db")
			},
		},
		{
			name: "explicit_data_dir_in_config",
			prepare: func(t *testing.T, tmpDir string) (string, string, string) {
				configPath := filepath.Join(tmpDir, "config.toml")
				dataDir := filepath.Join(tmpDir, "data")
				require.NoError(t, os.MkdirAll(dataDir, 0o755))
				content := fmt.Sprintf("host = \"localhost\"\nport = 8080\ndataDir = %q\n", dataDir)
				require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
				return configPath, "", filepath.Join(dataDir, "indexbridge.db")
			},
		},
		{
			name: "env_var_override",
			prepare: func(t *testing.T, tmpDir string) (string, string, string) {
				configPath := filepath.Join(tmpDir, "config.toml")
				configDataDir := filepath.Join(tmpDir, "config-data")
				envDataDir := filepath.Join(tmpDir, "env-data")
				require.NoError(t, os.MkdirAll(configDataDir, 0o755))
				require.NoError(t, os.MkdirAll(envDataDir, 0o755))
				content := fmt.Sprintf("host = \"localhost\"\nport = 8080\ndataDir = %q\n", configDataDir)
				require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
				return configPath, envDataDir, filepath.Join(envDataDir, "indexbridge.db")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath, envValue, expectedDBPath := tt.prepare(t, tmpDir)
			if envValue != "" {
				t.Setenv(envPrefix+"DATA_DIR", envValue)
			}

			cfg, err := New(configPath)
			require.NoError(t, err)

			assert.Equal(t, filepath.Clean(expectedDBPath), filepath.Clean(cfg.GetDatabasePath()))
		})
	}
}

func TestConfigDirResolution(t *testing.T) {
	tests := []struct {
		name           string
		input          string
		setupFile      bool
		fileIsDir      bool
		expectedSuffix string
	}{
		{
			name:           "toml_file_extension",
			input:          "/path/to/custom.toml",
			expectedSuffix: "custom.toml",
		},
		{
			name:           "TOML_file_extension_uppercase",
			input:          "/path/to/CONFIG.TOML",
			expectedSuffix: "CONFIG.TOML",
		},
		{
			name:           "directory_path",
			input:          "/path/to/config",
			expectedSuffix: "config.toml",
		},
		{
			name:           "existing_file_without_toml",
			input:          "/path/to/configfile",
			setupFile:      true,
			expectedSuffix: "configfile",
		},
		{
			name:           "existing_directory",
			input:          "/path/to/configdir",
			setupFile:      true,
			fileIsDir:      true,
			expectedSuffix: "config.toml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			inputPath := filepath.Join(tmpDir, filepath.Base(tt.input))

			if tt.setupFile {
				if tt.fileIsDir {
					require.NoError(t, os.MkdirAll(inputPath, 0o755))
				} else {
					require.NoError(t, os.WriteFile(inputPath, []byte("test"), 0o644))
				}
			}

			result := ResolveConfigPath(inputPath)
			assert.True(t, strings.HasSuffix(result, tt.expectedSuffix),
				"Expected result %s to end with %s", result, tt.expectedSuffix)
		})
	}
}

func TestNewWritesDefaultConfig(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "fresh")

	cfg, err := New(configDir)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(configDir, "config.toml"))
	require.NoError(t, err)

	assert.Equal(t, 7480, cfg.Config.Port)
	assert.Equal(t, 60, cfg.Config.RequestTimeout)
	assert.False(t, cfg.Config.Jackett.Enabled)
	assert.Equal(t, "http://127.0.0.1:9117", cfg.Config.Jackett.Host)
	assert.Equal(t, domain.DefaultCron, cfg.Config.Prowlarr.Cron)
}

func TestManagerSectionsAndEnv(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `host = "localhost"
port = 8080

[jackett]
enabled = true
host = "jackett:9117"
apiKey = "jackett-key"
password = "secret"
onlyOnce = true

[prowlarr]
enabled = true
host = "http://prowlarr:9696/"
apiKey = "file-key"
cron = "*/30 * * * *"
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	t.Setenv(envPrefix+"PROWLARR_API_KEY", "env-key")

	cfg, err := New(configPath)
	require.NoError(t, err)

	jackett, ok := cfg.Config.Manager("jackett")
	require.True(t, ok)
	assert.True(t, jackett.Enabled)
	assert.Equal(t, "jackett-key", jackett.APIKey)
	assert.Equal(t, "secret", jackett.Password)
	assert.True(t, jackett.OnlyOnce)
	assert.Equal(t, 60, jackett.TimeoutSeconds)

	prowlarr, ok := cfg.Config.Manager("prowlarr")
	require.True(t, ok)
	assert.Equal(t, "env-key", prowlarr.APIKey)
	assert.Equal(t, "*/30 * * * *", prowlarr.Cron)
	assert.Equal(t, "http://prowlarr:9696", prowlarr.Normalized().Host)
}

func TestClearOnlyOncePersists(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := "host = \"localhost\"\nport = 8080\n\n[jackett]\nenabled = true\nonlyOnce = true\n"
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	cfg, err := New(configPath)
	require.NoError(t, err)
	require.True(t, cfg.Config.Jackett.OnlyOnce)

	require.NoError(t, cfg.ClearOnlyOnce("Jackett"))
	assert.False(t, cfg.Snapshot().Jackett.OnlyOnce)

	reloaded, err := New(configPath)
	require.NoError(t, err)
	assert.False(t, reloaded.Config.Jackett.OnlyOnce)
	assert.True(t, reloaded.Config.Jackett.Enabled)

	assert.Error(t, cfg.ClearOnlyOnce("sonarr"))
}

func TestBindOrReadFromFile(t *testing.T) {
	tmpKeyFile := func(t *testing.T, tmpDir string) string {
		path := filepath.Join(tmpDir, "key-file.txt")
		require.NoError(t, os.WriteFile(path, []byte("key-from-file\n"), 0o644))
		return path
	}

	noTmpKeyFile := func(t *testing.T, tmpDir string) string {
		return ""
	}

	tests := []struct {
		name            string
		envVarValue     string
		envVarFileValue func(t *testing.T, tmpDir string) string
		expectedValue   string
	}{
		{
			name:            "only_file_env_var",
			envVarFileValue: tmpKeyFile,
			expectedValue:   "key-from-file",
		},
		{
			name:            "only_plain_env_var",
			envVarValue:     "key-not-from-file",
			envVarFileValue: noTmpKeyFile,
			expectedValue:   "key-not-from-file",
		},
		{
			name:            "file_env_var_wins",
			envVarValue:     "key-not-from-file",
			envVarFileValue: tmpKeyFile,
			expectedValue:   "key-from-file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envVar := envPrefix + "API_KEY"

			if tt.envVarValue != "" {
				t.Setenv(envVar, tt.envVarValue)
			}

			if path := tt.envVarFileValue(t, t.TempDir()); path != "" {
				t.Setenv(envVar+"_FILE", path)
			}

			configPath := filepath.Join(t.TempDir(), "config.toml")
			require.NoError(t, os.WriteFile(configPath, []byte("host = \"localhost\"\n"), 0o644))

			cfg, err := New(configPath)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedValue, cfg.Config.APIKey)
		})
	}
}

func TestReloadListenersReceiveCopy(t *testing.T) {
	cfg := &AppConfig{Config: &domain.Config{Port: 1}}

	var got []int
	cfg.RegisterReloadListener(func(c *domain.Config) {
		got = append(got, c.Port)
		c.Port = 99
	})

	cfg.notifyListeners()

	assert.Equal(t, []int{1}, got)
	assert.Equal(t, 1, cfg.Config.Port)
}
