// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autobrr/indexbridge/internal/api"
	"github.com/autobrr/indexbridge/internal/api/handlers"
	"github.com/autobrr/indexbridge/internal/buildinfo"
	"github.com/autobrr/indexbridge/internal/config"
	"github.com/autobrr/indexbridge/internal/database"
	"github.com/autobrr/indexbridge/internal/domain"
	"github.com/autobrr/indexbridge/internal/metrics"
	"github.com/autobrr/indexbridge/internal/models"
	"github.com/autobrr/indexbridge/internal/services/bridge"
)

func main() {
	config.InitDefaultLogger(buildinfo.Version)

	var rootCmd = &cobra.Command{
		Use:   "indexbridge",
		Short: "Bridge Jackett and Prowlarr indexers into one search API",
		Long: `indexbridge - discovers the indexers configured in Jackett and Prowlarr,
registers them as sites and searches them through a single API.`,
	}

	rootCmd.Version = buildinfo.Version

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunVersionCommand())
	rootCmd.AddCommand(RunGenerateConfigCommand())
	rootCmd.AddCommand(RunDiscoverCommand())
	rootCmd.AddCommand(RunSearchCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RunServeCommand() *cobra.Command {
	var (
		configDir string
		dataDir   string
		logPath   string
		pprofFlag bool
	)

	var command = &cobra.Command{
		Use:   "serve",
		Short: "Start the server",
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory path (default is OS-specific: ~/.config/indexbridge/ or %APPDATA%\\indexbridge\\). Can also be a direct path to a .toml file")
	command.Flags().StringVar(&dataDir, "data-dir", "", "data directory for database and other files (default is next to config file)")
	command.Flags().StringVar(&logPath, "log-path", "", "log file path (default is stdout)")
	command.Flags().BoolVar(&pprofFlag, "pprof", false, "enable pprof server on :6060")

	command.Run = func(cmd *cobra.Command, args []string) {
		app := NewApplication(configDir, dataDir, logPath, pprofFlag)
		app.runServer()
	}

	return command
}

func RunVersionCommand() *cobra.Command {
	var command = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of indexbridge",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(buildinfo.String())
		},
	}

	return command
}

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		Long: `Generate a default configuration file without starting the server.

If no --config-dir is specified, uses the OS-specific default location:
- Linux/macOS: ~/.config/indexbridge/config.toml
- Windows: %APPDATA%\indexbridge\config.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var configPath string
			if configDir != "" {
				if strings.HasSuffix(strings.ToLower(configDir), ".toml") {
					configPath = configDir
				} else if info, err := os.Stat(configDir); err == nil && !info.IsDir() {
					configPath = configDir
				} else {
					configPath = filepath.Join(configDir, "config.toml")
				}
			} else {
				configPath = filepath.Join(config.GetDefaultConfigDir(), "config.toml")
			}

			if _, err := os.Stat(configPath); err == nil {
				cmd.Printf("Configuration file already exists at: %s\n", configPath)
				cmd.Println("Skipping generation to avoid overwriting existing configuration.")
				return nil
			}

			if err := config.WriteDefaultConfig(configPath); err != nil {
				return fmt.Errorf("failed to create configuration file: %w", err)
			}

			cmd.Printf("Configuration file created successfully at: %s\n", configPath)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")

	return command
}

type Application struct {
	configDir string
	dataDir   string
	logPath   string
	pprofFlag bool
}

func NewApplication(configDir, dataDir, logPath string, pprofFlag bool) *Application {
	return &Application{
		configDir: configDir,
		dataDir:   dataDir,
		logPath:   logPath,
		pprofFlag: pprofFlag,
	}
}

// bridgeSet owns one bridge per manager and applies config reloads to them.
type bridgeSet struct {
	mu      sync.Mutex
	bridges map[string]*bridge.Bridge
	applied map[string]domain.ManagerConfig
}

func (s *bridgeSet) start(ctx context.Context, name string, mc domain.ManagerConfig) {
	s.mu.Lock()
	s.applied[name] = mc
	b := s.bridges[name]
	s.mu.Unlock()

	b.Start(ctx, mc)
}

// reload reconfigures bridges whose settings changed. Clearing the
// run-once flag rewrites the config file, so a reload that only flips
// OnlyOnce off is ignored to keep the pending one-shot refresh. A reload
// with OnlyOnce set always restarts the bridge, which schedules the refresh.
func (s *bridgeSet) reload(ctx context.Context, cfg *domain.Config) {
	for _, name := range config.Managers {
		mc, ok := cfg.Manager(name)
		if !ok {
			continue
		}

		s.mu.Lock()
		prev, seen := s.applied[name]
		b := s.bridges[name]
		if b == nil {
			s.mu.Unlock()
			continue
		}
		if seen && !mc.OnlyOnce {
			prev.OnlyOnce = false
			if prev == mc {
				s.applied[name] = mc
				s.mu.Unlock()
				continue
			}
		}
		s.applied[name] = mc
		s.mu.Unlock()

		log.Info().Str("manager", b.Name()).Msg("Manager settings changed, restarting bridge")
		b.Reconfigure(ctx, mc)
	}
}

func (s *bridgeSet) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bridges {
		b.Stop()
	}
}

func (s *bridgeSet) list() []handlers.ManagerBridge {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]handlers.ManagerBridge, 0, len(s.bridges))
	for _, name := range config.Managers {
		if b, ok := s.bridges[name]; ok {
			out = append(out, b)
		}
	}
	return out
}

func (app *Application) runServer() {
	cfg, err := config.New(app.configDir, buildinfo.Version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize configuration")
	}

	// Override with CLI flags if provided
	if app.dataDir != "" {
		os.Setenv("INDEXBRIDGE__DATA_DIR", app.dataDir)
		cfg.SetDataDir(app.dataDir)
	}
	if app.logPath != "" {
		os.Setenv("INDEXBRIDGE__LOG_PATH", app.logPath)
		cfg.Config.LogPath = app.logPath
	}

	cfg.ApplyLogConfig()

	log.Info().Str("version", buildinfo.Version).Msg("Starting indexbridge")

	db, err := database.New(cfg.GetDatabasePath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	siteStore := models.NewSiteStore(db)
	collector := metrics.NewCollector()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snapshot := cfg.Snapshot()
	bridges := &bridgeSet{
		bridges: make(map[string]*bridge.Bridge),
		applied: make(map[string]domain.ManagerConfig),
	}

	var startWg sync.WaitGroup
	for _, name := range config.Managers {
		mc, _ := snapshot.Manager(name)

		manager, err := newManager(name, mc)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create manager client")
		}

		bridges.bridges[name] = bridge.New(manager, siteStore, bridge.NewCronScheduler(),
			bridge.WithObserver(collector),
			bridge.WithOnlyOnceClearer(func() error {
				return cfg.ClearOnlyOnce(name)
			}),
		)

		startWg.Add(1)
		go func() {
			defer startWg.Done()
			bridges.start(ctx, name, mc)
		}()
	}

	go func() {
		startWg.Wait()
		cfg.RegisterReloadListener(func(c *domain.Config) {
			bridges.reload(ctx, c)
		})
	}()

	httpServer := api.NewServer(&api.Dependencies{
		Config:    cfg,
		Version:   buildinfo.Version,
		Managers:  bridges.list(),
		SiteStore: siteStore,
	})

	errorChannel := make(chan error, 2)
	serverReady := make(chan struct{}, 1)
	go func() {
		if err := httpServer.ListenAndServeReady(serverReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errorChannel <- err
		}
	}()

	select {
	case <-serverReady:
	case err := <-errorChannel:
		log.Fatal().Err(err).Msg("failed to start HTTP server")
	}

	var metricsServer *metrics.Server
	if cfg.Config.MetricsEnabled {
		users, err := metrics.ParseBasicAuthUsers(cfg.Config.MetricsBasicAuthUsers)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid metricsBasicAuthUsers")
		}

		metricsServer = metrics.NewServer(collector, cfg.Config.MetricsHost, cfg.Config.MetricsPort, users)
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil {
				errorChannel <- err
			}
		}()
	}

	if app.pprofFlag {
		go func() {
			log.Info().Msg("Starting pprof server on :6060")
			log.Info().Msg("Access profiling at: http://localhost:6060/debug/pprof/")
			if err := http.ListenAndServe(":6060", nil); err != nil {
				log.Error().Err(err).Msg("Profiling server failed")
			}
		}()
	}

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Msgf("got signal %v, shutting down server", sig.String())
	case err := <-errorChannel:
		log.Error().Err(err).Msg("got unexpected error from server")
	}

	cancel()
	bridges.stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("got error during metrics server shutdown")
		}
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("got error during graceful http shutdown")
		db.Close()
		os.Exit(1)
	}

	log.Info().Msg("Server stopped")
}
