// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/autobrr/indexbridge/internal/buildinfo"
	"github.com/autobrr/indexbridge/internal/config"
	"github.com/autobrr/indexbridge/internal/domain"
	"github.com/autobrr/indexbridge/internal/filter"
	"github.com/autobrr/indexbridge/internal/models"
	"github.com/autobrr/indexbridge/internal/services/bridge"
	"github.com/autobrr/indexbridge/internal/services/jackett"
	"github.com/autobrr/indexbridge/internal/services/prowlarr"
	"github.com/autobrr/indexbridge/internal/torznab"
)

const cliTimeout = 5 * time.Minute

func newManager(name string, mc domain.ManagerConfig) (bridge.Manager, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "jackett":
		return jackett.NewClient(mc.Normalized()), nil
	case "prowlarr":
		return prowlarr.NewClient(mc.Normalized()), nil
	default:
		return nil, fmt.Errorf("unknown manager %q (want one of %s)", name, strings.Join(config.Managers, ", "))
	}
}

// startCLIBridge runs a bridge without registry or recurring schedule for a
// single command invocation. The manager is enabled regardless of config.
func startCLIBridge(ctx context.Context, configDir, name string) (*bridge.Bridge, error) {
	cfg, err := config.New(configDir, buildinfo.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize configuration: %w", err)
	}
	cfg.ApplyLogConfig()

	snapshot := cfg.Snapshot()
	mc, ok := snapshot.Manager(name)
	if !ok {
		return nil, fmt.Errorf("unknown manager %q (want one of %s)", name, strings.Join(config.Managers, ", "))
	}
	if !mc.Configured() {
		return nil, fmt.Errorf("%s is missing host or apiKey in the configuration", name)
	}
	mc.Enabled = true
	mc.OnlyOnce = false

	manager, err := newManager(name, mc)
	if err != nil {
		return nil, err
	}

	b := bridge.New(manager, nil, bridge.NewCronScheduler())
	b.Start(ctx, mc)
	return b, nil
}

func RunDiscoverCommand() *cobra.Command {
	var (
		configDir string
		manager   string
		nameLike  string
		output    string
	)

	command := &cobra.Command{
		Use:   "discover",
		Short: "List the indexers a manager exposes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), cliTimeout)
			defer cancel()

			b, err := startCLIBridge(ctx, configDir, manager)
			if err != nil {
				return err
			}
			defer b.Stop()

			// Start already ran the initial refresh
			all := b.Identities()
			if st := b.Status(); len(all) == 0 && st.LastError != "" {
				return fmt.Errorf("discover %s: %s", manager, st.LastError)
			}

			identities := filter.MatchName(nameLike, all)
			return writeIdentities(cmd.OutOrStdout(), output, identities)
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory or file path (defaults to OS-specific location)")
	command.Flags().StringVarP(&manager, "manager", "m", "jackett", "manager to query: "+strings.Join(config.Managers, ", "))
	command.Flags().StringVar(&nameLike, "filter", "", "fuzzy filter on indexer name")
	command.Flags().StringVarP(&output, "output", "o", "table", "output format: table, json or yaml")

	return command
}

func RunSearchCommand() *cobra.Command {
	var (
		configDir string
		manager   string
		indexer   string
		mediaType string
		page      int
		expr      string
	)

	command := &cobra.Command{
		Use:   "search [keywords...]",
		Short: "Search one indexer through its manager",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if page < 0 {
				return fmt.Errorf("page must not be negative")
			}

			program, err := filter.Compile(expr)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cliTimeout)
			defer cancel()

			b, err := startCLIBridge(ctx, configDir, manager)
			if err != nil {
				return err
			}
			defer b.Stop()

			identity, ok := b.Lookup(indexer)
			if !ok && len(b.ListIdentities(ctx)) > 0 {
				identity, ok = b.Lookup(indexer)
			}
			if !ok {
				return fmt.Errorf("indexer %q not found in %s, run discover to list domains", indexer, manager)
			}

			results := make([]models.SearchResult, 0)
			for _, r := range b.Search(ctx, identity, args, torznab.ParseMediaKind(mediaType), page) {
				if r.Valid() {
					results = append(results, r)
				}
			}

			printResults(cmd.OutOrStdout(), program.Apply(results))
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory or file path (defaults to OS-specific location)")
	command.Flags().StringVarP(&manager, "manager", "m", "jackett", "manager to query: "+strings.Join(config.Managers, ", "))
	command.Flags().StringVarP(&indexer, "indexer", "i", "", "indexer domain, e.g. jackett.1337x")
	command.Flags().StringVarP(&mediaType, "type", "t", "", "media type: movie or tv (default both)")
	command.Flags().IntVarP(&page, "page", "p", 0, "result page")
	command.Flags().StringVar(&expr, "expr", "", `filter expression, e.g. 'Seeders > 5 && Resolution == "1080p"'`)
	_ = command.MarkFlagRequired("indexer")

	return command
}

func writeIdentities(out io.Writer, format string, identities []models.IndexerIdentity) error {
	if identities == nil {
		identities = []models.IndexerIdentity{}
	}

	switch strings.ToLower(format) {
	case "", "table":
		printIdentities(out, identities)
		return nil
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(identities)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(identities); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func printIdentities(out io.Writer, identities []models.IndexerIdentity) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DOMAIN\tNAME\tNATIVE ID")
	for _, identity := range identities {
		fmt.Fprintf(w, "%s\t%s\t%s\n", identity.Domain, identity.Name, identity.NativeID)
	}
	w.Flush()
	fmt.Fprintf(out, "\n%d indexers\n", len(identities))
}

func printResults(out io.Writer, results []models.SearchResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TITLE\tSIZE\tSEEDERS\tPUBLISHED")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.Title, humanize.Bytes(uint64(max(r.Size, 0))), r.Seeders, published(r.PublishDate))
	}
	w.Flush()
	fmt.Fprintf(out, "\n%d results\n", len(results))
}

func published(date string) string {
	if date == "" {
		return "-"
	}
	t, err := time.Parse(torznab.DateLayout, date)
	if err != nil {
		return date
	}
	return humanize.Time(t)
}
