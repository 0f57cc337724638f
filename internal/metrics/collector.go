// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package metrics exposes bridge activity as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/autobrr/indexbridge/internal/services/bridge"
)

const namespace = "indexbridge"

// Collector records discovery and search outcomes. It satisfies
// bridge.Observer.
type Collector struct {
	registry *prometheus.Registry

	discoveries   *prometheus.CounterVec
	indexers      *prometheus.GaugeVec
	searches      *prometheus.CounterVec
	searchResults *prometheus.CounterVec
	errors        *prometheus.CounterVec
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		discoveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "discovery_total",
				Help:      "Indexer discovery attempts by manager and result",
			},
			[]string{"manager", "result"},
		),
		indexers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "indexers",
				Help:      "Indexers returned by the last successful discovery",
			},
			[]string{"manager"},
		),
		searches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_requests_total",
				Help:      "Search requests sent to a manager by result",
			},
			[]string{"manager", "result"},
		),
		searchResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_results_total",
				Help:      "Search results returned by a manager",
			},
			[]string{"manager"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Bridge failures by manager and error kind",
			},
			[]string{"manager", "kind"},
		),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.discoveries,
		c.indexers,
		c.searches,
		c.searchResults,
		c.errors,
	)

	return c
}

// Registry returns the registry the collector's metrics live in.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) ObserveDiscovery(manager string, count int, err error) {
	if err != nil {
		c.discoveries.WithLabelValues(manager, "error").Inc()
		c.errors.WithLabelValues(manager, string(bridge.KindOf(err))).Inc()
		return
	}
	c.discoveries.WithLabelValues(manager, "success").Inc()
	c.indexers.WithLabelValues(manager).Set(float64(count))
}

func (c *Collector) ObserveSearch(manager string, results int, err error) {
	if err != nil {
		c.searches.WithLabelValues(manager, "error").Inc()
		c.errors.WithLabelValues(manager, string(bridge.KindOf(err))).Inc()
		return
	}
	c.searches.WithLabelValues(manager, "success").Inc()
	c.searchResults.WithLabelValues(manager).Add(float64(results))
}
