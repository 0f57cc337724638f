// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package bridge exposes the indexers of one indexer manager to the site
// registry and answers searches against them.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/avast/retry-go"
	"github.com/cespare/xxhash/v2"
	"github.com/moistari/rls"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/autobrr/indexbridge/internal/domain"
	"github.com/autobrr/indexbridge/internal/models"
	"github.com/autobrr/indexbridge/internal/torznab"
)

const (
	// DefaultSearchLimit is the page size requested from managers that page.
	DefaultSearchLimit = 300

	defaultOnlyOnceDelay  = 3 * time.Second
	defaultRetryAttempts  = 3
	defaultRetryDelay     = 2 * time.Second
	defaultRefreshTimeout = 2 * time.Minute
	versionProbeTimeout   = 10 * time.Second
)

var ErrNotRunning = errors.New("bridge is not running")

// Registry is the host's site registry keyed by synthetic domain.
type Registry interface {
	Lookup(ctx context.Context, domain string) (*models.IndexerIdentity, error)
	Register(ctx context.Context, domain string, identity models.IndexerIdentity) error
}

type Scheduler interface {
	ScheduleRecurring(spec string, fn func()) error
	ScheduleOnce(delay time.Duration, fn func())
	CancelAll()
	Stop()
}

// Manager is a client for one indexer manager.
type Manager interface {
	Name() string
	OriginTag() string
	Discover(ctx context.Context) ([]models.IndexerIdentity, error)
	Search(ctx context.Context, identity models.IndexerIdentity, q Query) ([]models.SearchResult, error)
}

// Configurable managers receive the normalized settings on every Start.
type Configurable interface {
	Configure(cfg domain.ManagerConfig) error
}

// VersionProber managers report their server version, which is checked
// against MinimumVersion on Start.
type VersionProber interface {
	ServerVersion(ctx context.Context) (string, error)
	MinimumVersion() string
}

// Query is one keyword search against one indexer.
type Query struct {
	Keyword    string
	Categories []int
	Offset     int
	Limit      int
}

type Observer interface {
	ObserveDiscovery(manager string, count int, err error)
	ObserveSearch(manager string, results int, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveDiscovery(string, int, error) {}
func (nopObserver) ObserveSearch(string, int, error)    {}

type State int32

const (
	StateDisabled State = iota
	StateInitializing
	StateIdle
	StateRefreshing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateInitializing:
		return "initializing"
	case StateIdle:
		return "idle"
	case StateRefreshing:
		return "refreshing"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Status is a point in time view of a bridge.
type Status struct {
	Manager     string    `json:"manager"`
	State       string    `json:"state"`
	Healthy     bool      `json:"healthy"`
	Indexers    int       `json:"indexers"`
	Version     string    `json:"version,omitempty"`
	LastRefresh time.Time `json:"lastRefresh,omitzero"`
	LastError   string    `json:"lastError,omitempty"`
	// RateLimited maps synthetic domains to the end of their cooldown.
	RateLimited map[string]time.Time `json:"rateLimited,omitempty"`
}

type Option func(*Bridge)

func WithObserver(o Observer) Option {
	return func(b *Bridge) {
		if o != nil {
			b.observer = o
		}
	}
}

// WithOnlyOnceClearer sets the callback that persists a cleared onlyOnce flag.
func WithOnlyOnceClearer(fn func() error) Option {
	return func(b *Bridge) {
		b.clearOnlyOnce = fn
	}
}

func WithOnlyOnceDelay(d time.Duration) Option {
	return func(b *Bridge) {
		if d >= 0 {
			b.onlyOnceDelay = d
		}
	}
}

func WithRetry(attempts uint, delay time.Duration) Option {
	return func(b *Bridge) {
		if attempts > 0 {
			b.retryAttempts = attempts
		}
		if delay >= 0 {
			b.retryDelay = delay
		}
	}
}

func WithRefreshTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.refreshTimeout = d
		}
	}
}

// Bridge owns the identity cache of one manager.
type Bridge struct {
	manager   Manager
	registry  Registry
	scheduler Scheduler
	observer  Observer
	cooldowns *Cooldowns
	log       zerolog.Logger

	clearOnlyOnce  func() error
	onlyOnceDelay  time.Duration
	retryAttempts  uint
	retryDelay     time.Duration
	refreshTimeout time.Duration
	searchLimit    int

	identities atomic.Pointer[[]models.IndexerIdentity]
	state      atomic.Int32
	generation atomic.Uint64
	signature  atomic.Uint64
	group      singleflight.Group

	// mu serializes Start and Stop.
	mu     sync.Mutex
	cfg    domain.ManagerConfig
	cancel context.CancelFunc

	statusMu    sync.RWMutex
	version     string
	lastRefresh time.Time
	lastErr     error
}

// New returns a bridge in the Disabled state. registry may be nil, in which
// case discovered identities are cached but not registered.
func New(manager Manager, registry Registry, scheduler Scheduler, opts ...Option) *Bridge {
	b := &Bridge{
		manager:        manager,
		registry:       registry,
		scheduler:      scheduler,
		observer:       nopObserver{},
		cooldowns:      NewCooldowns(),
		log:            log.With().Str("manager", manager.Name()).Logger(),
		onlyOnceDelay:  defaultOnlyOnceDelay,
		retryAttempts:  defaultRetryAttempts,
		retryDelay:     defaultRetryDelay,
		refreshTimeout: defaultRefreshTimeout,
		searchLimit:    DefaultSearchLimit,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.state.Store(int32(StateDisabled))
	return b
}

func (b *Bridge) Name() string {
	return b.manager.Name()
}

func (b *Bridge) State() State {
	return State(b.state.Load())
}

func (b *Bridge) setState(s State) {
	b.state.Store(int32(s))
}

// Start applies cfg, schedules the refresh jobs and fills the cache when it
// is empty. It does not return an error; failures are logged.
func (b *Bridge) Start(ctx context.Context, cfg domain.ManagerConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.scheduler.CancelAll()
	gen := b.generation.Add(1)
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}

	cfg = cfg.Normalized()
	b.cfg = cfg

	if !cfg.Enabled {
		b.setState(StateDisabled)
		b.log.Info().Msg("Indexer manager disabled")
		return
	}

	b.setState(StateInitializing)

	if c, ok := b.manager.(Configurable); ok {
		if err := c.Configure(cfg); err != nil {
			b.logFailure(err, "Failed to apply manager settings")
		}
	}

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.cancel = cancel

	if err := b.scheduler.ScheduleRecurring(cfg.Cron, func() {
		b.scheduledRefresh(jobCtx, "cron")
	}); err != nil {
		b.log.Error().Err(err).Str("cron", cfg.Cron).Msg("Invalid refresh schedule, periodic refresh disabled")
	}

	if cfg.OnlyOnce {
		b.scheduler.ScheduleOnce(b.onlyOnceDelay, func() {
			b.scheduledRefresh(jobCtx, "onlyOnce")
		})
		b.cfg.OnlyOnce = false
		if b.clearOnlyOnce != nil {
			if err := b.clearOnlyOnce(); err != nil {
				b.log.Error().Err(err).Msg("Failed to persist cleared onlyOnce flag")
			}
		}
	}

	b.probeVersion(ctx)

	if len(b.snapshot()) == 0 {
		if err := b.refresh(ctx, gen); err != nil {
			b.logFailure(err, "Initial indexer refresh failed")
		}
	}

	if b.generation.Load() == gen {
		b.setState(StateIdle)
	}

	b.log.Info().
		Str("host", cfg.Host).
		Str("cron", cfg.Cron).
		Int("indexers", len(b.snapshot())).
		Msg("Indexer manager started")
}

// Stop cancels every job and halts the scheduler. In-flight refreshes finish
// but their results are dropped. Stop is idempotent.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.State() == StateStopped {
		return
	}

	b.generation.Add(1)
	b.scheduler.CancelAll()
	b.scheduler.Stop()
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.setState(StateStopped)

	b.log.Info().Msg("Indexer manager stopped")
}

// Reconfigure restarts the bridge with cfg. The cache is kept unless the
// manager endpoint or credentials changed.
func (b *Bridge) Reconfigure(ctx context.Context, cfg domain.ManagerConfig) {
	b.mu.Lock()
	prev := b.cfg
	b.mu.Unlock()

	next := cfg.Normalized()
	if prev.Host != next.Host || prev.APIKey != next.APIKey || prev.Password != next.Password {
		b.identities.Store(nil)
		b.signature.Store(0)
	}

	b.Stop()
	b.Start(ctx, cfg)
}

// Refresh runs discovery and replaces the cache on success. Concurrent calls
// share one discovery. On failure the cache is left unchanged.
func (b *Bridge) Refresh(ctx context.Context) error {
	return b.refresh(ctx, b.generation.Load())
}

func (b *Bridge) refresh(ctx context.Context, gen uint64) error {
	switch b.State() {
	case StateDisabled, StateStopped:
		return ErrNotRunning
	}

	ch := b.group.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		return nil, b.runRefresh(context.WithoutCancel(ctx), gen)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bridge) runRefresh(ctx context.Context, gen uint64) error {
	ctx, cancel := context.WithTimeout(ctx, b.refreshTimeout)
	defer cancel()

	restore := b.state.CompareAndSwap(int32(StateIdle), int32(StateRefreshing))
	defer func() {
		if restore {
			b.state.CompareAndSwap(int32(StateRefreshing), int32(StateIdle))
		}
	}()

	identities, err := b.discover(ctx)
	b.observer.ObserveDiscovery(b.manager.Name(), len(identities), err)
	if err != nil {
		b.recordRefresh(err)
		return err
	}

	if b.generation.Load() != gen {
		b.log.Debug().Msg("Discarding indexer refresh superseded by stop or restart")
		return nil
	}

	identities = b.accept(identities)
	b.identities.Store(&identities)
	b.recordRefresh(nil)

	sig := signature(identities)
	if old := b.signature.Swap(sig); old != sig {
		b.log.Info().
			Int("indexers", len(identities)).
			Str("signature", strconv.FormatUint(sig, 16)).
			Msg("Indexer set changed")
	}

	b.register(ctx, identities)

	return nil
}

func (b *Bridge) discover(ctx context.Context) ([]models.IndexerIdentity, error) {
	var identities []models.IndexerIdentity

	err := retry.Do(
		func() error {
			var err error
			identities, err = b.manager.Discover(ctx)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(b.retryAttempts),
		retry.Delay(b.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return IsKind(err, KindTransportFailure)
		}),
		retry.OnRetry(func(n uint, err error) {
			b.log.Debug().Err(err).Uint("attempt", n+1).Msg("Retrying indexer discovery")
		}),
	)
	if err != nil {
		return nil, err
	}

	return identities, nil
}

// accept drops identities that do not carry this manager's prefix or a domain.
func (b *Bridge) accept(identities []models.IndexerIdentity) []models.IndexerIdentity {
	name := b.manager.Name()
	out := make([]models.IndexerIdentity, 0, len(identities))
	for _, identity := range identities {
		if identity.ManagerPrefix() != name || strings.TrimSpace(identity.Domain) == "" {
			b.logFailure(NewError(KindIdentityMismatch, "discover", fmt.Errorf("identity %q does not belong to %s", identity.Name, name)),
				"Skipping discovered indexer")
			continue
		}
		out = append(out, identity)
	}
	return out
}

func (b *Bridge) register(ctx context.Context, identities []models.IndexerIdentity) {
	if b.registry == nil {
		return
	}

	for _, identity := range identities {
		existing, err := b.registry.Lookup(ctx, identity.Domain)
		if err != nil {
			b.log.Warn().Err(err).Str("domain", identity.Domain).Msg("Site registry lookup failed")
			continue
		}
		if existing != nil {
			continue
		}

		if err := b.registry.Register(ctx, identity.Domain, identity); err != nil {
			b.log.Warn().Err(err).Str("domain", identity.Domain).Msg("Failed to register site")
			continue
		}
		b.log.Info().Str("domain", identity.Domain).Str("indexer", identity.Name).Msg("Registered new site")
	}
}

func (b *Bridge) scheduledRefresh(ctx context.Context, trigger string) {
	if err := b.Refresh(ctx); err != nil {
		if errors.Is(err, ErrNotRunning) || errors.Is(err, context.Canceled) {
			return
		}
		b.logFailure(err, "Scheduled indexer refresh failed")
		return
	}
	b.log.Debug().Str("trigger", trigger).Msg("Scheduled indexer refresh finished")
}

// Search fans the keywords out to identity and returns the concatenated
// results in keyword order. Failures are logged and yield no results.
func (b *Bridge) Search(ctx context.Context, identity models.IndexerIdentity, keywords []string, kind torznab.MediaKind, page int) []models.SearchResult {
	results := make([]models.SearchResult, 0)

	switch b.State() {
	case StateDisabled, StateStopped:
		return results
	}

	terms := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			terms = append(terms, kw)
		}
	}
	if len(terms) == 0 {
		return results
	}

	name := b.manager.Name()
	if identity.ManagerPrefix() != name {
		err := NewError(KindIdentityMismatch, "search", fmt.Errorf("identity %q does not belong to %s", identity.Name, name))
		b.observer.ObserveSearch(name, 0, err)
		b.logFailure(err, "Search rejected")
		return results
	}

	if len(b.snapshot()) == 0 {
		if err := b.Refresh(ctx); err != nil {
			b.logFailure(err, "Lazy indexer refresh failed")
		}
	}

	if active, until := b.cooldowns.Active(identity.Domain); active {
		b.log.Warn().
			Str("indexer", identity.Name).
			Time("until", until).
			Msg("Indexer is rate limited, skipping search")
		return results
	}

	if page < 0 {
		page = 0
	}
	categories := torznab.CategoriesFor(kind)

	for _, term := range terms {
		q := Query{
			Keyword:    term,
			Categories: categories,
			Offset:     page * b.searchLimit,
			Limit:      b.searchLimit,
		}

		found, err := b.manager.Search(ctx, identity, q)
		b.observer.ObserveSearch(name, len(found), err)
		if err != nil {
			b.logFailure(err, "Search failed")
			if isRateLimited(err) {
				cooldown := b.cooldowns.RecordFailure(identity.Domain)
				b.log.Warn().
					Str("indexer", identity.Name).
					Dur("cooldown", cooldown).
					Msg("Indexer rate limited, backing off")
				break
			}
			continue
		}
		b.cooldowns.RecordSuccess(identity.Domain)

		for _, r := range found {
			results = append(results, b.enrich(identity, r))
		}
	}

	b.log.Debug().
		Str("indexer", identity.Name).
		Strs("keywords", terms).
		Int("results", len(results)).
		Msg("Search finished")

	return results
}

func (b *Bridge) enrich(identity models.IndexerIdentity, r models.SearchResult) models.SearchResult {
	r.Indexer = identity.Name
	r.OriginTag = b.manager.OriginTag()

	if r.Title != "" {
		rel := rls.ParseString(r.Title)
		r.Resolution = rel.Resolution
		r.Source = rel.Source
		r.Group = rel.Group
		r.Year = rel.Year
	}

	return r
}

// ListIdentities returns a copy of the cache, refreshing first when it is
// empty.
func (b *Bridge) ListIdentities(ctx context.Context) []models.IndexerIdentity {
	if len(b.snapshot()) == 0 {
		if err := b.Refresh(ctx); err != nil && !errors.Is(err, ErrNotRunning) {
			b.logFailure(err, "Lazy indexer refresh failed")
		}
	}
	return b.Identities()
}

// Identities returns a copy of the cache without refreshing.
func (b *Bridge) Identities() []models.IndexerIdentity {
	return slices.Clone(b.snapshot())
}

// Lookup returns the cached identity with the given synthetic domain.
func (b *Bridge) Lookup(domainName string) (models.IndexerIdentity, bool) {
	for _, identity := range b.snapshot() {
		if identity.Domain == domainName {
			return identity, true
		}
	}
	return models.IndexerIdentity{}, false
}

func (b *Bridge) IsHealthy() bool {
	return len(b.snapshot()) > 0
}

func (b *Bridge) Status() Status {
	b.statusMu.RLock()
	defer b.statusMu.RUnlock()

	st := Status{
		Manager:     b.manager.Name(),
		State:       b.State().String(),
		Healthy:     b.IsHealthy(),
		Indexers:    len(b.snapshot()),
		Version:     b.version,
		LastRefresh: b.lastRefresh,
	}
	if b.lastErr != nil {
		st.LastError = b.lastErr.Error()
	}
	if cooling := b.cooldowns.Snapshot(); len(cooling) > 0 {
		st.RateLimited = cooling
	}
	return st
}

func (b *Bridge) snapshot() []models.IndexerIdentity {
	p := b.identities.Load()
	if p == nil {
		return nil
	}
	return *p
}

func (b *Bridge) recordRefresh(err error) {
	b.statusMu.Lock()
	defer b.statusMu.Unlock()

	b.lastErr = err
	if err == nil {
		b.lastRefresh = time.Now()
	}
}

func (b *Bridge) probeVersion(ctx context.Context) {
	prober, ok := b.manager.(VersionProber)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
	defer cancel()

	raw, err := prober.ServerVersion(ctx)
	if err != nil {
		b.log.Debug().Err(err).Msg("Could not read manager version")
		return
	}

	b.statusMu.Lock()
	b.version = raw
	b.statusMu.Unlock()

	v, err := semver.NewVersion(coerceVersion(raw))
	if err != nil {
		b.log.Warn().Err(err).Str("version", raw).Msg("Failed to parse manager version")
		return
	}

	minimum, err := semver.NewVersion(prober.MinimumVersion())
	if err == nil && v.LessThan(minimum) {
		b.log.Warn().
			Str("version", raw).
			Str("minimum", minimum.String()).
			Msg("Manager version is older than supported, searches may fail")
		return
	}

	b.log.Info().Str("version", raw).Msg("Connected to indexer manager")
}

// coerceVersion trims four part .NET style versions ("1.10.5.4116") to
// major.minor.patch.
func coerceVersion(raw string) string {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "v")
	parts := strings.SplitN(raw, ".", 4)
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return strings.Join(parts, ".")
}

func (b *Bridge) logFailure(err error, msg string) {
	kind := KindOf(err)

	var ev *zerolog.Event
	switch kind {
	case KindConfigMissing, KindIdentityMismatch:
		ev = b.log.Warn()
	default:
		ev = b.log.Error()
	}

	ev.Err(err).Str("error_kind", string(kind)).Msg(msg)
}

// signature hashes the sorted domains and names of identities.
func signature(identities []models.IndexerIdentity) uint64 {
	keys := make([]string, 0, len(identities))
	for _, identity := range identities {
		keys = append(keys, identity.Domain+"\x00"+identity.Name)
	}
	sort.Strings(keys)

	h := xxhash.New()
	for _, k := range keys {
		_, _ = h.WriteString(k)
		_, _ = h.Write([]byte{0xff})
	}
	return h.Sum64()
}
