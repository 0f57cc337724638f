// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/autobrr/indexbridge/internal/dbinterface"
)

var ErrSiteNotFound = errors.New("site not found")

// Site is a registry row.
type Site struct {
	IndexerIdentity
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SiteStore is the persistent site registry keyed by synthetic domain.
type SiteStore struct {
	db dbinterface.Querier
}

func NewSiteStore(db dbinterface.Querier) *SiteStore {
	return &SiteStore{db: db}
}

const siteColumns = `domain, identity_id, name, native_id, url, manager, public, proxy, language, created_at, updated_at`

// Lookup returns the identity registered under domain, or nil when absent.
func (s *SiteStore) Lookup(ctx context.Context, domain string) (*IndexerIdentity, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return nil, nil
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE domain = ?`, domain)
	site, err := scanSite(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup site %s: %w", domain, err)
	}

	return &site.IndexerIdentity, nil
}

// Register stores identity under domain, replacing an existing row.
func (s *SiteStore) Register(ctx context.Context, domain string, identity IndexerIdentity) error {
	identity.Domain = strings.TrimSpace(domain)
	if err := identity.Validate(); err != nil {
		return err
	}

	const query = `
		INSERT INTO sites (domain, identity_id, name, native_id, url, manager, public, proxy, language)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET
			identity_id = excluded.identity_id,
			name = excluded.name,
			native_id = excluded.native_id,
			url = excluded.url,
			manager = excluded.manager,
			public = excluded.public,
			proxy = excluded.proxy,
			language = excluded.language,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := s.db.ExecContext(ctx, query,
		identity.Domain,
		identity.ID,
		identity.Name,
		identity.NativeID,
		identity.URL,
		identity.Manager,
		identity.Public,
		identity.Proxy,
		identity.Language,
	)
	if err != nil {
		return fmt.Errorf("register site %s: %w", identity.Domain, err)
	}

	return nil
}

// List returns every registered site ordered by manager and name.
func (s *SiteStore) List(ctx context.Context) ([]Site, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+siteColumns+` FROM sites ORDER BY manager, name`)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	sites := make([]Site, 0)
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		sites = append(sites, site)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sites: %w", err)
	}

	return sites, nil
}

// Delete removes the site registered under domain.
func (s *SiteStore) Delete(ctx context.Context, domain string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sites WHERE domain = ?`, strings.TrimSpace(domain))
	if err != nil {
		return fmt.Errorf("delete site %s: %w", domain, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete site rows affected: %w", err)
	}
	if affected == 0 {
		return ErrSiteNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSite(row rowScanner) (Site, error) {
	var (
		site     Site
		nativeID sql.NullString
		manager  sql.NullString
		language sql.NullString
	)

	err := row.Scan(
		&site.Domain,
		&site.ID,
		&site.Name,
		&nativeID,
		&site.URL,
		&manager,
		&site.Public,
		&site.Proxy,
		&language,
		&site.CreatedAt,
		&site.UpdatedAt,
	)
	if err != nil {
		return Site{}, err
	}

	site.NativeID = nativeID.String
	site.Manager = manager.String
	site.Language = language.String
	site.Result = true

	return site, nil
}
