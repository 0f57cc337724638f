// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package filter narrows search results with expr-lang expressions and
// indexer lists with fuzzy name matching.
package filter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/indexbridge/internal/models"
)

var programCache = ttlcache.New(ttlcache.Options[string, *vm.Program]{}.SetDefaultTTL(5 * time.Minute))

// Program is a compiled boolean expression over models.SearchResult fields,
// e.g. `Seeders > 5 && Resolution == "1080p"`.
type Program struct {
	source  string
	program *vm.Program
}

// Compile compiles expression. An empty expression yields a nil Program,
// which matches everything.
func Compile(expression string) (*Program, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, nil
	}

	if p, ok := programCache.Get(expression); ok {
		return &Program{source: expression, program: p}, nil
	}

	p, err := expr.Compile(expression, expr.Env(models.SearchResult{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile filter %q: %w", expression, err)
	}
	programCache.Set(expression, p, ttlcache.DefaultTTL)

	return &Program{source: expression, program: p}, nil
}

func (p *Program) String() string {
	if p == nil {
		return ""
	}
	return p.source
}

// Match evaluates the expression against r.
func (p *Program) Match(r models.SearchResult) (bool, error) {
	if p == nil {
		return true, nil
	}

	out, err := expr.Run(p.program, r)
	if err != nil {
		return false, err
	}
	matched, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("filter %q returned %T, want bool", p.source, out)
	}
	return matched, nil
}

// Apply returns the results the expression matches, in order. Evaluation
// errors skip the result and are logged.
func (p *Program) Apply(results []models.SearchResult) []models.SearchResult {
	if p == nil {
		return results
	}

	out := make([]models.SearchResult, 0, len(results))
	for _, r := range results {
		matched, err := p.Match(r)
		if err != nil {
			log.Debug().Err(err).Str("title", r.Title).Msg("Failed to evaluate filter")
			continue
		}
		if matched {
			out = append(out, r)
		}
	}
	return out
}

type identityMatch struct {
	identity models.IndexerIdentity
	score    int
}

// MatchName returns the identities whose display or native name fuzzily
// contains needle, best match first. An empty needle returns all of them.
func MatchName(needle string, identities []models.IndexerIdentity) []models.IndexerIdentity {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return identities
	}

	matches := make([]identityMatch, 0, len(identities))
	for _, identity := range identities {
		best := -1
		for _, candidate := range []string{identity.Name, identity.NativeID, identity.Domain} {
			if candidate == "" || !fuzzy.MatchNormalizedFold(needle, candidate) {
				continue
			}
			score := fuzzy.RankMatchNormalizedFold(needle, candidate)
			if best < 0 || score < best {
				best = score
			}
		}
		if best >= 0 {
			matches = append(matches, identityMatch{identity: identity, score: best})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score < matches[j].score
	})

	out := make([]models.IndexerIdentity, len(matches))
	for i, m := range matches {
		out[i] = m.identity
	}
	return out
}
