// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package bridge

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/autobrr/indexbridge/internal/httpclient"
)

// escalationPeriods defines backoff durations for repeated rate limit failures.
// Escalates with consecutive failures, resets on success.
var escalationPeriods = []time.Duration{
	0,               // Level 0: immediate retry
	1 * time.Minute, // Level 1
	5 * time.Minute, // Level 2
	15 * time.Minute,
	30 * time.Minute,
	1 * time.Hour,
	3 * time.Hour,
	6 * time.Hour,
	12 * time.Hour,
	24 * time.Hour, // Level 9 (max)
}

type cooldownState struct {
	until           time.Time
	escalationLevel int
}

// Cooldowns tracks rate limited indexers by synthetic domain.
type Cooldowns struct {
	mu     sync.Mutex
	now    func() time.Time
	states map[string]*cooldownState
}

func NewCooldowns() *Cooldowns {
	return &Cooldowns{
		now:    time.Now,
		states: make(map[string]*cooldownState),
	}
}

// RecordFailure increments the escalation level and starts a cooldown for it.
func (c *Cooldowns) RecordFailure(domain string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := c.getStateLocked(domain)
	if state.escalationLevel < len(escalationPeriods)-1 {
		state.escalationLevel++
	}

	cooldown := escalationPeriods[state.escalationLevel]
	if cooldown > 0 {
		state.until = c.now().Add(cooldown)
	}
	return cooldown
}

// RecordSuccess resets the escalation level.
func (c *Cooldowns) RecordSuccess(domain string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if state, ok := c.states[domain]; ok {
		state.escalationLevel = 0
		state.until = time.Time{}
	}
}

// Active reports whether domain is cooling down and until when.
func (c *Cooldowns) Active(domain string) (bool, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.states[domain]
	if !ok || state.until.IsZero() || !state.until.After(c.now()) {
		return false, time.Time{}
	}
	return true, state.until
}

// Snapshot returns the domains currently in cooldown.
func (c *Cooldowns) Snapshot() map[string]time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	out := make(map[string]time.Time)
	for domain, state := range c.states {
		if state.until.After(now) {
			out[domain] = state.until
		}
	}
	return out
}

func (c *Cooldowns) getStateLocked(domain string) *cooldownState {
	state, ok := c.states[domain]
	if !ok {
		state = &cooldownState{}
		c.states[domain] = state
	}
	return state
}

func isRateLimited(err error) bool {
	var statusErr *httpclient.StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests
}
