// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package bridge

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/autobrr/indexbridge/internal/httpclient"
)

func TestCooldownsEscalateAndReset(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCooldowns()
	c.now = func() time.Time { return now }

	active, _ := c.Active("jackett.a")
	assert.False(t, active)

	assert.Equal(t, time.Minute, c.RecordFailure("jackett.a"))
	assert.Equal(t, 5*time.Minute, c.RecordFailure("jackett.a"))

	active, until := c.Active("jackett.a")
	assert.True(t, active)
	assert.Equal(t, now.Add(5*time.Minute), until)
	assert.Len(t, c.Snapshot(), 1)

	now = now.Add(6 * time.Minute)
	active, _ = c.Active("jackett.a")
	assert.False(t, active, "cooldown expires")

	c.RecordSuccess("jackett.a")
	assert.Equal(t, time.Minute, c.RecordFailure("jackett.a"), "success resets escalation")
}

func TestCooldownsCapAtMaxLevel(t *testing.T) {
	c := NewCooldowns()
	var last time.Duration
	for range len(escalationPeriods) + 3 {
		last = c.RecordFailure("prowlarr.1")
	}
	assert.Equal(t, 24*time.Hour, last)
}

func TestIsRateLimited(t *testing.T) {
	limited := NewError(KindTransportFailure, "search", &httpclient.StatusError{StatusCode: http.StatusTooManyRequests})
	other := NewError(KindTransportFailure, "search", &httpclient.StatusError{StatusCode: http.StatusBadGateway})

	assert.True(t, isRateLimited(limited))
	assert.True(t, isRateLimited(fmt.Errorf("wrapped: %w", limited)))
	assert.False(t, isRateLimited(other))
	assert.False(t, isRateLimited(nil))
}
