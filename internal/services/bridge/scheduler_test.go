// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package bridge

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronSchedulerRejectsInvalidSpec(t *testing.T) {
	s := NewCronScheduler()
	defer s.Stop()

	err := s.ScheduleRecurring("every tuesday", func() {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "every tuesday")
	assert.Zero(t, s.pending())

	require.NoError(t, s.ScheduleRecurring("0 0 */24 * *", func() {}))
	assert.Equal(t, 1, s.pending())
}

func TestCronSchedulerOnce(t *testing.T) {
	s := NewCronScheduler()
	defer s.Stop()

	fired := make(chan struct{})
	s.ScheduleOnce(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("one-shot job did not fire")
	}

	assert.Eventually(t, func() bool { return s.pending() == 0 }, time.Second, 10*time.Millisecond)
}

func TestCronSchedulerCancelAll(t *testing.T) {
	s := NewCronScheduler()
	defer s.Stop()

	var fired atomic.Int32
	s.ScheduleOnce(50*time.Millisecond, func() { fired.Add(1) })
	require.NoError(t, s.ScheduleRecurring("* * * * *", func() { fired.Add(1) }))
	assert.Equal(t, 2, s.pending())

	s.CancelAll()
	assert.Zero(t, s.pending())

	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, fired.Load())
}

func TestCronSchedulerRestartAfterStop(t *testing.T) {
	s := NewCronScheduler()

	require.NoError(t, s.ScheduleRecurring("@every 1s", func() {}))
	s.Stop()
	s.Stop()

	s.CancelAll()
	require.NoError(t, s.ScheduleRecurring("@every 1s", func() {}))

	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	assert.True(t, running)
	s.Stop()
}
