// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package bridge

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// CronScheduler runs recurring jobs with robfig/cron and one-shot jobs with
// tracked timers. The cron runner is started lazily and can be restarted
// after Stop.
type CronScheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	running bool
	entries []cron.EntryID
	timers  map[*time.Timer]struct{}
}

func NewCronScheduler() *CronScheduler {
	return &CronScheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cronLogger{}))),
		timers: make(map[*time.Timer]struct{}),
	}
}

// ScheduleRecurring registers fn under a standard five field cron spec.
func (s *CronScheduler) ScheduleRecurring(spec string, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(spec, fn)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	s.entries = append(s.entries, id)

	if !s.running {
		s.cron.Start()
		s.running = true
	}

	return nil
}

// ScheduleOnce runs fn once after delay unless cancelled first.
func (s *CronScheduler) ScheduleOnce(delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		_, live := s.timers[timer]
		delete(s.timers, timer)
		s.mu.Unlock()

		if live {
			fn()
		}
	})
	s.timers[timer] = struct{}{}
}

// CancelAll removes every recurring entry and pending one-shot.
func (s *CronScheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.entries {
		s.cron.Remove(id)
	}
	s.entries = nil

	for timer := range s.timers {
		timer.Stop()
	}
	clear(s.timers)
}

// Stop halts the cron runner without waiting for running jobs.
func (s *CronScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cron.Stop()
	s.running = false
}

// pending returns the number of scheduled recurring and one-shot jobs.
func (s *CronScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries) + len(s.timers)
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	log.Trace().Fields(keysAndValues).Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
