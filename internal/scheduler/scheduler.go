// Package scheduler runs recurring RCON commands and the daily command
// history cleanup.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/energizer-project/rconbridge/internal/config"
	"github.com/energizer-project/rconbridge/internal/db"
	"github.com/energizer-project/rconbridge/internal/server"
	"github.com/energizer-project/rconbridge/internal/util"
)

// Scheduler manages periodic background tasks.
type Scheduler struct {
	cfg     *config.Config
	manager *server.Manager
	history *db.HistoryDatabase
	logger  zerolog.Logger
}

// NewScheduler creates a scheduler. history may be nil, in which case
// retention cleanup is skipped.
func NewScheduler(cfg *config.Config, manager *server.Manager, history *db.HistoryDatabase) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		manager: manager,
		history: history,
		logger:  util.ComponentLogger("scheduler"),
	}
}

// Start launches every task and blocks until ctx is cancelled and all
// tasks have returned.
func (s *Scheduler) Start(ctx context.Context) {
	appData := s.cfg.GetApplicationData()
	var wg sync.WaitGroup

	for _, sc := range appData.Schedules {
		if sc.IntervalSec <= 0 {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runScheduleLoop(ctx, sc)
		}()
	}

	if s.history != nil && appData.History.Enabled && appData.History.RetentionDays > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runCleanupLoop(ctx)
		}()
	}

	s.logger.Info().Int("schedules", len(appData.Schedules)).Msg("scheduler started")

	<-ctx.Done()
	wg.Wait()
	s.logger.Info().Msg("scheduler stopped")
}

// runScheduleLoop executes one configured command every interval.
func (s *Scheduler) runScheduleLoop(ctx context.Context, sc config.ScheduleConfig) {
	ticker := time.NewTicker(time.Duration(sc.IntervalSec) * time.Second)
	defer ticker.Stop()

	s.logger.Debug().
		Str("server", sc.Server).
		Str("command", sc.Command).
		Int("interval_sec", sc.IntervalSec).
		Msg("schedule registered")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runScheduled(ctx, sc)
		}
	}
}

// runScheduled executes a scheduled command once. Failures are logged and
// the schedule keeps running.
func (s *Scheduler) runScheduled(ctx context.Context, sc config.ScheduleConfig) {
	result, err := s.manager.Execute(ctx, sc.Server, sc.Command)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn().
				Err(err).
				Str("server", sc.Server).
				Str("command", sc.Command).
				Msg("scheduled command failed")
		}
		return
	}

	s.logger.Debug().
		Str("server", sc.Server).
		Str("command", sc.Command).
		Dur("duration", result.Duration).
		Msg("scheduled command executed")
}

// runCleanupLoop runs the history retention cleanup daily at the
// configured time.
func (s *Scheduler) runCleanupLoop(ctx context.Context) {
	for {
		cleanupTime := s.cfg.GetApplicationData().History.CleanupTime
		nextRun := calculateNextCleanupTime(cleanupTime, time.Now())
		sleepDuration := time.Until(nextRun)
		if sleepDuration <= 0 {
			sleepDuration = 24 * time.Hour
		}

		s.logger.Info().
			Time("next_run", nextRun).
			Dur("sleep", sleepDuration).
			Msg("history cleanup scheduled")

		timer := time.NewTimer(sleepDuration)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.runHistoryCleanup()
		}
	}
}

// runHistoryCleanup deletes history rows older than the retention period.
func (s *Scheduler) runHistoryCleanup() int64 {
	days := s.cfg.GetApplicationData().History.RetentionDays
	if s.history == nil || days <= 0 {
		return 0
	}

	deleted, err := s.history.CleanOld(days)
	if err != nil {
		s.logger.Warn().Err(err).Msg("history cleanup failed")
		return 0
	}

	s.logger.Info().
		Int64("deleted", deleted).
		Int("retention_days", days).
		Msg("history cleanup completed")
	return deleted
}

// calculateNextCleanupTime returns the first occurrence of the HH:MM
// cleanupTime strictly after now. Unparseable values fall back to 04:00.
func calculateNextCleanupTime(cleanupTime string, now time.Time) time.Time {
	hour, minute := 4, 0
	if h, m, err := parseClock(cleanupTime); err == nil {
		hour, minute = h, m
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func parseClock(value string) (int, int, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q", value)
	}

	var hour, minute int
	if _, err := fmt.Sscanf(parts[0], "%d", &hour); err != nil {
		return 0, 0, fmt.Errorf("invalid hour in %q", value)
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &minute); err != nil {
		return 0, 0, fmt.Errorf("invalid minute in %q", value)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time %q out of range", value)
	}
	return hour, minute, nil
}
