package scheduler

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energizer-project/rconbridge/internal/config"
	"github.com/energizer-project/rconbridge/internal/db"
	"github.com/energizer-project/rconbridge/internal/rcon/rcontest"
	"github.com/energizer-project/rconbridge/internal/server"
)

func TestCalculateNextCleanupTime(t *testing.T) {
	loc := time.UTC
	now := time.Date(2024, 3, 10, 12, 30, 0, 0, loc)

	tests := []struct {
		name    string
		cleanup string
		want    time.Time
	}{
		{"later today", "18:15", time.Date(2024, 3, 10, 18, 15, 0, 0, loc)},
		{"already passed", "04:00", time.Date(2024, 3, 11, 4, 0, 0, 0, loc)},
		{"exactly now", "12:30", time.Date(2024, 3, 11, 12, 30, 0, 0, loc)},
		{"invalid falls back", "soon", time.Date(2024, 3, 11, 4, 0, 0, 0, loc)},
		{"out of range falls back", "25:00", time.Date(2024, 3, 11, 4, 0, 0, 0, loc)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, calculateNextCleanupTime(tt.cleanup, now))
		})
	}
}

func TestParseClock(t *testing.T) {
	h, m, err := parseClock("23:59")
	require.NoError(t, err)
	assert.Equal(t, 23, h)
	assert.Equal(t, 59, m)

	for _, bad := range []string{"", "12", "12:60", "-1:00", "a:b", "1:2:3"} {
		_, _, err := parseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestScheduledCommandRuns(t *testing.T) {
	srv := rcontest.NewServer(t, "secret", strings.ToUpper)

	cfg := config.DefaultConfig()
	cfg.UpsertTarget(config.ServerTarget{
		Name:           "alpha",
		Address:        srv.Addr(),
		Password:       "secret",
		ReadTimeoutSec: 2,
		Enabled:        true,
	})
	appData := cfg.GetApplicationData()
	appData.History.Enabled = false
	appData.Schedules = []config.ScheduleConfig{
		{Server: "alpha", Command: "say hello", IntervalSec: 1},
		{Server: "alpha", Command: "never", IntervalSec: 0},
	}
	cfg.SetApplicationData(appData)

	manager := server.NewManager(cfg, nil)
	s := NewScheduler(cfg, manager, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return manager.Metrics().CommandCount("alpha", "ok") >= 1
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	for _, req := range srv.Requests() {
		assert.NotEqual(t, "never", req.Body)
	}
}

func TestRunHistoryCleanup(t *testing.T) {
	database, err := db.NewDatabase(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer database.Close()

	history, err := db.NewHistoryDatabase(database)
	require.NoError(t, err)

	_, err = history.Record(db.HistoryEntry{Server: "alpha", Command: "old", ExecutedAt: time.Now().AddDate(0, 0, -40)})
	require.NoError(t, err)
	_, err = history.Record(db.HistoryEntry{Server: "alpha", Command: "new", ExecutedAt: time.Now()})
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	s := NewScheduler(cfg, server.NewManager(cfg, nil), history)

	assert.Equal(t, int64(1), s.runHistoryCleanup())

	left, err := history.Recent("", 0)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "new", left[0].Command)
}

func TestRunHistoryCleanupWithoutDatabase(t *testing.T) {
	cfg := config.DefaultConfig()
	s := NewScheduler(cfg, server.NewManager(cfg, nil), nil)
	assert.Equal(t, int64(0), s.runHistoryCleanup())
}
