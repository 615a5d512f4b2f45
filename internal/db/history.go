package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/energizer-project/rconbridge/internal/events"
)

// DefaultHistoryLimit is used by Recent when limit is not positive.
const DefaultHistoryLimit = 50

// HistoryEntry is one recorded command exchange.
type HistoryEntry struct {
	ID           string    `json:"id"`
	Server       string    `json:"server"`
	Command      string    `json:"command"`
	ResponseID   int32     `json:"response_id"`
	ResponseType int32     `json:"response_type"`
	Body         string    `json:"body"`
	Error        string    `json:"error,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	ExecutedAt   time.Time `json:"executed_at"`
}

// HistoryDatabase stores every command run through the gateway.
type HistoryDatabase struct {
	db *Database
}

// NewHistoryDatabase creates the history schema in db.
func NewHistoryDatabase(db *Database) (*HistoryDatabase, error) {
	h := &HistoryDatabase{db: db}
	if err := h.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}
	return h, nil
}

// historySchema is append-only; see Database.Migrate.
var historySchema = []string{
	`CREATE TABLE IF NOT EXISTS command_history (
		id TEXT PRIMARY KEY,
		server TEXT NOT NULL,
		command TEXT NOT NULL,
		response_id INTEGER NOT NULL DEFAULT 0,
		response_type INTEGER NOT NULL DEFAULT 0,
		body TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		executed_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_history_server ON command_history(server)`,
	`CREATE INDEX IF NOT EXISTS idx_history_executed_at ON command_history(executed_at)`,
}

func (h *HistoryDatabase) migrate() error {
	return h.db.Migrate("history", historySchema)
}

// Record stores entry. A missing ID is generated and a zero ExecutedAt is
// set to now; the stored entry is returned.
func (h *HistoryDatabase) Record(entry HistoryEntry) (HistoryEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = time.Now()
	}

	_, err := h.db.Exec(`
		INSERT INTO command_history
			(id, server, command, response_id, response_type, body, error, duration_ms, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Server, entry.Command, entry.ResponseID, entry.ResponseType,
		entry.Body, entry.Error, entry.DurationMS, entry.ExecutedAt.UnixMilli())
	if err != nil {
		return entry, fmt.Errorf("failed to record command: %w", err)
	}
	return entry, nil
}

// Recent returns the newest entries first. An empty server matches all
// servers.
func (h *HistoryDatabase) Recent(server string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	query := `
		SELECT id, server, command, response_id, response_type, body, error, duration_ms, executed_at
		FROM command_history`
	args := []interface{}{}
	if server != "" {
		query += " WHERE server = ?"
		args = append(args, server)
	}
	query += " ORDER BY executed_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := h.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		var e HistoryEntry
		var executedAt int64
		if err := rows.Scan(&e.ID, &e.Server, &e.Command, &e.ResponseID, &e.ResponseType,
			&e.Body, &e.Error, &e.DurationMS, &executedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		e.ExecutedAt = time.UnixMilli(executedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CleanOld removes entries older than days and returns how many were
// deleted.
func (h *HistoryDatabase) CleanOld(days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days).UnixMilli()
	res, err := h.db.Exec("DELETE FROM command_history WHERE executed_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean history: %w", err)
	}
	n, _ := res.RowsAffected()
	h.db.logger.Info().Int64("deleted", n).Int("retention_days", days).Msg("old history entries removed")
	return n, nil
}

// Attach records every command_executed and command_failed event.
func (h *HistoryDatabase) Attach(bus *events.EventBus) {
	handler := func(ctx context.Context, e events.Event) error {
		p, ok := e.Payload.(events.CommandPayload)
		if !ok {
			return nil
		}
		_, err := h.Record(HistoryEntry{
			ID:           p.ID,
			Server:       p.Server,
			Command:      p.Command,
			ResponseID:   p.ResponseID,
			ResponseType: p.ResponseType,
			Body:         p.Body,
			Error:        p.Error,
			DurationMS:   p.Duration.Milliseconds(),
			ExecutedAt:   p.ExecutedAt,
		})
		return err
	}

	bus.Subscribe(events.EventCommandExecuted, "history", handler)
	bus.Subscribe(events.EventCommandFailed, "history", handler)
}
