package db

import (
	"context"
	"fmt"
	"time"
)

// CommandLogEntry is one command sent to a port.
type CommandLogEntry struct {
	ID      int64     `json:"id"`
	Port    string    `json:"port"`
	Command string    `json:"command"`
	Error   string    `json:"error,omitempty"`
	SentAt  time.Time `json:"sent_at"`
}

// RecordCommand logs a command and the error it produced, if any.
func (db *DB) RecordCommand(ctx context.Context, port, command string, sendErr error, at time.Time) error {
	var errText string
	if sendErr != nil {
		errText = sendErr.Error()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO commands (port, command, error, sent_unix_ns) VALUES (?, ?, ?, ?)`,
		port, command, errText, at.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record command: %w", err)
	}
	return nil
}

// RecentCommands returns up to limit logged commands, newest first.
func (db *DB) RecentCommands(ctx context.Context, limit int) ([]CommandLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx,
		`SELECT command_id, port, command, error, sent_unix_ns FROM commands ORDER BY command_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query commands: %w", err)
	}
	defer rows.Close()

	var out []CommandLogEntry
	for rows.Next() {
		var (
			e  CommandLogEntry
			ns int64
		)
		if err := rows.Scan(&e.ID, &e.Port, &e.Command, &e.Error, &ns); err != nil {
			return nil, fmt.Errorf("failed to scan command: %w", err)
		}
		e.SentAt = time.Unix(0, ns).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
