package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/jeebs/internal/models"
)

// Journal is the system log collaborator: log(level, category, message).
type Journal interface {
	Log(ctx context.Context, level, category, message string)
}

// NopJournal discards every entry.
type NopJournal struct{}

// Log implements Journal.
func (NopJournal) Log(context.Context, string, string, string) {}

// LearnedFactPrefix is the key prefix under which the chat layer stores facts.
const LearnedFactPrefix = "chat:fact:"

// Log appends an entry to system_logs. Failures are reported through slog and
// never returned; the journal is best-effort.
func (db *DB) Log(ctx context.Context, level, category, message string) {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO system_logs (timestamp, level, category, message) VALUES (?, ?, ?, ?)`,
		time.Now().Unix(), level, category, message)
	if err != nil {
		slog.Warn("store: journal write failed",
			slog.String("category", category),
			slog.String("error", err.Error()))
	}
}

// CountLogs counts system_logs entries of level (case-insensitive) at or after since.
func (db *DB) CountLogs(ctx context.Context, level string, since time.Time) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT count(*) FROM system_logs WHERE UPPER(level) = UPPER(?) AND timestamp >= ?`,
		level, since.Unix()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count logs: %w", err)
	}
	return n, nil
}

// AppendChat records one chat turn.
func (db *DB) AppendChat(ctx context.Context, turn models.ChatTurn) error {
	ts := turn.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO chat_logs (timestamp, username, role, message) VALUES (?, ?, ?, ?)`,
		ts.Unix(), turn.Username, turn.Role, turn.Content)
	if err != nil {
		return fmt.Errorf("store: append chat: %w", err)
	}
	return nil
}

// CountChatLogs counts user messages at or after since.
func (db *DB) CountChatLogs(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT count(*) FROM chat_logs WHERE role = 'user' AND timestamp >= ?`, since.Unix()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count chat logs: %w", err)
	}
	return n, nil
}

// ChatTurns returns every turn at or after since in insertion order.
func (db *DB) ChatTurns(ctx context.Context, since time.Time) ([]models.ChatTurn, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT username, role, message, timestamp FROM chat_logs WHERE timestamp >= ? ORDER BY id`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("store: chat turns: %w", err)
	}
	defer rows.Close()

	var out []models.ChatTurn
	for rows.Next() {
		var t models.ChatTurn
		var ts int64
		if err := rows.Scan(&t.Username, &t.Role, &t.Content, &ts); err != nil {
			return nil, err
		}
		t.Timestamp = time.Unix(ts, 0)
		out = append(out, t)
	}
	return out, rows.Err()
}

// AddBrainNode inserts or replaces a knowledge node.
func (db *DB) AddBrainNode(ctx context.Context, id, data string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO brain_nodes (id, data, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data`, id, data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store: add brain node: %w", err)
	}
	return nil
}

// CountBrainNodes counts every knowledge node.
func (db *DB) CountBrainNodes(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM brain_nodes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count brain nodes: %w", err)
	}
	return n, nil
}

// CountLearnedFacts counts facts stored by the chat layer.
func (db *DB) CountLearnedFacts(ctx context.Context) (int, error) {
	return db.Count(ctx, LearnedFactPrefix)
}
