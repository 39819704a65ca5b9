package activitylog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteSink 把活动日志写进本地 SQLite（对应原始实现的 bot_logs 表）
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink 打开（必要时创建）活动日志库
func NewSQLiteSink(dbPath string) (*SQLiteSink, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("activitylog: db path is required")
	}
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite：单连接更稳定
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteSink{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSink) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS bot_logs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	level      TEXT NOT NULL,
	payload    TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bot_logs_type ON bot_logs(event_type);
CREATE INDEX IF NOT EXISTS idx_bot_logs_created ON bot_logs(created_at);
`
	_, err := s.db.Exec(ddl)
	if err != nil {
		return fmt.Errorf("migrate bot_logs: %w", err)
	}
	return nil
}

// Write 落一条活动日志
func (s *SQLiteSink) Write(ctx context.Context, ev Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bot_logs (event_type, level, payload, created_at) VALUES (?, ?, ?, ?)`,
		ev.Type, string(ev.Level), marshalPayload(ev.Payload), ev.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	)
	return err
}

// Recent 读取最近 n 条（调试 / 控制面用）
func (s *SQLiteSink) Recent(ctx context.Context, n int) ([]Event, error) {
	if n <= 0 {
		n = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_type, level, payload, created_at FROM bot_logs ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var payload, created string
		if err := rows.Scan(&ev.Type, &ev.Level, &payload, &created); err != nil {
			return nil, err
		}
		ev.Payload = decodePayload(payload)
		ev.Timestamp = parseTimestamp(created)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Close 关闭数据库
func (s *SQLiteSink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
