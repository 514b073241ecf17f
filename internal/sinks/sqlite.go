package sinks

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteSink keeps reading history, one row per value.
type SQLiteSink struct {
	db *sql.DB
}

func NewSQLiteSink(path string) (*SQLiteSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sinks: sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sinks: sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sinks: sqlite busy timeout: %w", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS readings (
		time_ms INTEGER NOT NULL,
		station TEXT NOT NULL,
		name TEXT NOT NULL,
		value REAL NOT NULL,
		PRIMARY KEY (station, name, time_ms)
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sinks: sqlite schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Name() string { return "sqlite" }

func (s *SQLiteSink) Write(ctx context.Context, r Reading) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sinks: sqlite begin: %w", err)
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR REPLACE INTO readings (time_ms, station, name, value) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("sinks: sqlite prepare: %w", err)
	}
	defer stmt.Close()
	ms := r.Time.UnixMilli()
	for _, name := range r.Names() {
		if _, err := stmt.ExecContext(ctx, ms, r.Station, name, r.Values[name]); err != nil {
			return fmt.Errorf("sinks: sqlite insert %s: %w", name, err)
		}
	}
	return tx.Commit()
}

// Latest returns the newest stored reading for station.
func (s *SQLiteSink) Latest(ctx context.Context, station string) (Reading, bool, error) {
	var latest sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(time_ms) FROM readings WHERE station = ?", station).Scan(&latest)
	if err != nil {
		return Reading{}, false, fmt.Errorf("sinks: sqlite latest: %w", err)
	}
	if !latest.Valid {
		return Reading{}, false, nil
	}
	ms := latest.Int64
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, value FROM readings WHERE station = ? AND time_ms = ?", station, ms)
	if err != nil {
		return Reading{}, false, fmt.Errorf("sinks: sqlite latest: %w", err)
	}
	defer rows.Close()
	out := Reading{Time: time.UnixMilli(ms), Station: station, Values: make(map[string]float64)}
	for rows.Next() {
		var name string
		var v float64
		if err := rows.Scan(&name, &v); err != nil {
			return Reading{}, false, fmt.Errorf("sinks: sqlite scan: %w", err)
		}
		out.Values[name] = v
	}
	if err := rows.Err(); err != nil {
		return Reading{}, false, err
	}
	return out, len(out.Values) > 0, nil
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
