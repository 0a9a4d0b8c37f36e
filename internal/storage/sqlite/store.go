// Package sqlite persists sensor readings in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ironsheep/thermo-ocr/internal/reading"
)

// ErrNotConnected is returned by operations that need an open connection.
var ErrNotConnected = errors.New("database not connected")

// Store is a SQLite-backed reading store with an explicit connection
// lifecycle. It is safe for concurrent use.
type Store struct {
	path string

	mu   sync.RWMutex
	conn *sql.DB
}

// New creates a store for the database file at path. No connection is made
// until Connect is called.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Connect opens the database and creates the schema if needed. Calling
// Connect on a connected store is a no-op.
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return nil
	}
	conn, err := open(ctx, s.path)
	if err != nil {
		return err
	}
	if err := migrate(ctx, conn); err != nil {
		conn.Close()
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	s.conn = conn
	return nil
}

// Disconnect closes the connection. It is safe to call on a disconnected store.
func (s *Store) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// IsConnected reports whether Connect succeeded and Disconnect has not been called.
func (s *Store) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn != nil
}

// TestConnection checks that the database can be reached without changing
// the store's connection state.
func (s *Store) TestConnection(ctx context.Context) (string, error) {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	if conn != nil {
		if err := conn.PingContext(ctx); err != nil {
			return "", fmt.Errorf("ping failed: %w", err)
		}
		return fmt.Sprintf("connected to %s", s.path), nil
	}

	probe, err := open(ctx, s.path)
	if err != nil {
		return "", err
	}
	defer probe.Close()
	return fmt.Sprintf("%s is reachable", s.path), nil
}

// Insert stores r and returns a confirmation naming the assigned id.
func (s *Store) Insert(ctx context.Context, r reading.SensorReading) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return "", ErrNotConnected
	}
	result, err := s.conn.ExecContext(ctx, `
		INSERT INTO readings (temperature, humidity, timestamp)
		VALUES (?, ?, ?)
	`, r.Temperature, r.Humidity, r.Timestamp.UTC())
	if err != nil {
		return "", fmt.Errorf("failed to insert reading: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("failed to get last insert id: %w", err)
	}
	return fmt.Sprintf("reading #%d saved (%.2f°C)", id, r.Temperature), nil
}

// Recent returns up to n readings, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]reading.SensorReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.conn == nil {
		return nil, ErrNotConnected
	}
	if n <= 0 {
		return nil, nil
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, temperature, humidity, timestamp
		FROM readings
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []reading.SensorReading
	for rows.Next() {
		var r reading.SensorReading
		if err := rows.Scan(&r.ID, &r.Temperature, &r.Humidity, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// Count returns the number of stored readings.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.conn == nil {
		return 0, ErrNotConnected
	}
	var count int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count readings: %w", err)
	}
	return count, nil
}

func open(ctx context.Context, path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", path, err)
	}
	return conn, nil
}

func migrate(ctx context.Context, conn *sql.DB) error {
	_, err := conn.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		temperature REAL NOT NULL,
		humidity REAL NOT NULL,
		timestamp DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_readings_timestamp ON readings(timestamp);
	`)
	return err
}
