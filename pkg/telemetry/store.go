package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Record is one stored telemetry event
type Record struct {
	ID        string
	Timestamp time.Time
	Event     string
	Data      string
}

// Store keeps a launch history in SQLite.
//
// Events are queued and written by a single background goroutine. When the
// queue is full the event is dropped with a warning; LogEvent never blocks.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Record
	wg     sync.WaitGroup
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithStoreLogger sets the logger used for write failures and drops
func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithQueueSize sets the number of events buffered ahead of the writer
func WithQueueSize(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.queue = make(chan Record, n)
		}
	}
}

// OpenStore opens (creating if needed) the history database at path
func OpenStore(path string, opts ...StoreOption) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer goroutine and short-lived readers; a single connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS launch_events (
			id TEXT PRIMARY KEY,
			timestamp INTEGER NOT NULL,
			event TEXT NOT NULL,
			data TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_launch_events_timestamp ON launch_events(timestamp)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	s := &Store{
		db:     db,
		path:   path,
		logger: slog.Default(),
		queue:  make(chan Record, 256),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.wg.Add(1)
	go s.writeLoop()

	return s, nil
}

// Path returns the database path
func (s *Store) Path() string {
	return s.path
}

// LogEvent queues the event for writing
func (s *Store) LogEvent(kind EventKind, data interface{}) {
	rec := Record{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Event:     kind.String(),
		Data:      formatData(data),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.logger.Debug("history store closed, event dropped", "event", rec.Event)
		return
	}

	select {
	case s.queue <- rec:
	default:
		s.logger.Warn("history queue full, event dropped", "event", rec.Event)
	}
}

func (s *Store) writeLoop() {
	defer s.wg.Done()

	for rec := range s.queue {
		if err := s.insert(rec); err != nil {
			s.logger.Warn("failed to record telemetry event", "event", rec.Event, "error", err)
		}
	}
}

func (s *Store) insert(rec Record) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO launch_events (id, timestamp, event, data) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.Timestamp.UnixNano(), rec.Event, rec.Data)
	return err
}

// Recent returns up to limit events, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, event, data FROM launch_events
		 ORDER BY timestamp DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var ts int64
		if err := rows.Scan(&rec.ID, &ts, &rec.Event, &rec.Data); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		rec.Timestamp = time.Unix(0, ts)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close stops accepting events, drains the queue and closes the database
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
	return s.db.Close()
}

var _ Logger = (*Store)(nil)
