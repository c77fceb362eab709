package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var ErrReportNotFound = errors.New("report not found")

// Config holds archive database configuration. Driver selects the backend:
// "postgres" for deployments, "sqlite3" for single-node and local use.
type Config struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	Path            string        `mapstructure:"path"` // sqlite3 only
	MaxConnections  int           `mapstructure:"max_connections"`
	IdleConnections int           `mapstructure:"idle_connections"`
	MaxLifetime     time.Duration `mapstructure:"max_lifetime"`
}

// ReportRecord is one archived report row.
type ReportRecord struct {
	ID             int64     `db:"id" json:"id"`
	SessionID      string    `db:"session_id" json:"session_id"`
	Topic          string    `db:"topic" json:"topic"`
	Profile        string    `db:"profile" json:"profile"`
	Body           string    `db:"body" json:"body"`
	CitationsBlock string    `db:"citations_block" json:"citations_block"`
	WordCount      int       `db:"word_count" json:"word_count"`
	UniqueSources  int       `db:"unique_sources" json:"unique_sources"`
	Warnings       string    `db:"warnings" json:"warnings"` // JSON array
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Store archives finished reports. Writes go through an async queue so
// archiving never blocks the synthesis path; reads are synchronous.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger

	writeQueue chan *ReportRecord
	stopCh     chan struct{}
	workerWg   sync.WaitGroup
}

const schema = `
CREATE TABLE IF NOT EXISTS reports (
	id              INTEGER PRIMARY KEY,
	session_id      TEXT NOT NULL,
	topic           TEXT NOT NULL,
	profile         TEXT NOT NULL,
	body            TEXT NOT NULL,
	citations_block TEXT NOT NULL DEFAULT '',
	word_count      INTEGER NOT NULL,
	unique_sources  INTEGER NOT NULL DEFAULT 0,
	warnings        TEXT NOT NULL DEFAULT '[]',
	created_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_session ON reports(session_id);
`

// NewStore opens the archive database and starts the write workers.
func NewStore(cfg *Config, logger *zap.Logger) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite3"
	}

	var dsn string
	switch driver {
	case "postgres":
		sslMode := cfg.SSLMode
		if sslMode == "" {
			sslMode = "require"
		}
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, sslMode)
	case "sqlite3":
		dsn = cfg.Path
		if dsn == "" {
			dsn = "synthesizer.db"
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	sqlxDB, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxConns := cfg.MaxConnections
	if maxConns == 0 {
		maxConns = 25
	}
	idleConns := cfg.IdleConnections
	if idleConns == 0 {
		idleConns = 5
	}
	maxLifetime := cfg.MaxLifetime
	if maxLifetime == 0 {
		maxLifetime = 5 * time.Minute
	}
	sqlxDB.SetMaxOpenConns(maxConns)
	sqlxDB.SetMaxIdleConns(idleConns)
	sqlxDB.SetConnMaxLifetime(maxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlxDB.PingContext(ctx); err != nil {
		sqlxDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := sqlxDB.ExecContext(ctx, schema); err != nil {
		sqlxDB.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	s := &Store{
		db:         sqlxDB,
		logger:     logger,
		writeQueue: make(chan *ReportRecord, 256),
		stopCh:     make(chan struct{}),
	}
	s.startWorkers(4)

	logger.Info("Report archive initialized", zap.String("driver", driver))
	return s, nil
}

// newStoreWithDB wraps an existing connection; used by tests.
func newStoreWithDB(db *sqlx.DB, logger *zap.Logger) *Store {
	return &Store{
		db:         db,
		logger:     logger,
		writeQueue: make(chan *ReportRecord, 256),
		stopCh:     make(chan struct{}),
	}
}

func (s *Store) startWorkers(n int) {
	for i := 0; i < n; i++ {
		s.workerWg.Add(1)
		go func() {
			defer s.workerWg.Done()
			for {
				select {
				case rec := <-s.writeQueue:
					if err := s.insert(context.Background(), rec); err != nil {
						s.logger.Error("Failed to archive report",
							zap.String("session_id", rec.SessionID),
							zap.Error(err),
						)
					}
				case <-s.stopCh:
					return
				}
			}
		}()
	}
}

// Archive enqueues a report for asynchronous persistence. When the queue is
// full the write falls back to synchronous so nothing is dropped.
func (s *Store) Archive(ctx context.Context, rec *ReportRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	select {
	case s.writeQueue <- rec:
		return nil
	default:
		s.logger.Warn("Archive queue full, writing synchronously",
			zap.String("session_id", rec.SessionID))
		return s.insert(ctx, rec)
	}
}

func (s *Store) insert(ctx context.Context, rec *ReportRecord) error {
	query := s.db.Rebind(`INSERT INTO reports
		(session_id, topic, profile, body, citations_block, word_count, unique_sources, warnings, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		rec.SessionID, rec.Topic, rec.Profile, rec.Body, rec.CitationsBlock,
		rec.WordCount, rec.UniqueSources, rec.Warnings, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// GetBySession returns the most recent archived report for a session.
func (s *Store) GetBySession(ctx context.Context, sessionID string) (*ReportRecord, error) {
	var rec ReportRecord
	query := s.db.Rebind(`SELECT * FROM reports WHERE session_id = ? ORDER BY created_at DESC LIMIT 1`)
	err := s.db.GetContext(ctx, &rec, query, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReportNotFound
	} else if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return &rec, nil
}

// ListRecent returns the latest archived reports, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]ReportRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var recs []ReportRecord
	query := s.db.Rebind(`SELECT * FROM reports ORDER BY created_at DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &recs, query, limit); err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return recs, nil
}

// Ping verifies database connectivity; used by health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close drains the write workers and closes the connection pool.
func (s *Store) Close() error {
	close(s.stopCh)
	s.workerWg.Wait()

	// Flush anything still queued.
	for {
		select {
		case rec := <-s.writeQueue:
			if err := s.insert(context.Background(), rec); err != nil {
				s.logger.Error("Failed to flush queued report", zap.Error(err))
			}
		default:
			return s.db.Close()
		}
	}
}

// MarshalWarnings encodes synthesis warnings for the warnings column.
func MarshalWarnings(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(data)
}
