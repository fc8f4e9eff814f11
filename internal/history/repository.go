// Package history keeps a local sqlite record of calculated readings.
// Writes are batched; a batch is flushed when full or on a timer, always on
// the repository's own goroutine.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/zoobzio/clockz"

	"github.com/sweeney/leak-gateway/internal/logic"
)

// ErrInvalidPath means no database path was configured.
var ErrInvalidPath = errors.New("history: empty database path")

// Config configures the repository.
type Config struct {
	Path      string
	BatchSize int
	Flush     time.Duration
}

// Row is one stored reading.
type Row struct {
	RecordedAt time.Time
	Source     string
	Peer       logic.PeerID
	LPM        float64
	Stale      bool
}

// Repository buffers readings and writes them in transactions.
type Repository struct {
	db  *sql.DB
	cfg Config
	log zerolog.Logger

	mu     sync.Mutex
	buffer []Row

	kick      chan struct{}
	shutdown  chan struct{}
	flushDone chan struct{}
	closeOnce sync.Once
}

// New opens (or creates) the database at cfg.Path and starts the flusher.
// The flush timer only runs when cfg.Flush is positive.
func New(cfg Config, clock clockz.Clock, log zerolog.Logger) (*Repository, error) {
	if cfg.Path == "" {
		return nil, ErrInvalidPath
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal=WAL&_auto_vacuum=2")
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	r := &Repository{
		db:        db,
		cfg:       cfg,
		log:       log,
		buffer:    make([]Row, 0, cfg.BatchSize),
		kick:      make(chan struct{}, 1),
		shutdown:  make(chan struct{}),
		flushDone: make(chan struct{}),
	}

	var timer clockz.Timer
	if cfg.Flush > 0 {
		timer = clock.NewTimer(cfg.Flush)
	}
	go r.flusher(timer)

	log.Info().
		Str("path", cfg.Path).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Dur("flush", cfg.Flush).
		Msg("history initialized")
	return r, nil
}

// Record buffers one row per reading, stamped with at. A full buffer wakes
// the flusher; Record itself never touches the database.
func (r *Repository) Record(at time.Time, readings ...logic.Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rd := range readings {
		r.buffer = append(r.buffer, Row{
			RecordedAt: at,
			Source:     rd.Source.Name,
			Peer:       rd.Source.Peer,
			LPM:        rd.Value,
			Stale:      rd.Stale,
		})
	}
	if len(r.buffer) >= r.cfg.BatchSize {
		select {
		case r.kick <- struct{}{}:
		default:
		}
	}
	return nil
}

// Pending returns the number of buffered rows.
func (r *Repository) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffer)
}

// Recent returns up to limit stored rows, newest first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Row, error) {
	rows, err := r.db.QueryContext(ctx, recentReadingsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			ms    int64
			row   Row
			stale int
		)
		if err := rows.Scan(&ms, &row.Source, &row.Peer, &row.LPM, &stale); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		row.RecordedAt = time.UnixMilli(ms).UTC()
		row.Stale = stale == 1
		out = append(out, row)
	}
	return out, rows.Err()
}

// Close flushes buffered rows and closes the database.
func (r *Repository) Close() error {
	r.closeOnce.Do(func() { close(r.shutdown) })
	<-r.flushDone

	if err := r.flush(); err != nil {
		r.log.Error().Err(err).Msg("final history flush failed")
	}

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		r.log.Warn().Err(err).Msg("history checkpoint failed")
	}
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("close history: %w", err)
	}
	return nil
}

func (r *Repository) flusher(timer clockz.Timer) {
	defer close(r.flushDone)

	var timerC <-chan time.Time
	if timer != nil {
		defer timer.Stop()
		timerC = timer.C()
	}

	for {
		select {
		case <-timerC:
			if err := r.flush(); err != nil {
				r.log.Error().Err(err).Msg("history flush failed")
			}
			timer.Reset(r.cfg.Flush)
		case <-r.kick:
			if err := r.flush(); err != nil {
				r.log.Error().Err(err).Msg("history flush failed")
			}
		case <-r.shutdown:
			return
		}
	}
}

// flush takes the buffer and writes it in one transaction. Only the
// flusher, or Close after it has stopped, calls it. On failure the rows go
// back to the front of the buffer for the next attempt.
func (r *Repository) flush() error {
	r.mu.Lock()
	rows := r.buffer
	r.buffer = make([]Row, 0, r.cfg.BatchSize)
	r.mu.Unlock()

	if len(rows) == 0 {
		return nil
	}
	if err := r.write(rows); err != nil {
		r.mu.Lock()
		r.buffer = append(rows, r.buffer...)
		r.mu.Unlock()
		return err
	}
	r.log.Debug().Int("records", len(rows)).Msg("flushed history")
	return nil
}

func (r *Repository) write(rows []Row) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.Prepare(insertReadingSQL)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		stale := 0
		if row.Stale {
			stale = 1
		}
		if _, err := stmt.Exec(row.RecordedAt.UnixMilli(), row.Source, int64(row.Peer), row.LPM, stale); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
