package telemetry

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/perfctl/internal/errors"
	"codeberg.org/mutker/perfctl/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

type sqliteRepository struct {
	db  *sql.DB
	cfg Config

	mu            sync.Mutex
	buffer        []*Snapshot
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
}

func NewRepository(cfg Config) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = defaultBatchTimeout
	}

	logger.Debug().Str("path", cfg.DBPath).Msg("Initializing telemetry repository")

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	if err := validateAndUpdateSchema(db); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	repo := &sqliteRepository{
		db:            db,
		cfg:           cfg,
		buffer:        make([]*Snapshot, 0, cfg.BatchSize),
		flushTicker:   time.NewTicker(time.Duration(cfg.BatchTimeout) * time.Second),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}
	go repo.flusher()

	logger.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Msg("Telemetry repository initialized")

	return repo, nil
}

func (r *sqliteRepository) Store(snapshot *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, snapshot)

	if len(r.buffer) >= r.cfg.BatchSize {
		return r.flushLocked()
	}

	return nil
}

func (r *sqliteRepository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.shutdownChan:
			r.mu.Lock()
			if err := r.flushLocked(); err != nil {
				logger.Error().Err(err).Msg("Final telemetry flush failed")
			}
			r.mu.Unlock()
			return
		case <-r.flushTicker.C:
			r.mu.Lock()
			if err := r.flushLocked(); err != nil {
				logger.Error().Err(err).Msg("Periodic telemetry flush failed")
			}
			r.mu.Unlock()
		}
	}
}

// flushLocked writes the buffered snapshots in one transaction. Caller
// holds the mutex.
func (r *sqliteRepository) flushLocked() error {
	errFactory := errors.New()

	if len(r.buffer) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	stmt, err := tx.Prepare(`
        INSERT INTO snapshots (
            timestamp, fps, memory_mb, level, target_level,
            transitioning, optimizations, strategy
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(timestamp) DO UPDATE SET
            fps = excluded.fps,
            memory_mb = excluded.memory_mb,
            level = excluded.level,
            target_level = excluded.target_level,
            transitioning = excluded.transitioning,
            optimizations = excluded.optimizations,
            strategy = excluded.strategy
    `)
	if err != nil {
		tx.Rollback()
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	for _, s := range r.buffer {
		if _, err := stmt.Exec(
			s.Timestamp.UnixMilli(),
			s.FPS,
			s.MemoryMB,
			s.Level,
			s.TargetLevel,
			boolToInt(s.Transitioning),
			s.Optimizations,
			s.Strategy,
		); err != nil {
			stmt.Close()
			tx.Rollback()
			return errFactory.Wrap(ErrStorageAccess, err)
		}
	}
	stmt.Close()

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	r.buffer = r.buffer[:0]

	return nil
}

func (r *sqliteRepository) Close() error {
	errFactory := errors.New()

	close(r.shutdownChan)
	r.flushTicker.Stop()
	<-r.flushDoneChan

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		logger.Debug().Err(err).Msg("WAL checkpoint failed on close")
	}

	if err := r.db.Close(); err != nil {
		return errFactory.Wrap(ErrStorageClose, err)
	}

	logger.Debug().Msg("Telemetry repository closed")

	return nil
}
