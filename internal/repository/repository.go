package repository

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"isle_quest_backend/pkg/logger"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("not found")

type Config struct {
	// Path is the sqlite database file location. Empty means no durable
	// store is configured and the repository runs in degraded mode.
	Path string `yaml:"path"`
}

// Store is the durable wallet -> user record mapping. The backing database
// is opened lazily on first use; when no path is configured or the open
// fails, reads report nothing and writes report false instead of erroring,
// and Ready() exposes the degraded state.
type Store struct {
	cfg  Config
	once sync.Once
	db   *sqlx.DB
}

func New(cfg Config) *Store {
	return &Store{cfg: cfg}
}

func (s *Store) init() {
	log := logger.Logger()

	if s.cfg.Path == "" {
		log.Warn("no store path configured, persistence degraded to no-op")
		return
	}

	if err := os.MkdirAll(filepath.Dir(s.cfg.Path), 0o755); err != nil {
		log.Error("failed to create store directory", zap.Error(err))
		return
	}

	db, err := sqlx.Connect("sqlite3", s.cfg.Path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		log.Error("failed to open store", zap.String("path", s.cfg.Path), zap.Error(err))
		return
	}

	if _, err := db.Exec(schema); err != nil {
		log.Error("failed to migrate store schema", zap.Error(err))
		_ = db.Close()
		return
	}

	s.db = db
	log.Info("store opened", zap.String("path", s.cfg.Path))
}

const schema = `
	CREATE TABLE IF NOT EXISTS users (
		wallet TEXT PRIMARY KEY,
		total_xp REAL NOT NULL DEFAULT 0,
		paid INTEGER NOT NULL DEFAULT 0,
		subscription_tier TEXT NOT NULL DEFAULT 'free',
		last_payment_at INTEGER,
		subscription_paid_at INTEGER,
		subscription_claimed_at INTEGER,
		subscription_last_delta REAL NOT NULL DEFAULT 0,
		last_verified_tx TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		profile TEXT NOT NULL DEFAULT '{}'
	);

	CREATE INDEX IF NOT EXISTS idx_users_paid ON users(paid);
	CREATE INDEX IF NOT EXISTS idx_users_last_verified_tx ON users(last_verified_tx);
`

// Ready reports whether a durable store is available. The first call
// triggers the lazy open.
func (s *Store) Ready() bool {
	s.once.Do(s.init)
	return s.db != nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Transaction(ctx context.Context, t func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	err = t(tx)
	if err != nil {
		txErr := tx.Rollback()
		if txErr != nil {
			return errors.Wrapf(err, "rollback error: %v", txErr)
		}
		return err
	}
	return tx.Commit()
}
