package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	// dirPerm restricts the database directory to the service account.
	dirPerm = 0o750

	// filePerm keeps the database file owner-only. The event history
	// reveals when the house is occupied, so nothing else on the box
	// gets to read it.
	filePerm = 0o600

	// openPingTimeout bounds the connectivity probe inside Open.
	openPingTimeout = 5 * time.Second
)

// DB is the handle to the controller's SQLite store. It embeds sql.DB,
// so callers query it directly; the wrapper adds migrations, a health
// probe and lifecycle management on top.
type DB struct {
	*sql.DB
	path string
}

// Config mirrors the database section of config.yaml.
type Config struct {
	// Path to the SQLite file. Parent directories are created on open.
	Path string

	// WALMode switches the journal to write-ahead logging so the event
	// recorder's inserts never block history reads.
	WALMode bool

	// BusyTimeout is how many seconds a lock attempt waits before
	// giving up with SQLITE_BUSY.
	BusyTimeout int
}

// Open connects to the SQLite file at cfg.Path, creating the file and
// its directories as needed, and proves the connection with a ping.
//
// The pool is pinned to one connection. SQLite permits a single writer
// and the event recorder is the only steady writer here, so sharing one
// connection sidesteps lock churn without costing throughput.
func Open(cfg Config) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPerm); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path, cfg.BusyTimeout*1000)
	if cfg.WALMode {
		dsn += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), openPingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	// The ping above materialises the file, so the chmod normally
	// succeeds. A pre-existing file keeps whatever mode it had plus
	// this tightening.
	_ = os.Chmod(cfg.Path, filePerm)

	return &DB{DB: sqlDB, path: cfg.Path}, nil
}

// Close releases the underlying connection. Safe to call on a handle
// whose connection was never established.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path reports the filesystem location of the database file.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck runs a trivial query to prove the connection is usable.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	return nil
}
