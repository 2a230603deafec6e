package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"legato/internal/config"
	"legato/internal/database/migrations"
	"legato/pkg/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup or targeted write matches no row.
var ErrNotFound = errors.New("not found")

// AssetSource re-derives the song list from the device media library. The
// store falls back to it when asked to upsert an empty or invalid batch.
type AssetSource interface {
	FetchAssets(ctx context.Context) ([]models.Asset, error)
}

// Database is the catalog store. It wraps a single-connection *sql.DB so the
// embedded engine serializes all work, and is safe for concurrent use.
type Database struct {
	conn   *sql.DB
	driver string
	logger *logrus.Logger
	source AssetSource
}

// NewDatabase opens (or creates) the catalog at cfg.Path using cfg.Driver and
// brings the schema up to date. Caller should Close() it when finished.
func NewDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *logrus.Logger) (*Database, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	dsn, err := buildDSN(cfg.Driver, cfg.Path)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: SQLite serializes writers anyway, and per-connection
	// pragmas and in-memory databases stay consistent.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=2000;",
		"PRAGMA temp_store=memory;",
	}
	for _, pragma := range pragmas {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			logger.WithError(err).WithField("pragma", pragma).Warn("Failed to set pragma")
		}
	}

	db := &Database{
		conn:   conn,
		driver: cfg.Driver,
		logger: logger,
	}

	if err := db.InitializeSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"db_path": cfg.Path,
		"driver":  cfg.Driver,
	}).Info("Database initialized successfully")
	return db, nil
}

// buildDSN enables foreign keys and a busy timeout through connection
// parameters so they apply to every connection the pool opens.
func buildDSN(driver, path string) (string, error) {
	switch driver {
	case "sqlite3":
		params := []string{"_foreign_keys=on", "_busy_timeout=5000"}
		if path != ":memory:" {
			params = append(params, "_journal_mode=WAL")
		}
		return path + "?" + strings.Join(params, "&"), nil
	case "sqlite":
		params := []string{"_pragma=foreign_keys(1)", "_pragma=busy_timeout(5000)"}
		if path != ":memory:" {
			params = append(params, "_pragma=journal_mode(WAL)")
		}
		return path + "?" + strings.Join(params, "&"), nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// InitializeSchema applies pending migrations and verifies foreign keys are
// enforced. It is idempotent and safe to call on every start.
func (db *Database) InitializeSchema(ctx context.Context) error {
	if err := migrations.MigrateUp(db.conn, db.driver); err != nil {
		db.logger.WithError(err).Error("Failed to migrate catalog schema")
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	var fkEnabled bool
	if err := db.conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fkEnabled); err != nil {
		return fmt.Errorf("failed to read foreign key setting: %w", err)
	}
	if !fkEnabled {
		if _, err := db.conn.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
			return fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	return nil
}

// SchemaStatus reports the applied and latest embedded schema versions.
func (db *Database) SchemaStatus() (migrations.Status, error) {
	return migrations.ReadStatus(db.conn, db.driver)
}

// SetAssetSource registers the ingestion source used by the self-healing
// upsert path.
func (db *Database) SetAssetSource(source AssetSource) {
	db.source = source
}

// Close closes the underlying database connection.
func (db *Database) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// toMillis and fromMillis convert between time.Time and the stored epoch
// milliseconds.
func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// rowsAffected is a small helper for statements whose callers care whether
// anything changed.
func rowsAffected(result sql.Result) (int64, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}
