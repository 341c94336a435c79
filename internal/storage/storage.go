package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var ErrNotFound = errors.New("not found")

//go:embed migrations
var migrations embed.FS

// Handle is the single storage connection shared by the bot and the
// scheduler. Every query runs under mu, so callers never hold it across
// network calls.
type Handle struct {
	db      *sqlx.DB
	driver  string
	builder sq.StatementBuilderType
	mu      sync.Mutex
}

// Open connects to the database. For sqlite the dsn is a file path,
// pragmas are appended unless the dsn already carries a query string.
func Open(ctx context.Context, driver, dsn string) (*Handle, error) {
	switch driver {
	case DriverSQLite:
		if !strings.Contains(dsn, "?") {
			dsn += "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("error connecting to %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	return New(db, driver), nil
}

func New(db *sqlx.DB, driver string) *Handle {
	var placeholder sq.PlaceholderFormat = sq.Question
	if driver == DriverPostgres {
		placeholder = sq.Dollar
	}

	return &Handle{
		db:      db,
		driver:  driver,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholder),
	}
}

func (h *Handle) Close() error {
	return h.db.Close()
}

// Migrate applies the embedded forward-only migrations of the driver.
func (h *Handle) Migrate() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	d, err := iofs.New(migrations, "migrations/"+h.driver)
	if err != nil {
		return fmt.Errorf("error creating migrations source: %w", err)
	}

	var instance database.Driver
	switch h.driver {
	case DriverPostgres:
		instance, err = postgres.WithInstance(h.db.DB, &postgres.Config{})
	default:
		instance, err = sqlite.WithInstance(h.db.DB, &sqlite.Config{})
	}
	if err != nil {
		return fmt.Errorf("error creating %s instance for migration: %w", h.driver, err)
	}

	migrator, err := migrate.NewWithInstance("iofs", d, h.driver, instance)
	if err != nil {
		return fmt.Errorf("error creating migrator: %w", err)
	}
	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("error migrating: %w", err)
	}

	version, dirty, _ := migrator.Version()
	log.WithFields(log.Fields{"driver": h.driver, "version": version, "dirty": dirty}).Info("database migrated")

	return nil
}

// Ping is used by the health endpoint.
func (h *Handle) Ping(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.db.PingContext(ctx)
}

func (h *Handle) rebind(q string) string {
	return h.db.Rebind(q)
}
