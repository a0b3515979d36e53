// Package sqlstore persists the LOC hierarchy in PostgreSQL/PostGIS or in an
// embedded SQLite database.
//
// Every entity is resolved with an atomic insert-if-absent followed by a
// lookup of the winning row, so concurrent ingestions never create two rows
// for one natural key. Rows are never updated or deleted, which lets resolved
// ids be cached for the life of the Store.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/intecmar/cop-loc-etl/internal/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver
)

// Options configures Open.
type Options struct {
	Driver         string // DriverPostgres or DriverSQLite
	DSN            string
	Schema         string // Postgres schema holding the hierarchy
	MaxOpenConns   int
	CacheSize      int
	ConnectTimeout time.Duration
}

// Store is a connection pool plus the id cache shared by its sessions.
type Store struct {
	db      *sql.DB
	dialect dialect
	cache   *lru.Cache[string, int64]
	logger  *slog.Logger
}

// Open connects to the database, retrying with exponential backoff until
// ConnectTimeout elapses.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Store, error) {
	d, err := newDialect(opts.Driver, opts.Schema)
	if err != nil {
		return nil, err
	}
	dsn := opts.DSN
	if !d.postgres() {
		dsn = sqliteDSN(dsn)
	}
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.name, err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}

	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = opts.ConnectTimeout
	ping := func() error {
		if err := db.PingContext(ctx); err != nil {
			logger.Warn("database not reachable, retrying", "driver", d.name, "error", err)
			return err
		}
		return nil
	}
	if err := backoff.Retry(ping, backoff.WithContext(b, ctx)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.name, err)
	}

	s, err := newStore(db, d, opts.CacheSize, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("database connected", "driver", d.name, "schema", d.schema)
	return s, nil
}

func newStore(db *sql.DB, d dialect, cacheSize int, logger *slog.Logger) (*Store, error) {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New[string, int64](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create id cache: %w", err)
	}
	return &Store{db: db, dialect: d, cache: cache, logger: logger}, nil
}

// sqliteDSN turns a bare path into a URI with the pragmas the store needs:
// enforced foreign keys, a busy timeout for concurrent writers, WAL, and
// immediate transactions so writers queue instead of deadlocking.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma") {
		return dsn
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

// Session acquires a dedicated connection. Callers must Close it.
func (s *Store) Session(ctx context.Context) (*Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, persistenceError("session", s.dialect.name, err)
	}
	return &Session{conn: conn, store: s}, nil
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database not reachable: %w", err)
	}
	return nil
}

var entityTables = map[domain.EntityKind]string{
	domain.EntityModel:      "models",
	domain.EntityCampaign:   "campaigns",
	domain.EntitySimulation: "simulations",
	domain.EntityOutput:     "outputs",
	domain.EntityLoc:        "loc",
	domain.EntityLine:       "lines",
	domain.EntityLocType:    "loc_types",
	domain.EntityLocLevel:   "loc_levels",
}

// Count returns the number of rows stored for an entity kind.
func (s *Store) Count(ctx context.Context, kind domain.EntityKind) (int, error) {
	table, ok := entityTables[kind]
	if !ok {
		return 0, fmt.Errorf("unknown entity kind %q", kind)
	}
	var n int
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.dialect.table(table))
	if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, persistenceError(kind, "count", err)
	}
	return n, nil
}

// StoredLine is a Line row read back as WKT.
type StoredLine struct {
	Level       string
	Envelope    string
	Description string
}

// Lines returns the lines stored under a Loc, ordered by level.
func (s *Store) Lines(ctx context.Context, locID int64) ([]StoredLine, error) {
	d := s.dialect
	q := d.rebind(fmt.Sprintf(`SELECT lv.level_name, %s, l.description
		FROM %s l JOIN %s lv ON lv.uid = l.id_loc_level
		WHERE l.id_loc = ?
		ORDER BY lv.uid`, d.geometryOut("l.envelope"), d.table("lines"), d.table("loc_levels")))
	rows, err := s.db.QueryContext(ctx, q, locID)
	if err != nil {
		return nil, persistenceError(domain.EntityLine, fmt.Sprintf("(loc=%d)", locID), err)
	}
	defer func() { _ = rows.Close() }()

	var out []StoredLine
	for rows.Next() {
		var l StoredLine
		if err := rows.Scan(&l.Level, &l.Envelope, &l.Description); err != nil {
			return nil, fmt.Errorf("scan line: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
