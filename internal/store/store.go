// Package store persists runs, findings, the task pipeline and the task log
// in one of three SQL backends.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/schema"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx driver
	_ "modernc.org/sqlite"             // registers the sqlite driver
)

// Table names.
const (
	runsTable         = "runs"
	findingsTable     = "findings"
	processedTable    = "processed_findings"
	taskLogTable      = "task_log"
	taskSequenceTable = "task_sequence"
)

// allTables lists every relation in dependency order for purges.
var allTables = []string{taskLogTable, processedTable, findingsTable, runsTable, taskSequenceTable}

// MemoryPath opens a private in-memory SQLite database.
const MemoryPath = ":memory:"

// ErrNotFound is wrapped by lookups that match no row.
var ErrNotFound = errors.New("not found")

// StoreError is a store-class failure. It always propagates to the caller.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// SQLStore implements contract.Store over database/sql.
type SQLStore struct {
	db      *sql.DB
	backend schema.DatabaseBackend
	now     func() time.Time
}

var _ contract.Store = &SQLStore{} // Compile-time check

// Open connects to the backend, verifies the connection and applies any
// pending migrations.
func Open(ctx context.Context, backend schema.DatabaseBackend, connStr string) (*SQLStore, error) {
	db, err := openDB(backend, connStr)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		var connDetail string
		switch backend {
		case schema.MySQLBackend:
			connDetail = "Check that MySQL is running and the connection string is correct. Ensure user/password are valid."
		case schema.PostgreSQLBackend:
			connDetail = "Check that PostgreSQL is running and the connection string is correct. Ensure user/password are valid."
		default:
			connDetail = "Check that the directory is writable."
		}
		return nil, fmt.Errorf("failed to connect to %s database: %w. %s", backend, err, connDetail)
	}

	if err := autoMigrate(db, backend, connStr); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate %s database: %w", backend, err)
	}

	return &SQLStore{db: db, backend: backend, now: time.Now}, nil
}

// openDB opens a handle for the backend without touching the schema.
func openDB(backend schema.DatabaseBackend, connStr string) (*sql.DB, error) {
	switch backend {
	case schema.SQLiteBackend:
		dbPath := connStr
		if dbPath == "" {
			dbPath = contract.GetDBFilePath()
		}
		db, err := sql.Open("sqlite", sqliteDSN(dbPath))
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite database at %q: %w. Check that the directory is writable", dbPath, err)
		}
		// A single connection serializes writers and keeps in-memory databases alive
		db.SetMaxOpenConns(1)
		return db, nil

	case schema.MySQLBackend:
		dsn, err := mysqlDSN(connStr)
		if err != nil {
			return nil, fmt.Errorf("invalid MySQL connection string: %w. Expected format: user:password@tcp(host:port)/dbname", err)
		}
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open MySQL database: %w", err)
		}
		return db, nil

	case schema.PostgreSQLBackend:
		db, err := sql.Open("pgx", connStr)
		if err != nil {
			return nil, fmt.Errorf("failed to open PostgreSQL database: %w. Check connection string format: host=... dbname=... user=... password=...", err)
		}
		return db, nil

	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// sqliteDSN builds the modernc DSN with the locking pragmas.
func sqliteDSN(path string) string {
	if path == MemoryPath {
		return "file::memory:?_pragma=busy_timeout(5000)"
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// mysqlDSN enables multi-statement execution, which the migrations need.
func mysqlDSN(connStr string) (string, error) {
	cfg, err := mysqldrv.ParseDSN(connStr)
	if err != nil {
		return "", err
	}
	cfg.MultiStatements = true
	return cfg.FormatDSN(), nil
}

// Backend returns the configured backend.
func (s *SQLStore) Backend() schema.DatabaseBackend {
	return s.backend
}

// Close closes the underlying connection.
func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SetClock overrides the time source. Tests use it.
func (s *SQLStore) SetClock(now func() time.Time) {
	s.now = now
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.backend != schema.PostgreSQLBackend {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// insertID runs an INSERT and returns the generated id.
func (s *SQLStore) insertID(ctx context.Context, q querier, query string, args ...any) (int64, error) {
	if s.backend == schema.PostgreSQLBackend {
		var id int64
		err := q.QueryRowContext(ctx, s.rebind(query+" RETURNING id"), args...).Scan(&id)
		return id, err
	}
	res, err := q.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLStore) fail(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// formatTime stores every timestamp as RFC3339 text in UTC on all backends.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// severityRankSQL orders rows by severity, most severe first when sorted DESC.
const severityRankSQL = `CASE severity WHEN 'critical' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 WHEN 'low' THEN 1 ELSE 0 END`

// severitiesAtLeast returns the IN-list placeholders and args for a severity cutoff.
func severitiesAtLeast(minimum schema.Severity) (string, []any) {
	var marks []string
	var args []any
	for _, sev := range schema.AllSeverities {
		if sev.AtLeast(minimum) {
			marks = append(marks, "?")
			args = append(args, string(sev))
		}
	}
	return "(" + strings.Join(marks, ", ") + ")", args
}

func joinSources(sources []schema.Source) string {
	parts := make([]string, len(sources))
	for i, src := range sources {
		parts[i] = string(src)
	}
	return strings.Join(parts, ",")
}

func splitSources(s string) []schema.Source {
	if s == "" {
		return []schema.Source{}
	}
	parts := strings.Split(s, ",")
	out := make([]schema.Source, 0, len(parts))
	for _, p := range parts {
		out = append(out, schema.Source(p))
	}
	return out
}
