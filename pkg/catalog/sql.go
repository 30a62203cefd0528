package catalog

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Dialect selects placeholder style for a SQL backend
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

const createTableSQL = `CREATE TABLE IF NOT EXISTS plugin_catalog (
	id TEXT PRIMARY KEY,
	enabled BOOLEAN NOT NULL DEFAULT TRUE,
	users TEXT NOT NULL DEFAULT '[]',
	fields TEXT NOT NULL DEFAULT '{}',
	updated_at TIMESTAMP NOT NULL
)`

// SQLStore is a Store backed by a plugin_catalog table
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQLStore opens the database for dialect, pings it and creates the table
func OpenSQLStore(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	switch dialect {
	case DialectSQLite, DialectPostgres:
	default:
		return nil, fmt.Errorf("unsupported catalog dialect %q", dialect)
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}
	if dialect == DialectSQLite {
		// Single writer; also keeps ":memory:" databases on one connection
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to catalog database: %w", err)
	}

	s := NewSQLStore(db, dialect)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database. Call Migrate before first use.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Migrate creates the plugin_catalog table if it does not exist
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create plugin_catalog table: %w", err)
	}
	return nil
}

// Ping checks database connectivity
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB returns the underlying database
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Close closes the database
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// FindAll implements Store
func (s *SQLStore) FindAll(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, enabled, users, fields FROM plugin_catalog ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate catalog: %w", err)
	}
	return out, nil
}

// FindByID implements Store
func (s *SQLStore) FindByID(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT id, enabled, users, fields FROM plugin_catalog WHERE id = ?`), id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	return rec, err
}

// Replace implements Store
func (s *SQLStore) Replace(ctx context.Context, rec Record) error {
	users := rec.Users
	if users == nil {
		users = []string{}
	}
	usersJSON, err := json.Marshal(users)
	if err != nil {
		return fmt.Errorf("failed to marshal users: %w", err)
	}
	fieldsJSON, err := json.Marshal(cleanFields(rec.Fields))
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`INSERT INTO plugin_catalog (id, enabled, users, fields, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			enabled = excluded.enabled,
			users = excluded.users,
			fields = excluded.fields,
			updated_at = excluded.updated_at`),
		rec.ID, rec.Enabled, string(usersJSON), string(fieldsJSON), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert catalog record %s: %w", rec.ID, err)
	}
	return nil
}

// SetEnabled implements Store
func (s *SQLStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE plugin_catalog SET enabled = ?, updated_at = ? WHERE id = ?`),
		enabled, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update catalog record %s: %w", id, err)
	}
	return expectOneRow(res)
}

// Delete implements Store
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM plugin_catalog WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete catalog record %s: %w", id, err)
	}
	return expectOneRow(res)
}

// rebind rewrites ? placeholders to $n for postgres
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec        Record
		usersJSON  string
		fieldsJSON string
	)
	if err := row.Scan(&rec.ID, &rec.Enabled, &usersJSON, &fieldsJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan catalog record: %w", err)
	}

	if err := json.Unmarshal([]byte(usersJSON), &rec.Users); err != nil {
		return nil, fmt.Errorf("failed to decode users of %s: %w", rec.ID, err)
	}
	if rec.Users == nil {
		rec.Users = []string{}
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(fieldsJSON)))
	dec.UseNumber()
	if err := dec.Decode(&rec.Fields); err != nil {
		return nil, fmt.Errorf("failed to decode fields of %s: %w", rec.ID, err)
	}
	if rec.Fields == nil {
		rec.Fields = map[string]interface{}{}
	}

	return &rec, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}
