// Package sqldb implementa el contrato CRUD sobre database/sql. Los paquetes
// sqlite y postgres aportan driver, DSN y schema; el resto del comportamiento
// es común a ambos motores vía sqlgen.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/dropDatabas3/indieauth/internal/storage"
	"github.com/dropDatabas3/indieauth/internal/storage/sqlgen"
)

// DB envuelve la conexión y el dialecto activo.
type DB struct {
	sql     *sql.DB
	dialect sqlgen.Dialect
	now     func() time.Time
}

func New(sqlDB *sql.DB, dialect sqlgen.Dialect) *DB {
	return &DB{sql: sqlDB, dialect: dialect, now: time.Now}
}

func (d *DB) Close() error { return d.sql.Close() }

// EnsureSchema aplica el DDL idempotente del backend.
func (d *DB) EnsureSchema(ctx context.Context, schema string) error {
	if _, err := d.sql.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqldb: ensure schema: %w", err)
	}
	return nil
}

type txKey struct{}

// InTx corre fn dentro de una transacción; los stores derivados del mismo DB
// que reciban el ctx devuelto participan de ella.
func (d *DB) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqldb: begin tx: %w", err)
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqldb: commit: %w", err)
	}
	return nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (d *DB) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return d.sql
}

// Store implementa storage.Store[R] sobre una tabla.
type Store[R storage.Entity] struct {
	db      *DB
	spec    storage.KindSpec
	builder *sqlgen.Builder
}

func NewStore[R storage.Entity](db *DB, spec storage.KindSpec) *Store[R] {
	return &Store[R]{db: db, spec: spec, builder: sqlgen.New(spec, db.dialect)}
}

// isUniqueViolation distingue el choque de primary key por el tipo de error
// del driver; el chequeo por texto queda como último recurso.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}

func (s *Store[R]) StoreOne(ctx context.Context, rec R) (R, error) {
	var zero R
	if rec.StorageKey() == "" {
		return zero, fmt.Errorf("%w: record with empty primary key", storage.ErrInvalidQuery)
	}
	fields, err := storage.ToFields(rec)
	if err != nil {
		return zero, err
	}
	storage.Stamp(fields, s.db.now().Unix(), true)
	query, args, err := s.builder.Insert(fields)
	if err != nil {
		return zero, err
	}
	if _, err := s.db.q(ctx).ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return zero, fmt.Errorf("%w: %s %q", storage.ErrConflict, s.spec.Name, rec.StorageKey())
		}
		return zero, fmt.Errorf("sqldb: insert %s: %w", s.spec.Name, err)
	}
	return storage.FromFields[R](fields)
}

func (s *Store[R]) RetrieveOne(ctx context.Context, q *storage.SelectQuery) (R, error) {
	var zero R
	recs, err := s.RetrieveMany(ctx, q)
	if err != nil {
		return zero, err
	}
	if len(recs) == 0 {
		return zero, storage.ErrNotFound
	}
	return recs[0], nil
}

func (s *Store[R]) RetrieveMany(ctx context.Context, q *storage.SelectQuery) ([]R, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	query, args, err := s.builder.Select(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqldb: select %s: %w", s.spec.Name, err)
	}
	defer rows.Close()
	all, err := sqlgen.RowsToFields(rows, s.spec)
	if err != nil {
		return nil, err
	}
	out := make([]R, 0, len(all))
	for _, fields := range all {
		rec, err := storage.FromFields[R](fields)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store[R]) UpdateMany(ctx context.Context, q storage.UpdateQuery) ([]R, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	query, args, err := s.builder.Update(q, s.db.now().Unix())
	if err != nil {
		return nil, err
	}
	return s.returning(ctx, query, args, q.Returning)
}

func (s *Store[R]) RemoveMany(ctx context.Context, q *storage.DeleteQuery) ([]R, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	query, args, err := s.builder.Delete(q)
	if err != nil {
		return nil, err
	}
	return s.returning(ctx, query, args, nil)
}

func (s *Store[R]) returning(ctx context.Context, query string, args []any, sel []string) ([]R, error) {
	rows, err := s.db.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqldb: %s: %w", s.spec.Name, err)
	}
	defer rows.Close()
	all, err := sqlgen.RowsToFields(rows, s.spec)
	if err != nil {
		return nil, err
	}
	out := make([]R, 0, len(all))
	for _, fields := range all {
		rec, err := storage.FromFields[R](storage.Project(fields, sel, s.spec.PrimaryKey))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
