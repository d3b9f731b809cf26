// Package postgres abre el backend relacional sobre PostgreSQL usando el
// driver stdlib de pgx, y garantiza el schema al arrancar.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dropDatabas3/indieauth/internal/storage/sqldb"
	"github.com/dropDatabas3/indieauth/internal/storage/sqlgen"
)

//go:embed schema.sql
var schema string

const pingTimeout = 5 * time.Second

// Open conecta al DSN, verifica la conexión y aplica el schema.
func Open(ctx context.Context, dsn string) (*sqldb.DB, error) {
	raw, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	raw.SetMaxOpenConns(10)
	raw.SetMaxIdleConns(2)
	raw.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := raw.PingContext(pingCtx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	db := sqldb.New(raw, sqlgen.DialectPostgres)
	if err := db.EnsureSchema(ctx, schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
