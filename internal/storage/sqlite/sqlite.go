// Package sqlite abre el backend relacional embebido (modernc.org/sqlite,
// driver puro Go) y garantiza el schema al arrancar.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/dropDatabas3/indieauth/internal/storage/sqldb"
	"github.com/dropDatabas3/indieauth/internal/storage/sqlgen"
)

//go:embed schema.sql
var schema string

// Open abre (o crea) la base en path y aplica el schema. Un solo writer:
// SQLite serializa escrituras, el pool se limita a una conexión para evitar
// SQLITE_BUSY bajo concurrencia.
func Open(ctx context.Context, path string) (*sqldb.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	raw, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	raw.SetMaxOpenConns(1)
	db := sqldb.New(raw, sqlgen.DialectSQLite)
	if err := db.EnsureSchema(ctx, schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
