package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/dropDatabas3/indieauth/internal/record"
	"github.com/dropDatabas3/indieauth/internal/storage"
	"github.com/dropDatabas3/indieauth/internal/storage/sqldb"
)

// Requiere un Postgres real: se corre solo con POSTGRES_TEST_DSN seteado.
func openT(t *testing.T) *sqldb.DB {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	db, err := Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCRUD_RefreshTokens(t *testing.T) {
	ctx := context.Background()
	db := openT(t)
	refresh := sqldb.NewStore[record.RefreshToken](db, record.RefreshTokens)

	key := fmt.Sprintf("rt-%d", time.Now().UnixNano())
	stored, err := refresh.StoreOne(ctx, record.RefreshToken{
		RefreshToken: key,
		Jti:          "j-" + key,
		Me:           "https://me.example.com/",
		Scope:        "create",
		Exp:          time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("StoreOne err: %v", err)
	}
	if stored.CreatedAt == 0 {
		t.Fatalf("timestamps not stamped: %+v", stored)
	}

	updated, err := refresh.UpdateMany(ctx, storage.UpdateQuery{
		Set:   map[string]any{"revoked": true, "revocation_reason": "test"},
		Where: []storage.WhereExpr{storage.Eq("refresh_token", key)},
	})
	if err != nil || len(updated) != 1 || !updated[0].Revoked {
		t.Fatalf("UpdateMany: %+v err=%v", updated, err)
	}

	removed, err := refresh.RemoveMany(ctx, &storage.DeleteQuery{
		Where: []storage.WhereExpr{storage.Eq("refresh_token", key)},
	})
	if err != nil || len(removed) != 1 {
		t.Fatalf("RemoveMany: %+v err=%v", removed, err)
	}

	if _, err := refresh.RetrieveOne(ctx, &storage.SelectQuery{
		Where: []storage.WhereExpr{storage.Eq("refresh_token", key)},
	}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
