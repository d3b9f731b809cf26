package storage_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dropDatabas3/indieauth/internal/record"
	"github.com/dropDatabas3/indieauth/internal/storage"
	"github.com/dropDatabas3/indieauth/internal/storage/fsjson"
	"github.com/dropDatabas3/indieauth/internal/storage/memory"
	"github.com/dropDatabas3/indieauth/internal/storage/sqldb"
	"github.com/dropDatabas3/indieauth/internal/storage/sqlite"
)

// La misma secuencia de operaciones CRUD debe producir el mismo conjunto
// lógico de registros en todos los backends (ignorando timestamps).
func TestBackendEquivalence(t *testing.T) {
	ctx := context.Background()

	backends := map[string]storage.Store[record.ClientApplication]{
		"mem": memory.NewStore[record.ClientApplication](memory.NewDB(), record.ClientApplications),
	}
	for _, format := range []fsjson.Format{fsjson.FormatJSON, fsjson.FormatJSONL} {
		s, err := fsjson.NewStore[record.ClientApplication](t.TempDir(), record.ClientApplications, format)
		if err != nil {
			t.Fatalf("fsjson %s: %v", format, err)
		}
		backends["fs-"+string(format)] = s
	}
	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "eq.db"))
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	backends["sqlite"] = sqldb.NewStore[record.ClientApplication](db, record.ClientApplications)

	for name, s := range backends {
		t.Run(name, func(t *testing.T) {
			seed := []record.ClientApplication{
				{ClientID: "https://one.example.com/", ClientName: "One"},
				{ClientID: "https://two.example.com/", ClientName: "Two"},
				{ClientID: "https://three.example.com/", ClientName: "Three"},
			}
			for _, rec := range seed {
				if _, err := s.StoreOne(ctx, rec); err != nil {
					t.Fatalf("StoreOne: %v", err)
				}
			}

			all, err := s.RetrieveMany(ctx, nil)
			if err != nil {
				t.Fatalf("RetrieveMany: %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("expected 3 records, got %d", len(all))
			}
			for i, rec := range all {
				if rec.ClientID != seed[i].ClientID {
					t.Fatalf("insertion order differs at %d: got %s", i, rec.ClientID)
				}
			}

			updated, err := s.UpdateMany(ctx, storage.UpdateQuery{
				Set: map[string]any{"client_name": "Renamed"},
				Where: []storage.WhereExpr{
					storage.Eq("client_id", "https://one.example.com/"),
					storage.Eq("client_id", "https://two.example.com/"),
				},
				Condition: storage.Or,
			})
			if err != nil {
				t.Fatalf("UpdateMany: %v", err)
			}
			if len(updated) != 2 {
				t.Fatalf("expected 2 updated, got %d", len(updated))
			}
			for _, rec := range updated {
				if rec.ClientName != "Renamed" {
					t.Fatalf("update not applied: %+v", rec)
				}
			}

			removed, err := s.RemoveMany(ctx, &storage.DeleteQuery{
				Where: []storage.WhereExpr{storage.Eq("client_name", "Renamed")},
			})
			if err != nil {
				t.Fatalf("RemoveMany: %v", err)
			}
			if len(removed) != 2 {
				t.Fatalf("expected 2 removed, got %d", len(removed))
			}

			rest, err := s.RetrieveMany(ctx, nil)
			if err != nil {
				t.Fatalf("RetrieveMany: %v", err)
			}
			if len(rest) != 1 || rest[0].ClientName != "Three" {
				t.Fatalf("unexpected remainder: %+v", rest)
			}
		})
	}
}
