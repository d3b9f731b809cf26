package sqlgen

import (
	"errors"
	"testing"

	"github.com/dropDatabas3/indieauth/internal/storage"
)

var spec = storage.KindSpec{Name: "widget", PrimaryKey: "id", Booleans: []string{"done"}}

func TestInsert_SortedColumnsAndBooleans(t *testing.T) {
	b := New(spec, DialectSQLite)
	sql, args, err := b.Insert(map[string]any{"id": "w1", "done": true, "count": storage.Number(7)})
	if err != nil {
		t.Fatalf("Insert err: %v", err)
	}
	want := "INSERT INTO widget (count, done, id) VALUES (?, ?, ?)"
	if sql != want {
		t.Fatalf("sql mismatch:\n got %q\nwant %q", sql, want)
	}
	if args[0] != int64(7) || args[1] != int64(1) || args[2] != "w1" {
		t.Fatalf("args mismatch: %+v", args)
	}
}

func TestSelect_Placeholders(t *testing.T) {
	q := &storage.SelectQuery{
		Where: []storage.WhereExpr{
			storage.Eq("id", "w1"),
			storage.Where("count", storage.OpGt, 3),
		},
		Condition: storage.Or,
	}
	sql, args, err := New(spec, DialectSQLite).Select(q)
	if err != nil {
		t.Fatal(err)
	}
	if sql != "SELECT * FROM widget WHERE id = ? OR count > ?" {
		t.Fatalf("sqlite sql: %q", sql)
	}
	if len(args) != 2 {
		t.Fatalf("args: %+v", args)
	}

	sql, _, err = New(spec, DialectPostgres).Select(q)
	if err != nil {
		t.Fatal(err)
	}
	if sql != "SELECT * FROM widget WHERE id = $1 OR count > $2" {
		t.Fatalf("postgres sql: %q", sql)
	}
}

func TestSelect_ProjectionKeepsPK(t *testing.T) {
	sql, _, err := New(spec, DialectSQLite).Select(&storage.SelectQuery{Select: []string{"count"}})
	if err != nil {
		t.Fatal(err)
	}
	if sql != "SELECT id, count FROM widget" {
		t.Fatalf("sql: %q", sql)
	}
}

func TestUpdate_StampsAndReturning(t *testing.T) {
	sql, args, err := New(spec, DialectPostgres).Update(storage.UpdateQuery{
		Set:   map[string]any{"done": true},
		Where: []storage.WhereExpr{storage.Eq("id", "w1")},
	}, 1700000000)
	if err != nil {
		t.Fatal(err)
	}
	want := "UPDATE widget SET done = $1, updated_at = $2 WHERE id = $3 RETURNING *"
	if sql != want {
		t.Fatalf("sql mismatch:\n got %q\nwant %q", sql, want)
	}
	if args[0] != int64(1) || args[1] != int64(1700000000) || args[2] != "w1" {
		t.Fatalf("args: %+v", args)
	}
}

func TestDelete_NoWhereDeletesAll(t *testing.T) {
	sql, args, err := New(spec, DialectSQLite).Delete(nil)
	if err != nil {
		t.Fatal(err)
	}
	if sql != "DELETE FROM widget RETURNING *" || len(args) != 0 {
		t.Fatalf("sql: %q args: %+v", sql, args)
	}
}

func TestInvalidIdentifier_Rejected(t *testing.T) {
	_, _, err := New(spec, DialectSQLite).Select(&storage.SelectQuery{
		Where: []storage.WhereExpr{storage.Eq("id; DROP TABLE widget", "x")},
	})
	if !errors.Is(err, storage.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}
