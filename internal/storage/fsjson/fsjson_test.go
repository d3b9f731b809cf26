package fsjson

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/dropDatabas3/indieauth/internal/storage"
)

type entry struct {
	ID     string `json:"id"`
	Body   string `json:"body"`
	Done   bool   `json:"done"`
	Weight int64  `json:"weight"`
}

func (e entry) StorageKey() string { return e.ID }

var entrySpec = storage.KindSpec{Name: "entry", PrimaryKey: "id", Booleans: []string{"done"}}

func newStoreT(t *testing.T, format Format) *Store[entry] {
	t.Helper()
	s, err := NewStore[entry](t.TempDir(), entrySpec, format)
	if err != nil {
		t.Fatalf("NewStore err: %v", err)
	}
	return s
}

func TestCRUD_BothFormats(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatJSONL} {
		t.Run(string(format), func(t *testing.T) {
			ctx := context.Background()
			s := newStoreT(t, format)

			for i := 0; i < 3; i++ {
				if _, err := s.StoreOne(ctx, entry{ID: fmt.Sprintf("e%d", i), Weight: int64(i)}); err != nil {
					t.Fatalf("StoreOne err: %v", err)
				}
			}
			if _, err := s.StoreOne(ctx, entry{ID: "e0"}); !errors.Is(err, storage.ErrConflict) {
				t.Fatalf("duplicate pk: expected ErrConflict, got %v", err)
			}

			all, err := s.RetrieveMany(ctx, nil)
			if err != nil {
				t.Fatal(err)
			}
			if len(all) != 3 || all[0].ID != "e0" || all[2].ID != "e2" {
				t.Fatalf("insertion order broken: %+v", all)
			}

			updated, err := s.UpdateMany(ctx, storage.UpdateQuery{
				Set:   map[string]any{"done": true},
				Where: []storage.WhereExpr{storage.Where("weight", storage.OpGte, 1)},
			})
			if err != nil {
				t.Fatal(err)
			}
			if len(updated) != 2 {
				t.Fatalf("expected 2 updated, got %d", len(updated))
			}

			removed, err := s.RemoveMany(ctx, &storage.DeleteQuery{
				Where: []storage.WhereExpr{storage.Eq("done", true)},
			})
			if err != nil {
				t.Fatal(err)
			}
			if len(removed) != 2 {
				t.Fatalf("expected 2 removed, got %d", len(removed))
			}

			rest, _ := s.RetrieveMany(ctx, nil)
			if len(rest) != 1 || rest[0].ID != "e0" {
				t.Fatalf("unexpected remainder: %+v", rest)
			}
		})
	}
}

func TestPersistence_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s1, err := NewStore[entry](root, entrySpec, FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s1.StoreOne(ctx, entry{ID: "keep", Body: "persisted"}); err != nil {
		t.Fatal(err)
	}

	s2, err := NewStore[entry](root, entrySpec, FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	rec, err := s2.RetrieveOne(ctx, &storage.SelectQuery{
		Where: []storage.WhereExpr{storage.Eq("id", "keep")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Body != "persisted" {
		t.Fatalf("record lost across reopen: %+v", rec)
	}
}

func TestCorruptFile_FailsWholeParse(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewStore[entry](root, entrySpec, FormatJSONL)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.StoreOne(ctx, entry{ID: "good"}); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(filepath.Join(root, "entry.jsonl"), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("{not json\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if _, err := s.RetrieveMany(ctx, nil); !errors.Is(err, storage.ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestAppendMany_JSONLOnly(t *testing.T) {
	ctx := context.Background()
	s := newStoreT(t, FormatJSONL)
	recs := []entry{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	out, err := s.AppendMany(ctx, recs)
	if err != nil {
		t.Fatalf("AppendMany err: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 appended, got %d", len(out))
	}
	all, err := s.RetrieveMany(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records after append, got %d", len(all))
	}

	js := newStoreT(t, FormatJSON)
	if _, err := js.AppendMany(ctx, recs); err == nil {
		t.Fatal("AppendMany on the json format must fail")
	}
}

// Dos "escritores" concurrentes sobre el mismo archivo: el lock serializa y
// el archivo resultante parsea con todos los registros, sin corrupción.
func TestConcurrentStoreOne_NoCorruption(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s1, err := NewStore[entry](root, entrySpec, FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	s2, err := NewStore[entry](root, entrySpec, FormatJSON)
	if err != nil {
		t.Fatal(err)
	}

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		s := s1
		if i%2 == 1 {
			s = s2
		}
		wg.Add(1)
		go func(i int, s *Store[entry]) {
			defer wg.Done()
			if _, err := s.StoreOne(ctx, entry{ID: fmt.Sprintf("w%03d", i)}); err != nil {
				t.Errorf("StoreOne %d: %v", i, err)
			}
		}(i, s)
	}
	wg.Wait()

	all, err := s1.RetrieveMany(ctx, nil)
	if err != nil {
		t.Fatalf("parse back after concurrent writes: %v", err)
	}
	if len(all) != n {
		t.Fatalf("expected %d records, got %d", n, len(all))
	}
}

// Un lock sostenido por otro proceso no agota ningún presupuesto de intentos:
// el escritor espera hasta que se libere (dentro del deadline) y completa.
func TestStoreOne_WaitsForHeldLock(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewStore[entry](root, entrySpec, FormatJSON)
	if err != nil {
		t.Fatal(err)
	}

	fl := flock.New(filepath.Join(root, entrySpec.Name+".json.lock"))
	locked, err := fl.TryLock()
	if err != nil || !locked {
		t.Fatalf("could not pre-acquire the lock: locked=%v err=%v", locked, err)
	}
	timer := time.AfterFunc(300*time.Millisecond, func() { _ = fl.Unlock() })
	defer timer.Stop()

	if _, err := s.StoreOne(ctx, entry{ID: "held"}); err != nil {
		t.Fatalf("StoreOne while lock was held: %v", err)
	}
	if _, err := s.RetrieveOne(ctx, &storage.SelectQuery{
		Where: []storage.WhereExpr{storage.Eq("id", "held")},
	}); err != nil {
		t.Fatalf("record not persisted after lock release: %v", err)
	}
}
