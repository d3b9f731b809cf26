// Package memory implementa el backend in-memory del contrato CRUD.
//
// Todo el estado vive en un único snapshot inmutable reemplazado por swap
// atómico (copy-on-write): cada mutación construye un snapshot nuevo en vez
// de mutar estructuras anidadas in place, así los lectores concurrentes
// nunca observan un registro a medio actualizar. Un mutex serializa a los
// escritores; los lectores cargan el puntero sin lock.
//
// El estado es propiedad del DB construido explícitamente: no hay singleton
// de proceso. Los callers crean el DB una vez y lo comparten por referencia.
package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dropDatabas3/indieauth/internal/storage"
)

type table struct {
	rows  map[string]map[string]any
	order []string
}

type snapshot struct {
	version uint64
	tables  map[string]*table
}

// DB es el estado compartido de todos los stores in-memory que lo referencian.
type DB struct {
	mu    sync.Mutex // serializa escritores
	state atomic.Pointer[snapshot]
	now   func() time.Time
}

// NewDB crea un DB vacío.
func NewDB() *DB {
	db := &DB{now: time.Now}
	db.state.Store(&snapshot{tables: map[string]*table{}})
	return db
}

// Version retorna el contador de versión del snapshot actual. Crece en uno
// por cada mutación aplicada.
func (db *DB) Version() uint64 {
	return db.state.Load().version
}

// load retorna la tabla del snapshot actual (puede ser nil si nunca se escribió).
func (db *DB) load(name string) *table {
	return db.state.Load().tables[name]
}

// mutate corre fn sobre una copia de la tabla y publica el snapshot nuevo.
// fn recibe rows y order ya clonados; puede mutarlos libremente.
func (db *DB) mutate(name string, fn func(rows map[string]map[string]any, order []string) ([]string, error)) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	cur := db.state.Load()
	var rows map[string]map[string]any
	var order []string
	if t := cur.tables[name]; t != nil {
		rows = make(map[string]map[string]any, len(t.rows))
		for k, v := range t.rows {
			rows[k] = v // las filas son inmutables: se reemplazan, no se mutan
		}
		order = append([]string(nil), t.order...)
	} else {
		rows = map[string]map[string]any{}
	}

	newOrder, err := fn(rows, order)
	if err != nil {
		return err
	}

	tables := make(map[string]*table, len(cur.tables)+1)
	for k, v := range cur.tables {
		tables[k] = v
	}
	tables[name] = &table{rows: rows, order: newOrder}
	db.state.Store(&snapshot{version: cur.version + 1, tables: tables})
	return nil
}

// Store implementa storage.Store[R] sobre un DB compartido.
type Store[R storage.Entity] struct {
	db   *DB
	spec storage.KindSpec
}

// NewStore crea el store in-memory para un tipo de registro.
func NewStore[R storage.Entity](db *DB, spec storage.KindSpec) *Store[R] {
	return &Store[R]{db: db, spec: spec}
}

func (s *Store[R]) StoreOne(ctx context.Context, rec R) (R, error) {
	var zero R
	key := rec.StorageKey()
	if key == "" {
		return zero, fmt.Errorf("%w: record with empty primary key", storage.ErrInvalidQuery)
	}
	fields, err := storage.ToFields(rec)
	if err != nil {
		return zero, err
	}
	storage.Stamp(fields, s.db.now().Unix(), true)

	err = s.db.mutate(s.spec.Name, func(rows map[string]map[string]any, order []string) ([]string, error) {
		if _, exists := rows[key]; exists {
			return nil, fmt.Errorf("%w: %s %q", storage.ErrConflict, s.spec.Name, key)
		}
		rows[key] = fields
		return append(order, key), nil
	})
	if err != nil {
		return zero, err
	}
	return storage.FromFields[R](fields)
}

func (s *Store[R]) RetrieveOne(ctx context.Context, q *storage.SelectQuery) (R, error) {
	var zero R
	recs, err := s.retrieve(q, true)
	if err != nil {
		return zero, err
	}
	if len(recs) == 0 {
		return zero, storage.ErrNotFound
	}
	return recs[0], nil
}

func (s *Store[R]) RetrieveMany(ctx context.Context, q *storage.SelectQuery) ([]R, error) {
	return s.retrieve(q, false)
}

func (s *Store[R]) retrieve(q *storage.SelectQuery, first bool) ([]R, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	t := s.db.load(s.spec.Name)
	if t == nil {
		return []R{}, nil
	}
	var where []storage.WhereExpr
	var c storage.Condition
	var sel []string
	if q != nil {
		where, c, sel = q.Where, q.Condition, q.Select
	}
	out := []R{}
	for _, key := range t.order {
		fields := t.rows[key]
		ok, err := storage.MatchWhere(fields, where, c)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		rec, err := storage.FromFields[R](storage.Project(fields, sel, s.spec.PrimaryKey))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
		if first {
			break
		}
	}
	return out, nil
}

func (s *Store[R]) UpdateMany(ctx context.Context, q storage.UpdateQuery) ([]R, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	var updated []map[string]any
	err := s.db.mutate(s.spec.Name, func(rows map[string]map[string]any, order []string) ([]string, error) {
		for _, key := range order {
			fields := rows[key]
			ok, err := storage.MatchWhere(fields, q.Where, q.Condition)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			next, err := storage.ApplySet(fields, q.Set)
			if err != nil {
				return nil, err
			}
			storage.Stamp(next, s.db.now().Unix(), false)
			rows[key] = next
			updated = append(updated, next)
		}
		return order, nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]R, 0, len(updated))
	for _, fields := range updated {
		rec, err := storage.FromFields[R](storage.Project(fields, q.Returning, s.spec.PrimaryKey))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store[R]) RemoveMany(ctx context.Context, q *storage.DeleteQuery) ([]R, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	var where []storage.WhereExpr
	var c storage.Condition
	if q != nil {
		where, c = q.Where, q.Condition
	}
	var removed []map[string]any
	err := s.db.mutate(s.spec.Name, func(rows map[string]map[string]any, order []string) ([]string, error) {
		kept := order[:0:0]
		for _, key := range order {
			fields := rows[key]
			ok, err := storage.MatchWhere(fields, where, c)
			if err != nil {
				return nil, err
			}
			if ok {
				removed = append(removed, fields)
				delete(rows, key)
			} else {
				kept = append(kept, key)
			}
		}
		return kept, nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]R, 0, len(removed))
	for _, fields := range removed {
		rec, err := storage.FromFields[R](fields)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
