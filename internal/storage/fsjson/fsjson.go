// Package fsjson implementa los backends de archivo del contrato CRUD:
// fs-json (la tabla entera es un objeto JSON keyed por primary key) y
// fs-jsonl (un registro JSON por línea).
//
// Concurrencia: cada ciclo read-modify-write adquiere un advisory file lock
// (con espera acotada por deadline) antes de leer el contenido actual,
// computar el nuevo y escribirlo atómicamente; el lock se libera en un defer
// incluso ante error. Un solo escritor a nivel proceso muta el archivo a la
// vez. Las lecturas no toman el lock y pueden observar contenido stale hasta
// la próxima escritura exitosa. No se cachea contenido entre secciones con
// lock: siempre se relee después de adquirirlo.
package fsjson

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/dropDatabas3/indieauth/internal/storage"
)

// Format selecciona la representación en disco.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
)

const (
	lockTimeout    = 5 * time.Second
	lockRetryDelay = 5 * time.Millisecond
)

// Store implementa storage.Store[R] sobre un archivo por tipo de registro.
type Store[R storage.Entity] struct {
	path   string
	spec   storage.KindSpec
	format Format
	now    func() time.Time
}

// NewStore crea el store de archivo para un tipo de registro bajo root.
// El archivo es <root>/<kind>.json o <root>/<kind>.jsonl.
func NewStore[R storage.Entity](root string, spec storage.KindSpec, format Format) (*Store[R], error) {
	if format != FormatJSON && format != FormatJSONL {
		return nil, fmt.Errorf("fsjson: unknown format %q", format)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("fsjson: create root %s: %w", root, err)
	}
	return &Store[R]{
		path:   filepath.Join(root, spec.Name+"."+string(format)),
		spec:   spec,
		format: format,
		now:    time.Now,
	}, nil
}

// withLock adquiere el advisory lock del archivo sondeando a intervalo corto
// hasta el deadline, corre fn y libera el lock pase lo que pase. La espera
// está acotada por tiempo de pared, no por cantidad de intentos: bajo
// contención cada escritor espera su turno en vez de agotar un presupuesto.
func (s *Store[R]) withLock(ctx context.Context, fn func() error) error {
	fl := flock.New(s.path + ".lock")
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	ok, err := fl.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s after %s", storage.ErrLockTimeout, s.path, lockTimeout)
		}
		return fmt.Errorf("fsjson: acquire lock %s: %w", fl.Path(), err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrLockTimeout, s.path)
	}
	defer fl.Unlock()
	return fn()
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
	storage.Stamp(fields, s.now().Unix(), true)

	err = s.withLock(ctx, func() error {
		rows, order, err := s.readTable()
		if err != nil {
			return err
		}
		if _, exists := rows[key]; exists {
			return fmt.Errorf("%w: %s %q", storage.ErrConflict, s.spec.Name, key)
		}
		rows[key] = fields
		return s.writeTable(rows, append(order, key))
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
	rows, order, err := s.readTable()
	if err != nil {
		return nil, err
	}
	var where []storage.WhereExpr
	var c storage.Condition
	var sel []string
	if q != nil {
		where, c, sel = q.Where, q.Condition, q.Select
	}
	out := []R{}
	for _, key := range order {
		fields := rows[key]
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
	err := s.withLock(ctx, func() error {
		rows, order, err := s.readTable()
		if err != nil {
			return err
		}
		updated = updated[:0]
		for _, key := range order {
			ok, err := storage.MatchWhere(rows[key], q.Where, q.Condition)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			next, err := storage.ApplySet(rows[key], q.Set)
			if err != nil {
				return err
			}
			storage.Stamp(next, s.now().Unix(), false)
			rows[key] = next
			updated = append(updated, next)
		}
		if len(updated) == 0 {
			return nil
		}
		return s.writeTable(rows, order)
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
	err := s.withLock(ctx, func() error {
		rows, order, err := s.readTable()
		if err != nil {
			return err
		}
		removed = removed[:0]
		kept := order[:0:0]
		for _, key := range order {
			ok, err := storage.MatchWhere(rows[key], where, c)
			if err != nil {
				return err
			}
			if ok {
				removed = append(removed, rows[key])
				delete(rows, key)
			} else {
				kept = append(kept, key)
			}
		}
		if len(removed) == 0 {
			return nil
		}
		return s.writeTable(rows, kept)
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

// AppendMany agrega registros al final de un archivo JSONL sin fase de
// lectura: el lock se toma solo para el append. No chequea conflictos de
// primary key; es la vía rápida para cargas tipo log.
func (s *Store[R]) AppendMany(ctx context.Context, recs []R) ([]R, error) {
	if s.format != FormatJSONL {
		return nil, fmt.Errorf("fsjson: AppendMany requires the jsonl format")
	}
	now := s.now().Unix()
	var buf bytes.Buffer
	out := make([]R, 0, len(recs))
	for _, rec := range recs {
		if rec.StorageKey() == "" {
			return nil, fmt.Errorf("%w: record with empty primary key", storage.ErrInvalidQuery)
		}
		fields, err := storage.ToFields(rec)
		if err != nil {
			return nil, err
		}
		storage.Stamp(fields, now, true)
		line, err := json.Marshal(fields)
		if err != nil {
			return nil, fmt.Errorf("fsjson: marshal record: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
		stamped, err := storage.FromFields[R](fields)
		if err != nil {
			return nil, err
		}
		out = append(out, stamped)
	}

	err := s.withLock(ctx, func() error {
		f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("fsjson: open for append: %w", err)
		}
		defer f.Close()
		if _, err := f.Write(buf.Bytes()); err != nil {
			return fmt.Errorf("fsjson: append: %w", err)
		}
		return f.Sync()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
