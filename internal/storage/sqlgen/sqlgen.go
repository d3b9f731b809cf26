// Package sqlgen genera el SQL de los backends relacionales a partir del
// modelo de queries de storage. Los dos dialectos soportados difieren solo
// en el estilo de placeholder; el resto del SQL es común.
package sqlgen

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/dropDatabas3/indieauth/internal/storage"
)

// Dialect identifica la sintaxis de placeholders del motor.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Builder arma sentencias para un tipo de registro en un dialecto dado.
type Builder struct {
	spec    storage.KindSpec
	dialect Dialect
}

func New(spec storage.KindSpec, dialect Dialect) *Builder {
	return &Builder{spec: spec, dialect: dialect}
}

func (b *Builder) placeholder(n int) string {
	if b.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// sqlOp traduce el operador del modelo de queries a SQL. "==" no es SQL
// estándar (Postgres lo rechaza).
func sqlOp(op storage.Op) (string, error) {
	switch op {
	case storage.OpEq:
		return "=", nil
	case storage.OpNeq:
		return "<>", nil
	case storage.OpLt, storage.OpLte, storage.OpGt, storage.OpGte:
		return string(op), nil
	default:
		return "", fmt.Errorf("%w: unknown operator %q", storage.ErrInvalidQuery, op)
	}
}

func checkIdent(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("%w: invalid identifier %q", storage.ErrInvalidQuery, name)
	}
	return nil
}

// arg convierte un valor en forma canónica de campos al tipo que espera el
// driver. Los booleanos se persisten como enteros 0/1 en ambos motores.
func (b *Builder) arg(key string, v any) (any, error) {
	switch val := v.(type) {
	case bool:
		if b.spec.IsBoolean(key) {
			if val {
				return int64(1), nil
			}
			return int64(0), nil
		}
		return val, nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: bad number for %s: %v", storage.ErrInvalidQuery, key, err)
		}
		return f, nil
	default:
		return val, nil
	}
}

// Insert genera el INSERT de un registro completo.
func (b *Builder) Insert(fields map[string]any) (string, []any, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cols := make([]string, 0, len(keys))
	marks := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		if err := checkIdent(k); err != nil {
			return "", nil, err
		}
		a, err := b.arg(k, fields[k])
		if err != nil {
			return "", nil, err
		}
		cols = append(cols, k)
		marks = append(marks, b.placeholder(len(args)+1))
		args = append(args, a)
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		b.spec.Name, strings.Join(cols, ", "), strings.Join(marks, ", "))
	return sql, args, nil
}

// whereClause arma la cláusula WHERE; offset es la cantidad de placeholders
// ya emitidos antes de esta cláusula.
func (b *Builder) whereClause(where []storage.WhereExpr, cond storage.Condition, offset int) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}
	join := " AND "
	if cond == storage.Or {
		join = " OR "
	}
	parts := make([]string, 0, len(where))
	args := make([]any, 0, len(where))
	for _, w := range where {
		if err := checkIdent(w.Key); err != nil {
			return "", nil, err
		}
		a, err := b.arg(w.Key, w.Value)
		if err != nil {
			return "", nil, err
		}
		op, err := sqlOp(w.Op)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, fmt.Sprintf("%s %s %s", w.Key, op, b.placeholder(offset+len(args)+1)))
		args = append(args, a)
	}
	return " WHERE " + strings.Join(parts, join), args, nil
}

func (b *Builder) selectCols(sel []string) (string, error) {
	if len(sel) == 0 {
		return "*", nil
	}
	cols := make([]string, 0, len(sel)+1)
	seen := map[string]bool{}
	for _, c := range append([]string{b.spec.PrimaryKey}, sel...) {
		if err := checkIdent(c); err != nil {
			return "", err
		}
		if !seen[c] {
			seen[c] = true
			cols = append(cols, c)
		}
	}
	return strings.Join(cols, ", "), nil
}

// Select genera el SELECT de una query; la primary key siempre se proyecta.
func (b *Builder) Select(q *storage.SelectQuery) (string, []any, error) {
	var sel []string
	var where []storage.WhereExpr
	var cond storage.Condition
	if q != nil {
		sel, where, cond = q.Select, q.Where, q.Condition
	}
	cols, err := b.selectCols(sel)
	if err != nil {
		return "", nil, err
	}
	clause, args, err := b.whereClause(where, cond, 0)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT %s FROM %s%s", cols, b.spec.Name, clause), args, nil
}

// Update genera el UPDATE con RETURNING * para recuperar las filas afectadas;
// siempre estampa updated_at.
func (b *Builder) Update(q storage.UpdateQuery, now int64) (string, []any, error) {
	set := make(map[string]any, len(q.Set)+1)
	for k, v := range q.Set {
		set[k] = v
	}
	set["updated_at"] = now

	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	assigns := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		if err := checkIdent(k); err != nil {
			return "", nil, err
		}
		a, err := b.arg(k, set[k])
		if err != nil {
			return "", nil, err
		}
		assigns = append(assigns, fmt.Sprintf("%s = %s", k, b.placeholder(len(args)+1)))
		args = append(args, a)
	}
	clause, whereArgs, err := b.whereClause(q.Where, q.Condition, len(args))
	if err != nil {
		return "", nil, err
	}
	args = append(args, whereArgs...)
	sql := fmt.Sprintf("UPDATE %s SET %s%s RETURNING *", b.spec.Name, strings.Join(assigns, ", "), clause)
	return sql, args, nil
}

// Delete genera el DELETE con RETURNING * para devolver las filas removidas.
func (b *Builder) Delete(q *storage.DeleteQuery) (string, []any, error) {
	var where []storage.WhereExpr
	var cond storage.Condition
	if q != nil {
		where, cond = q.Where, q.Condition
	}
	clause, args, err := b.whereClause(where, cond, 0)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("DELETE FROM %s%s RETURNING *", b.spec.Name, clause), args, nil
}
