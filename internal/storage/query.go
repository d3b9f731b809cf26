package storage

import "fmt"

// Op es el operador de comparación de un WhereExpr.
type Op string

const (
	OpEq  Op = "=="
	OpNeq Op = "!="
	OpLt  Op = "<"
	OpLte Op = "<="
	OpGt  Op = ">"
	OpGte Op = ">="
)

var validOps = map[Op]bool{
	OpEq: true, OpNeq: true, OpLt: true, OpLte: true, OpGt: true, OpGte: true,
}

// Condition combina los WhereExpr de una query. No se mezclan por query.
type Condition string

const (
	And Condition = "AND"
	Or  Condition = "OR"
)

// WhereExpr es una comparación tipada sobre un campo del registro.
type WhereExpr struct {
	Key   string
	Op    Op
	Value any
}

// Where es un shortcut para construir un WhereExpr.
func Where(key string, op Op, value any) WhereExpr {
	return WhereExpr{Key: key, Op: op, Value: value}
}

// Eq es un shortcut para la comparación más común.
func Eq(key string, value any) WhereExpr {
	return WhereExpr{Key: key, Op: OpEq, Value: value}
}

// SelectQuery describe una lectura. Where nil significa "todos los registros";
// Select nil significa "todos los campos".
type SelectQuery struct {
	Select    []string
	Where     []WhereExpr
	Condition Condition
}

// UpdateQuery describe una mutación. Set no puede estar vacío.
// Returning limita los campos de los registros retornados.
type UpdateQuery struct {
	Set       map[string]any
	Where     []WhereExpr
	Condition Condition
	Returning []string
}

// DeleteQuery describe un borrado. Where nil borra TODOS los registros:
// es una llamada intencional y explícita, nunca un default de conveniencia.
type DeleteQuery struct {
	Where     []WhereExpr
	Condition Condition
}

func validateWhere(where []WhereExpr, cond Condition) error {
	for _, w := range where {
		if w.Key == "" {
			return fmt.Errorf("%w: where expression with empty key", ErrInvalidQuery)
		}
		if !validOps[w.Op] {
			return fmt.Errorf("%w: unknown operator %q", ErrInvalidQuery, w.Op)
		}
	}
	switch cond {
	case "", And, Or:
		return nil
	default:
		return fmt.Errorf("%w: unknown condition %q", ErrInvalidQuery, cond)
	}
}

// Validate chequea la forma de la query.
func (q *SelectQuery) Validate() error {
	if q == nil {
		return nil
	}
	return validateWhere(q.Where, q.Condition)
}

// Validate chequea la forma de la query. Set vacío es inválido.
func (q *UpdateQuery) Validate() error {
	if len(q.Set) == 0 {
		return fmt.Errorf("%w: update with empty set", ErrInvalidQuery)
	}
	return validateWhere(q.Where, q.Condition)
}

// Validate chequea la forma de la query.
func (q *DeleteQuery) Validate() error {
	if q == nil {
		return nil
	}
	return validateWhere(q.Where, q.Condition)
}

// cond normaliza la condición: AND por defecto.
func cond(c Condition) Condition {
	if c == Or {
		return Or
	}
	return And
}
