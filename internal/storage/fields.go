package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Los backends no-SQL trabajan internamente con map[string]any en forma
// canónica JSON: strings, bools y json.Number. Las conversiones acá son el
// puente entre esos maps y los tipos de registro de internal/record.

// ToFields convierte un registro tipado a su forma de campos canónica.
// Los nombres de campo salen de los tags json del tipo.
func ToFields(rec any) (map[string]any, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("storage: marshal record: %w", err)
	}
	return decodeFields(raw)
}

// FromFields reconstruye un registro tipado desde su forma de campos.
func FromFields[R any](fields map[string]any) (R, error) {
	var rec R
	raw, err := json.Marshal(fields)
	if err != nil {
		return rec, fmt.Errorf("storage: marshal fields: %w", err)
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("storage: unmarshal record: %w", err)
	}
	return rec, nil
}

// NormalizeValue lleva un valor arbitrario a forma canónica JSON
// (json.Number para numéricos). Necesario para comparar valores de
// WhereExpr/Set contra campos ya decodificados.
func NormalizeValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("storage: marshal value: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("storage: decode value: %w", err)
	}
	return out, nil
}

func decodeFields(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("storage: decode fields: %w", err)
	}
	return m, nil
}

// CloneFields copia superficialmente un mapa de campos. Los valores son
// inmutables (string/bool/json.Number), así que la copia superficial alcanza.
func CloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// ApplySet retorna una COPIA de fields con los valores de set aplicados.
// Nunca muta fields in place: los backends copy-on-write dependen de esto.
func ApplySet(fields, set map[string]any) (map[string]any, error) {
	out := CloneFields(fields)
	for k, v := range set {
		nv, err := NormalizeValue(v)
		if err != nil {
			return nil, err
		}
		out[k] = nv
	}
	return out, nil
}

// Project retorna una copia de fields con solo los campos seleccionados.
// La primary key se conserva siempre. sel vacío retorna todos los campos.
func Project(fields map[string]any, sel []string, primaryKey string) map[string]any {
	if len(sel) == 0 {
		return CloneFields(fields)
	}
	out := make(map[string]any, len(sel)+1)
	if v, ok := fields[primaryKey]; ok {
		out[primaryKey] = v
	}
	for _, k := range sel {
		if v, ok := fields[k]; ok {
			out[k] = v
		}
	}
	return out
}

// MatchWhere evalúa la lista de WhereExpr contra un registro. Lista vacía
// matchea todo. La condición combina los resultados (AND por defecto).
func MatchWhere(fields map[string]any, where []WhereExpr, c Condition) (bool, error) {
	if len(where) == 0 {
		return true, nil
	}
	matched := cond(c) == And
	for _, w := range where {
		ok, err := matchExpr(fields, w)
		if err != nil {
			return false, err
		}
		if cond(c) == And {
			matched = matched && ok
			if !matched {
				return false, nil
			}
		} else {
			matched = matched || ok
		}
	}
	return matched, nil
}

func matchExpr(fields map[string]any, w WhereExpr) (bool, error) {
	if !validOps[w.Op] {
		return false, fmt.Errorf("%w: unknown operator %q", ErrInvalidQuery, w.Op)
	}
	want, err := NormalizeValue(w.Value)
	if err != nil {
		return false, err
	}
	got, present := fields[w.Key]
	if !present || got == nil || want == nil {
		// Campo ausente o nil: solo igualdad contra nil tiene sentido.
		eq := (!present || got == nil) && want == nil
		switch w.Op {
		case OpEq:
			return eq, nil
		case OpNeq:
			return !eq, nil
		default:
			return false, nil
		}
	}
	return compareValues(got, w.Op, want)
}

func compareValues(got any, op Op, want any) (bool, error) {
	// Numéricos: comparar como float64 sin importar la representación.
	if gf, gok := toFloat(got); gok {
		if wf, wok := toFloat(want); wok {
			return compareOrdered(gf, op, wf), nil
		}
	}
	switch g := got.(type) {
	case string:
		if w, ok := want.(string); ok {
			return compareOrdered(g, op, w), nil
		}
	case bool:
		if w, ok := want.(bool); ok {
			switch op {
			case OpEq:
				return g == w, nil
			case OpNeq:
				return g != w, nil
			default:
				return false, fmt.Errorf("%w: operator %q on boolean", ErrInvalidQuery, op)
			}
		}
	}
	// Tipos incompatibles: solo != es verdadero.
	return op == OpNeq, nil
}

func compareOrdered[T string | float64](g T, op Op, w T) bool {
	switch op {
	case OpEq:
		return g == w
	case OpNeq:
		return g != w
	case OpLt:
		return g < w
	case OpLte:
		return g <= w
	case OpGt:
		return g > w
	case OpGte:
		return g >= w
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Number convierte un int64 a la representación canónica de campos.
func Number(v int64) json.Number {
	return json.Number(strconv.FormatInt(v, 10))
}

// Stamp estampa created_at (solo si isNew) y updated_at en unix seconds.
func Stamp(fields map[string]any, now int64, isNew bool) {
	if isNew {
		fields["created_at"] = Number(now)
	}
	fields["updated_at"] = Number(now)
}
