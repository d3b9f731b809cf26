package sqlgen

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dropDatabas3/indieauth/internal/storage"
)

// RowsToFields escanea el resultado completo a la forma canónica de campos:
// números como json.Number, columnas booleanas de vuelta a bool.
func RowsToFields(rows *sql.Rows, spec storage.KindSpec) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("sqlgen: columns: %w", err)
	}
	var out []map[string]any
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("sqlgen: scan: %w", err)
		}
		fields := make(map[string]any, len(cols))
		for i, col := range cols {
			fields[col] = fromColumn(col, raw[i], spec)
		}
		out = append(out, fields)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlgen: rows: %w", err)
	}
	return out, nil
}

func fromColumn(col string, v any, spec storage.KindSpec) any {
	switch val := v.(type) {
	case nil:
		return nil
	case int64:
		if spec.IsBoolean(col) {
			return val != 0
		}
		return json.Number(strconv.FormatInt(val, 10))
	case float64:
		return json.Number(strconv.FormatFloat(val, 'g', -1, 64))
	case bool:
		return val
	case []byte:
		return string(val)
	case string:
		return val
	default:
		return val
	}
}
