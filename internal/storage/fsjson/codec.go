package fsjson

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dropDatabas3/indieauth/internal/storage"
	"github.com/dropDatabas3/indieauth/internal/util/atomicwrite"
)

// readTable carga el archivo completo en memoria preservando el orden de
// inserción. Un archivo ausente es una tabla vacía; un archivo corrupto hace
// fallar la lectura entera con storage.ErrCorrupt.
func (s *Store[R]) readTable() (map[string]map[string]any, []string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]map[string]any{}, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("fsjson: read %s: %w", s.path, err)
	}
	if s.format == FormatJSONL {
		return s.parseJSONL(data)
	}
	return s.parseJSON(data)
}

func (s *Store[R]) parseJSON(data []byte) (map[string]map[string]any, []string, error) {
	rows := map[string]map[string]any{}
	var order []string
	if len(bytes.TrimSpace(data)) == 0 {
		return rows, order, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, fmt.Errorf("fsjson: %s: %v: %w", s.path, err, storage.ErrCorrupt)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("fsjson: %s: expected top-level object: %w", s.path, storage.ErrCorrupt)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, fmt.Errorf("fsjson: %s: %v: %w", s.path, err, storage.ErrCorrupt)
		}
		key := keyTok.(string)
		var row map[string]any
		if err := dec.Decode(&row); err != nil {
			return nil, nil, fmt.Errorf("fsjson: %s: record %q: %v: %w", s.path, key, err, storage.ErrCorrupt)
		}
		if _, dup := rows[key]; !dup {
			order = append(order, key)
		}
		rows[key] = row
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, fmt.Errorf("fsjson: %s: %v: %w", s.path, err, storage.ErrCorrupt)
	}
	return rows, order, nil
}

func (s *Store[R]) parseJSONL(data []byte) (map[string]map[string]any, []string, error) {
	rows := map[string]map[string]any{}
	var order []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		var row map[string]any
		if err := dec.Decode(&row); err != nil {
			return nil, nil, fmt.Errorf("fsjson: %s: line %d: %v: %w", s.path, lineNo, err, storage.ErrCorrupt)
		}
		key, ok := row[s.spec.PrimaryKey].(string)
		if !ok || key == "" {
			return nil, nil, fmt.Errorf("fsjson: %s: line %d: missing %s: %w", s.path, lineNo, s.spec.PrimaryKey, storage.ErrCorrupt)
		}
		if _, dup := rows[key]; !dup {
			order = append(order, key)
		}
		rows[key] = row
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("fsjson: scan %s: %w", s.path, err)
	}
	return rows, order, nil
}

// writeTable serializa la tabla completa y la escribe de forma atómica.
func (s *Store[R]) writeTable(rows map[string]map[string]any, order []string) error {
	var buf bytes.Buffer
	if s.format == FormatJSONL {
		for _, key := range order {
			line, err := json.Marshal(rows[key])
			if err != nil {
				return fmt.Errorf("fsjson: marshal %q: %w", key, err)
			}
			buf.Write(line)
			buf.WriteByte('\n')
		}
	} else {
		buf.WriteString("{\n")
		for i, key := range order {
			k, _ := json.Marshal(key)
			v, err := json.Marshal(rows[key])
			if err != nil {
				return fmt.Errorf("fsjson: marshal %q: %w", key, err)
			}
			buf.WriteString("  ")
			buf.Write(k)
			buf.WriteString(": ")
			buf.Write(v)
			if i < len(order)-1 {
				buf.WriteByte(',')
			}
			buf.WriteByte('\n')
		}
		buf.WriteString("}\n")
	}
	if err := atomicwrite.AtomicWriteFile(s.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("fsjson: write %s: %w", s.path, err)
	}
	return nil
}
