package storage

import "context"

// Entity es un registro persistible. Cada tipo de registro (internal/record)
// implementa esta interfaz; los backends no conocen los tipos concretos.
type Entity interface {
	// StorageKey retorna el valor de la primary key del registro.
	StorageKey() string
}

// KindSpec describe un tipo de registro para los backends: nombre de la
// tabla/archivo, nombre del campo primary key y qué campos son booleanos
// (los backends SQL los persisten como enteros 0/1).
type KindSpec struct {
	Name       string
	PrimaryKey string
	Booleans   []string
}

// IsBoolean indica si el campo se persiste como booleano.
func (s KindSpec) IsBoolean(field string) bool {
	for _, b := range s.Booleans {
		if b == field {
			return true
		}
	}
	return false
}

// Store es el contrato CRUD que todo backend implementa con semántica
// idéntica para un tipo de registro R:
//
//   - StoreOne persiste un registro nuevo y retorna la versión persistida
//     (con created_at/updated_at estampados por el backend).
//   - RetrieveOne retorna el primer registro que matchea; ErrNotFound si
//     ninguno matchea.
//   - RetrieveMany retorna los registros que matchean en orden de inserción
//     (salvo que el backend documente otro orden).
//   - UpdateMany aplica Set a los registros que matchean y los retorna ya
//     mutados, honrando Returning. Siempre re-estampa updated_at.
//   - RemoveMany borra los registros que matchean y los retorna.
type Store[R Entity] interface {
	StoreOne(ctx context.Context, rec R) (R, error)
	RetrieveOne(ctx context.Context, q *SelectQuery) (R, error)
	RetrieveMany(ctx context.Context, q *SelectQuery) ([]R, error)
	UpdateMany(ctx context.Context, q UpdateQuery) ([]R, error)
	RemoveMany(ctx context.Context, q *DeleteQuery) ([]R, error)
}

// Transactor lo implementan los backends relacionales: fn corre dentro de
// una transacción y cualquier error la revierte completa. Los backends
// file/mem no lo implementan; los callers que necesitan escrituras multi-
// registro atómicas degradan a escrituras secuenciales con compensación.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
