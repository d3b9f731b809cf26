package storage

import "errors"

var (
	// ErrNotFound indica que ningún registro coincide con la query.
	// Los engines lo distinguen de un fallo de infraestructura.
	ErrNotFound = errors.New("storage: not found")

	// ErrConflict indica que ya existe un registro con la misma primary key.
	ErrConflict = errors.New("storage: conflict")

	// ErrInvalidQuery indica una query malformada (op desconocido, set vacío, etc).
	ErrInvalidQuery = errors.New("storage: invalid query")

	// ErrLockTimeout indica que no se pudo adquirir el file lock dentro del
	// presupuesto de reintentos.
	ErrLockTimeout = errors.New("storage: lock acquisition timed out")

	// ErrCorrupt indica contenido persistido que no se pudo parsear.
	ErrCorrupt = errors.New("storage: corrupt content")
)
