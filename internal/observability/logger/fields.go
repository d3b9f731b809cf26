package logger

import (
	"time"

	"go.uber.org/zap"
)

// Campos estándar del dominio. Usar siempre estos helpers para que los
// nombres de campo sean consistentes en todos los logs.

// ClientID crea un campo para el client_id OAuth.
func ClientID(v string) zap.Field {
	return zap.String("client_id", v)
}

// Me crea un campo para la profile URL canónica.
func Me(v string) zap.Field {
	return zap.String("me", v)
}

// Jti crea un campo para el identificador de un access token.
func Jti(v string) zap.Field {
	return zap.String("jti", v)
}

// Backend crea un campo para el backend de storage en uso.
func Backend(v string) zap.Field {
	return zap.String("backend", v)
}

// RecordKind crea un campo para el tipo de registro persistido.
func RecordKind(v string) zap.Field {
	return zap.String("kind", v)
}

// Op crea un campo para la operación actual.
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Layer crea un campo para la capa (engine, storage, jwt).
func Layer(v string) zap.Field {
	return zap.String("layer", v)
}

// Err crea un campo para un error.
func Err(err error) zap.Field {
	return zap.Error(err)
}

// Count crea un campo para un conteo.
func Count(v int) zap.Field {
	return zap.Int("count", v)
}

// Duration crea un campo para una duración.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// String crea un campo string genérico.
func String(key, v string) zap.Field {
	return zap.String(key, v)
}

// Int crea un campo int genérico.
func Int(key string, v int) zap.Field {
	return zap.Int(key, v)
}

// Bool crea un campo bool genérico.
func Bool(key string, v bool) zap.Field {
	return zap.Bool(key, v)
}

// Any crea un campo genérico para cualquier tipo.
func Any(key string, v any) zap.Field {
	return zap.Any(key, v)
}
