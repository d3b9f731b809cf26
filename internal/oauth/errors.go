// Package oauth implementa los engines del authorization server: emisión y
// canje de authorization codes (con binding PKCE) y el ciclo de vida de
// tokens (emisión, refresh con rotación, revocación, introspección). Ambos
// engines son agnósticos del backend: dependen solo del contrato CRUD de
// internal/storage.
package oauth

import (
	"errors"
	"fmt"
)

// Kind clasifica los errores del protocolo. Solo server_error es inesperado;
// el resto es control de flujo normal del token endpoint.
type Kind string

const (
	KindInvalidRequest       Kind = "invalid_request"
	KindInvalidGrant         Kind = "invalid_grant"
	KindUnsupportedGrantType Kind = "unsupported_grant_type"
	KindUnauthorized         Kind = "unauthorized"
	KindServerError          Kind = "server_error"
)

// Error es el error tipado que cruza el boundary de los engines. El mensaje
// es apto para el caller; la causa (si existe) queda para logs vía Unwrap y
// nunca expone detalles de infraestructura en Msg.
type Error struct {
	Kind Kind
	Msg  string

	cause error
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Msg
}

func (e *Error) Unwrap() error { return e.cause }

func InvalidRequest(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidRequest, Msg: fmt.Sprintf(format, args...)}
}

func InvalidGrant(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidGrant, Msg: fmt.Sprintf(format, args...)}
}

func UnsupportedGrantType(got string) *Error {
	return &Error{Kind: KindUnsupportedGrantType, Msg: fmt.Sprintf("grant_type %q not supported", got)}
}

func Unauthorized(format string, args ...any) *Error {
	return &Error{Kind: KindUnauthorized, Msg: fmt.Sprintf(format, args...)}
}

// ServerError envuelve una falla de infraestructura (storage, firma, key
// set). msg es el mensaje externo; cause se preserva solo para logs.
func ServerError(msg string, cause error) *Error {
	return &Error{Kind: KindServerError, Msg: msg, cause: cause}
}

// KindOf extrae la clasificación de un error del engine; server_error para
// cualquier error no tipado.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindServerError
}
