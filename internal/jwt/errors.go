package jwt

import "errors"

// Errores distinguibles por el caller (errors.Is).
var (
	// ErrSigning indica que no se pudo firmar: kid inexistente en el JWKS,
	// clave sin material privado o material inválido.
	ErrSigning = errors.New("jwt: signing failed")

	// ErrNoKeys indica un JWKS sin claves con capacidad de firma.
	ErrNoKeys = errors.New("jwt: no signing keys available")

	// ErrExpired indica exp en el pasado, o iat más viejo que max_age.
	ErrExpired = errors.New("jwt: token expired")

	// ErrInvalidSignature indica firma inválida o token malformado.
	ErrInvalidSignature = errors.New("jwt: invalid signature")

	// ErrIssuerMismatch indica un claim iss distinto del esperado.
	ErrIssuerMismatch = errors.New("jwt: issuer mismatch")
)
