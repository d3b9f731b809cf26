// Package pkce implementa Proof Key for Code Exchange (RFC 7636):
// generación de code_verifier y cómputo/verificación de code_challenge.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
)

const (
	// MinVerifierLength y MaxVerifierLength según RFC 7636 §4.1.
	MinVerifierLength = 43
	MaxVerifierLength = 128

	MethodS256  = "S256"
	MethodPlain = "plain"
)

var (
	ErrInvalidLength     = errors.New("pkce: verifier length must be between 43 and 128")
	ErrUnsupportedMethod = errors.New("pkce: unsupported code challenge method")
)

// Alfabeto "unreserved" de RFC 3986 §2.3, el permitido para code_verifier.
const verifierAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

// GenerateVerifier genera un code_verifier criptográficamente aleatorio del
// largo pedido. Falla con ErrInvalidLength fuera del rango 43..128.
func GenerateVerifier(length int) (string, error) {
	if length < MinVerifierLength || length > MaxVerifierLength {
		return "", fmt.Errorf("%w (got %d)", ErrInvalidLength, length)
	}
	// Rejection sampling: 256 no es múltiplo de 66, un módulo directo
	// sesgaría los primeros caracteres del alfabeto.
	const limit = 256 - 256%len(verifierAlphabet)
	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("pkce: read random: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, verifierAlphabet[int(b)%len(verifierAlphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// Challenge computa el code_challenge para un verifier.
// S256: base64url(sha256(verifier)) sin padding. plain: el verifier tal cual.
func Challenge(method, verifier string) (string, error) {
	switch method {
	case MethodS256:
		sum := sha256.Sum256([]byte(verifier))
		return base64.RawURLEncoding.EncodeToString(sum[:]), nil
	case MethodPlain:
		return verifier, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
}

// Verify recomputa el challenge desde el verifier y lo compara en tiempo
// constante contra el esperado. Nunca compara verifiers crudos.
func Verify(method, verifier, expected string) bool {
	computed, err := Challenge(method, verifier)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(expected)) == 1
}
