// Package jwt firma, verifica y decodifica JWTs compactos contra un JSON Web
// Key Set rotativo (Ed25519/EdDSA). La selección aleatoria de kid permite
// rotar claves sin downtime: mientras la clave vieja siga publicada en el
// JWKS, los tokens firmados con ella siguen verificando.
package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// JWK es una clave Ed25519 en formato JSON Web Key (OKP).
// D (la seed privada) solo está presente en el set privado del servidor.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	KID string `json:"kid"`
	X   string `json:"x"`
	D   string `json:"d,omitempty"`
}

// JWKS es un JSON Web Key Set.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// GenerateJWKS genera un set nuevo de n claves Ed25519 con kids aleatorios.
func GenerateJWKS(n int) (*JWKS, error) {
	if n < 1 {
		n = 1
	}
	set := &JWKS{Keys: make([]JWK, 0, n)}
	for i := 0; i < n; i++ {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("jwt: generate ed25519 key: %w", err)
		}
		set.Keys = append(set.Keys, JWK{
			Kty: "OKP",
			Crv: "Ed25519",
			Alg: "EdDSA",
			Use: "sig",
			KID: uuid.NewString(),
			X:   base64.RawURLEncoding.EncodeToString(pub),
			D:   base64.RawURLEncoding.EncodeToString(priv.Seed()),
		})
	}
	return set, nil
}

// Public retorna una copia del set sin material privado, apta para publicar.
func (s *JWKS) Public() *JWKS {
	out := &JWKS{Keys: make([]JWK, 0, len(s.Keys))}
	for _, k := range s.Keys {
		k.D = ""
		out.Keys = append(out.Keys, k)
	}
	return out
}

// KeyByKID busca una clave por kid.
func (s *JWKS) KeyByKID(kid string) (JWK, bool) {
	for _, k := range s.Keys {
		if k.KID == kid {
			return k, true
		}
	}
	return JWK{}, false
}

// RandomKid selecciona uniformemente el kid de una clave con capacidad de
// firma (material privado presente). Falla con ErrNoKeys si no hay ninguna.
func RandomKid(keys []JWK) (string, error) {
	var candidates []string
	for _, k := range keys {
		if k.D != "" {
			candidates = append(candidates, k.KID)
		}
	}
	if len(candidates) == 0 {
		return "", ErrNoKeys
	}
	idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(candidates))))
	if err != nil {
		return "", fmt.Errorf("jwt: random kid: %w", err)
	}
	return candidates[idx.Int64()], nil
}

// privateKey reconstruye la clave privada Ed25519 desde la seed del JWK.
func privateKey(k JWK) (ed25519.PrivateKey, error) {
	if k.D == "" {
		return nil, fmt.Errorf("%w: key %q has no private material", ErrSigning, k.KID)
	}
	seed, err := base64.RawURLEncoding.DecodeString(k.D)
	if err != nil {
		return nil, fmt.Errorf("%w: key %q: decode d: %v", ErrSigning, k.KID, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: key %q: bad seed size %d", ErrSigning, k.KID, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// publicKey decodifica la clave pública Ed25519 de un JWK.
func publicKey(k JWK) (ed25519.PublicKey, error) {
	raw, err := base64.RawURLEncoding.DecodeString(k.X)
	if err != nil {
		return nil, fmt.Errorf("jwt: key %q: decode x: %w", k.KID, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("jwt: key %q: bad public key size %d", k.KID, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}
