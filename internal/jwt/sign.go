package jwt

import (
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Sign firma un JWT compacto (EdDSA) con la clave kid del set.
//
// Setea iss, iat y exp (derivado de una duración legible, ej "72 hours") y
// un jti fresco si el payload no trae uno. Retorna el token y los claims
// finales. Falla con ErrSigning si el kid no existe o no tiene material
// privado.
func Sign(payload map[string]any, kid string, set *JWKS, issuer, expiration string) (string, map[string]any, error) {
	key, ok := set.KeyByKID(kid)
	if !ok {
		return "", nil, fmt.Errorf("%w: no key with kid %q", ErrSigning, kid)
	}
	priv, err := privateKey(key)
	if err != nil {
		return "", nil, err
	}
	ttl, err := ParseDuration(expiration)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}

	now := time.Now().UTC()
	claims := jwtv5.MapClaims{}
	for k, v := range payload {
		claims[k] = v
	}
	claims["iss"] = issuer
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(ttl).Unix()
	if _, ok := claims["jti"]; !ok {
		claims["jti"] = uuid.NewString()
	}

	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	tk.Header["kid"] = key.KID
	tk.Header["typ"] = "JWT"

	signed, err := tk.SignedString(priv)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}

	out := make(map[string]any, len(claims))
	for k, v := range claims {
		out[k] = v
	}
	return signed, out, nil
}
