package jwt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

const (
	jwksCacheTTL     = 5 * time.Minute
	jwksFetchTimeout = 10 * time.Second
)

// Verifier valida JWTs contra un JWKS remoto. El JWKS se cachea por URL con
// un TTL corto y los fetches concurrentes se deduplican con singleflight.
type Verifier struct {
	client *http.Client
	cache  *gocache.Cache
	group  singleflight.Group
}

// NewVerifier crea un Verifier con cache propio.
func NewVerifier() *Verifier {
	return &Verifier{
		client: &http.Client{Timeout: jwksFetchTimeout},
		cache:  gocache.New(jwksCacheTTL, time.Minute),
	}
}

// Verify valida firma, iss y exp de un token contra el JWKS publicado en
// jwksURL. Si maxAge > 0, rechaza además tokens con iat más viejo que
// maxAge. Falla con ErrExpired, ErrInvalidSignature o ErrIssuerMismatch,
// distinguibles por errors.Is; otros errores son fallos de infraestructura
// (fetch del JWKS).
func (v *Verifier) Verify(ctx context.Context, token, issuer, jwksURL string, maxAge time.Duration) (map[string]any, error) {
	set, err := v.fetchJWKS(ctx, jwksURL)
	if err != nil {
		return nil, err
	}

	keyfunc := func(t *jwtv5.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("kid header missing")
		}
		key, ok := set.KeyByKID(kid)
		if !ok {
			return nil, fmt.Errorf("no key with kid %q", kid)
		}
		return publicKey(key)
	}

	parsed, err := jwtv5.Parse(token, keyfunc,
		jwtv5.WithValidMethods([]string{"EdDSA"}),
		jwtv5.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	claims, ok := parsed.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, ErrInvalidSignature
	}
	if iss, _ := claims["iss"].(string); iss != issuer {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrIssuerMismatch, iss, issuer)
	}
	if maxAge > 0 {
		iat, ok := claims["iat"].(float64)
		if !ok || time.Since(time.Unix(int64(iat), 0)) > maxAge {
			return nil, fmt.Errorf("%w: older than max age %s", ErrExpired, maxAge)
		}
	}

	out := make(map[string]any, len(claims))
	for k, val := range claims {
		out[k] = val
	}
	return out, nil
}

// Decode extrae los claims SIN verificar la firma. Solo para casos donde el
// caller re-verifica por su cuenta o el valor ya es confiable (ej: recién
// auto-firmado). Los claims decodificados nunca autorizan nada por sí solos.
func Decode(token string) (map[string]any, error) {
	parsed, _, err := jwtv5.NewParser().ParseUnverified(token, jwtv5.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("jwt: decode: %w", err)
	}
	claims, ok := parsed.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, fmt.Errorf("jwt: decode: unexpected claims type")
	}
	out := make(map[string]any, len(claims))
	for k, v := range claims {
		out[k] = v
	}
	return out, nil
}

func (v *Verifier) fetchJWKS(ctx context.Context, jwksURL string) (*JWKS, error) {
	if cached, ok := v.cache.Get(jwksURL); ok {
		return cached.(*JWKS), nil
	}
	res, err, _ := v.group.Do(jwksURL, func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURL, nil)
		if err != nil {
			return nil, fmt.Errorf("jwt: build jwks request: %w", err)
		}
		resp, err := v.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("jwt: fetch jwks: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("jwt: fetch jwks: unexpected status %d", resp.StatusCode)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("jwt: read jwks body: %w", err)
		}
		var set JWKS
		if err := json.Unmarshal(body, &set); err != nil {
			return nil, fmt.Errorf("jwt: parse jwks: %w", err)
		}
		v.cache.Set(jwksURL, &set, gocache.DefaultExpiration)
		return &set, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*JWKS), nil
}
