package oauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/dropDatabas3/indieauth/internal/jwt"
	"github.com/dropDatabas3/indieauth/internal/metrics"
	"github.com/dropDatabas3/indieauth/internal/observability/logger"
	"github.com/dropDatabas3/indieauth/internal/storage"
)

// Hints del revocation endpoint (RFC 7009 §2.1).
const (
	HintAccessToken  = "access_token"
	HintRefreshToken = "refresh_token"
)

// RevokeTokenParams identifica el token a revocar. Token es el JWT (access)
// o el string opaco (refresh); el hint desambigua sin ser vinculante.
type RevokeTokenParams struct {
	Token            string
	TokenTypeHint    string
	RevocationReason string
}

// RevokeResult indica qué registro quedó revocado.
type RevokeResult struct {
	Jti          string `json:"jti,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// RevokeToken marca revoked=true en el registro correspondiente. Revocar un
// token desconocido o ya revocado es éxito (RFC 7009): la revocación es
// idempotente para el caller. Solo una falla de infraestructura es error.
func (e *TokenEngine) RevokeToken(ctx context.Context, p RevokeTokenParams) (RevokeResult, error) {
	var zero RevokeResult
	if p.Token == "" {
		return zero, InvalidRequest("token is required")
	}
	reason := p.RevocationReason
	if reason == "" {
		reason = "revoked"
	}

	if p.TokenTypeHint != HintRefreshToken {
		// Un access token es un JWT: si decodifica y trae jti, se revoca por jti.
		if claims, err := jwt.Decode(p.Token); err == nil {
			if jti, _ := claims["jti"].(string); jti != "" {
				if err := e.revokeAccess(ctx, jti, reason); err != nil {
					return zero, err
				}
				return RevokeResult{Jti: jti}, nil
			}
		}
	}

	if _, err := e.refresh.UpdateMany(ctx, storage.UpdateQuery{
		Set:   map[string]any{"revoked": true, "revocation_reason": reason},
		Where: []storage.WhereExpr{storage.Eq("refresh_token", p.Token)},
	}); err != nil {
		return zero, ServerError("could not revoke refresh token", err)
	}
	metrics.TokensRevoked.Inc()
	e.log.Info("refresh token revoked", logger.String("reason", reason))
	return RevokeResult{RefreshToken: p.Token}, nil
}

func (e *TokenEngine) revokeAccess(ctx context.Context, jti, reason string) error {
	if _, err := e.access.UpdateMany(ctx, storage.UpdateQuery{
		Set:   map[string]any{"revoked": true, "revocation_reason": reason},
		Where: []storage.WhereExpr{storage.Eq("jti", jti)},
	}); err != nil {
		return ServerError("could not revoke access token", err)
	}
	metrics.TokensRevoked.Inc()
	e.log.Info("access token revoked", logger.Jti(jti), logger.String("reason", reason))
	return nil
}

// IsAccessTokenRevoked busca el registro por jti. Un registro inexistente es
// error, distinguible de "encontrado y no revocado".
func (e *TokenEngine) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	rec, err := e.access.RetrieveOne(ctx, &storage.SelectQuery{
		Where: []storage.WhereExpr{storage.Eq("jti", jti)},
	})
	if err != nil {
		return false, fmt.Errorf("access token %q: %w", jti, err)
	}
	return rec.Revoked, nil
}

// IntrospectParams son los datos de verificación del introspection endpoint.
type IntrospectParams struct {
	Token   string
	Issuer  string
	JWKSURL string
}

// Introspection es la respuesta RFC 7662: los claims del token más active.
type Introspection struct {
	Active bool           `json:"active"`
	Claims map[string]any `json:"-"`
}

// Introspect verifica el token (cayendo a decode si la verificación falla),
// computa expired desde exp y revoked vía IsAccessTokenRevoked, y setea
// active = !expired && !revoked. Cualquier error determinando el estado de
// revocación es ServerError: nunca se reporta active=true ante una falla de
// storage.
func (e *TokenEngine) Introspect(ctx context.Context, p IntrospectParams) (Introspection, error) {
	var zero Introspection
	claims, err := e.ver.Verify(ctx, p.Token, p.Issuer, p.JWKSURL, 0)
	if err != nil {
		claims, err = jwt.Decode(p.Token)
		if err != nil {
			return zero, InvalidRequest("token is not a well-formed JWT")
		}
	}
	jti, _ := claims["jti"].(string)
	if jti == "" {
		return zero, InvalidRequest("token has no jti claim")
	}

	expired := true
	if exp, ok := claimInt64(claims, "exp"); ok {
		expired = exp <= e.now().Unix()
	}
	revoked, err := e.IsAccessTokenRevoked(ctx, jti)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return zero, ServerError("unknown access token", err)
		}
		return zero, ServerError("could not determine revocation status", err)
	}

	return Introspection{Active: !expired && !revoked, Claims: claims}, nil
}

// claimInt64 tolera las dos representaciones de claims numéricos: int64 (de
// claims recién firmados) y float64 (de JSON decodificado).
func claimInt64(claims map[string]any, key string) (int64, bool) {
	switch v := claims[key].(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
