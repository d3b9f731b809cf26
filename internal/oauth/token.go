package oauth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/indieauth/internal/jwt"
	"github.com/dropDatabas3/indieauth/internal/metrics"
	"github.com/dropDatabas3/indieauth/internal/observability/logger"
	"github.com/dropDatabas3/indieauth/internal/record"
	tokens "github.com/dropDatabas3/indieauth/internal/security/token"
	"github.com/dropDatabas3/indieauth/internal/storage"
)

const refreshTokenBytes = 32

// ReasonRefreshed es la revocation_reason que deja la rotación.
const ReasonRefreshed = "refreshed"

// TokenEngine emite, rota, revoca e introspecciona tokens. Si tx es nil
// (backends file/in-memory) la inserción del par access+refresh no es
// atómica: ante falla del segundo insert se compensa borrando el primero,
// garantía best-effort frente a un crash entre ambos pasos.
type TokenEngine struct {
	access  storage.Store[record.AccessToken]
	refresh storage.Store[record.RefreshToken]
	tx      storage.Transactor
	ver     *jwt.Verifier
	log     *zap.Logger
	now     func() time.Time
}

func NewTokenEngine(access storage.Store[record.AccessToken], refresh storage.Store[record.RefreshToken], tx storage.Transactor) *TokenEngine {
	return &TokenEngine{
		access:  access,
		refresh: refresh,
		tx:      tx,
		ver:     jwt.NewVerifier(),
		log:     logger.Named("oauth.token"),
		now:     time.Now,
	}
}

// IssueTokenParams describe la emisión de un par nuevo. Las expiraciones son
// duraciones legibles ("72 hours", "30 days").
type IssueTokenParams struct {
	ClientID               string
	Me                     string
	RedirectURI            string
	Scope                  string
	Issuer                 string
	Keys                   *jwt.JWKS
	AccessTokenExpiration  string
	RefreshTokenExpiration string
}

// TokenPair es la respuesta del token endpoint.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Jti          string `json:"-"`
	Me           string `json:"me"`
	Scope        string `json:"scope"`
}

// IssueToken firma un access token JWT (jti, iss, iat, exp, me, scope) con
// una clave elegida al azar del set, genera un refresh token opaco y persiste
// ambos registros con el mismo jti.
func (e *TokenEngine) IssueToken(ctx context.Context, p IssueTokenParams) (TokenPair, error) {
	var zero TokenPair
	if p.ClientID == "" || p.Me == "" {
		return zero, InvalidRequest("client_id and me are required")
	}
	if p.Keys == nil {
		return zero, ServerError("no signing key set configured", jwt.ErrNoKeys)
	}
	kid, err := jwt.RandomKid(p.Keys.Keys)
	if err != nil {
		return zero, ServerError("could not select signing key", err)
	}
	scope := record.NormalizeScope(p.Scope)
	signed, claims, err := jwt.Sign(map[string]any{"me": p.Me, "scope": scope}, kid, p.Keys, p.Issuer, p.AccessTokenExpiration)
	if err != nil {
		return zero, ServerError("could not sign access token", err)
	}
	jti, _ := claims["jti"].(string)
	exp, _ := claims["exp"].(int64)

	refreshStr, err := tokens.GenerateOpaqueToken(refreshTokenBytes)
	if err != nil {
		return zero, ServerError("could not generate refresh token", err)
	}
	refreshTTL, err := jwt.ParseDuration(p.RefreshTokenExpiration)
	if err != nil {
		return zero, InvalidRequest("refresh_token_expiration: %v", err)
	}

	accessRec := record.AccessToken{
		Jti:         jti,
		ClientID:    p.ClientID,
		RedirectURI: p.RedirectURI,
	}
	refreshRec := record.RefreshToken{
		RefreshToken: refreshStr,
		Jti:          jti,
		ClientID:     p.ClientID,
		Me:           p.Me,
		RedirectURI:  p.RedirectURI,
		Scope:        scope,
		Exp:          e.now().Add(refreshTTL).Unix(),
	}

	if err := e.persistPair(ctx, accessRec, refreshRec); err != nil {
		e.log.Error("persist token pair", logger.Jti(jti), logger.ClientID(p.ClientID), logger.Err(err))
		return zero, ServerError("could not persist token pair", err)
	}

	metrics.TokensIssued.Inc()
	e.log.Info("token pair issued", logger.Jti(jti), logger.ClientID(p.ClientID), logger.Me(p.Me))
	return TokenPair{
		AccessToken:  signed,
		RefreshToken: refreshStr,
		TokenType:    "Bearer",
		ExpiresIn:    exp - e.now().Unix(),
		Jti:          jti,
		Me:           p.Me,
		Scope:        scope,
	}, nil
}

func (e *TokenEngine) persistPair(ctx context.Context, a record.AccessToken, r record.RefreshToken) error {
	if e.tx != nil {
		return e.tx.InTx(ctx, func(ctx context.Context) error {
			if _, err := e.access.StoreOne(ctx, a); err != nil {
				return err
			}
			_, err := e.refresh.StoreOne(ctx, r)
			return err
		})
	}
	if _, err := e.access.StoreOne(ctx, a); err != nil {
		return err
	}
	if _, err := e.refresh.StoreOne(ctx, r); err != nil {
		// Compensación: sin transacción, el access token huérfano se borra
		// para no dejar un jti válido sin refresh asociado.
		if _, cerr := e.access.RemoveMany(ctx, &storage.DeleteQuery{
			Where: []storage.WhereExpr{storage.Eq("jti", a.Jti)},
		}); cerr != nil {
			e.log.Error("compensating delete failed", logger.Jti(a.Jti), logger.Err(cerr))
		}
		return err
	}
	return nil
}

// RefreshTokenParams describe una rotación. Scope vacío repite el scope
// almacenado; uno no vacío debe ser subconjunto del almacenado.
type RefreshTokenParams struct {
	RefreshToken           string
	Scope                  string
	Issuer                 string
	Keys                   *jwt.JWKS
	AccessTokenExpiration  string
	RefreshTokenExpiration string
}

// RefreshToken consume un refresh token (one-time-use) y emite un par nuevo
// atado a los mismos me/client_id/redirect_uri. El token presentado y su
// access token par quedan revocados con reason "refreshed".
func (e *TokenEngine) RefreshToken(ctx context.Context, p RefreshTokenParams) (TokenPair, error) {
	var zero TokenPair
	if p.RefreshToken == "" {
		return zero, InvalidRequest("refresh_token is required")
	}
	rec, err := e.refresh.RetrieveOne(ctx, &storage.SelectQuery{
		Where: []storage.WhereExpr{storage.Eq("refresh_token", p.RefreshToken)},
	})
	if errors.Is(err, storage.ErrNotFound) {
		return zero, InvalidGrant("refresh token not found")
	}
	if err != nil {
		return zero, ServerError("could not load refresh token", err)
	}
	if rec.Revoked {
		return zero, InvalidGrant("refresh token revoked")
	}
	if rec.Exp <= e.now().Unix() {
		return zero, InvalidGrant("refresh token expired")
	}
	if rec.Me == "" || rec.Scope == "" {
		return zero, InvalidRequest("refresh token record is missing me or scope")
	}
	scope := rec.Scope
	if p.Scope != "" {
		requested := record.NormalizeScope(p.Scope)
		if !record.ScopeSubset(requested, rec.Scope) {
			return zero, InvalidRequest("requested scope exceeds the granted scope")
		}
		scope = requested
	}

	// Consumo condicional del refresh: revoked pasa a true solo si seguía en
	// false, así el backend arbitra rotaciones concurrentes del mismo token.
	set := map[string]any{"revoked": true, "revocation_reason": ReasonRefreshed}
	consumed, err := e.refresh.UpdateMany(ctx, storage.UpdateQuery{
		Set:   set,
		Where: []storage.WhereExpr{storage.Eq("refresh_token", rec.RefreshToken), storage.Eq("revoked", false)},
	})
	if err != nil {
		return zero, ServerError("could not revoke the rotated refresh token", err)
	}
	if len(consumed) == 0 {
		return zero, InvalidGrant("refresh token already used")
	}
	if _, err := e.access.UpdateMany(ctx, storage.UpdateQuery{
		Set:   set,
		Where: []storage.WhereExpr{storage.Eq("jti", rec.Jti)},
	}); err != nil {
		return zero, ServerError("could not revoke the rotated access token", err)
	}

	pair, err := e.IssueToken(ctx, IssueTokenParams{
		ClientID:               rec.ClientID,
		Me:                     rec.Me,
		RedirectURI:            rec.RedirectURI,
		Scope:                  scope,
		Issuer:                 p.Issuer,
		Keys:                   p.Keys,
		AccessTokenExpiration:  p.AccessTokenExpiration,
		RefreshTokenExpiration: p.RefreshTokenExpiration,
	})
	if err != nil {
		return zero, err
	}
	metrics.RefreshRotations.Inc()
	e.log.Info("refresh token rotated", logger.Jti(pair.Jti), logger.ClientID(rec.ClientID))
	return pair, nil
}
