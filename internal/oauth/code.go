package oauth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/indieauth/internal/metrics"
	"github.com/dropDatabas3/indieauth/internal/observability/logger"
	"github.com/dropDatabas3/indieauth/internal/pkce"
	"github.com/dropDatabas3/indieauth/internal/record"
	tokens "github.com/dropDatabas3/indieauth/internal/security/token"
	"github.com/dropDatabas3/indieauth/internal/storage"
)

const codeBytes = 32

// Grant types aceptados por RedeemCode. El string vacío es el flujo legacy de
// profile-URL-only: devuelve solo me, sin scope.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
)

// CodeEngine emite y canjea authorization codes single-use.
type CodeEngine struct {
	codes storage.Store[record.AuthorizationCode]
	log   *zap.Logger
	now   func() time.Time
}

func NewCodeEngine(codes storage.Store[record.AuthorizationCode]) *CodeEngine {
	return &CodeEngine{
		codes: codes,
		log:   logger.Named("oauth.code"),
		now:   time.Now,
	}
}

// IssueCodeParams son los datos del consent aprobado. Exp en unix seconds.
type IssueCodeParams struct {
	ClientID            string
	RedirectURI         string
	Me                  string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
	Exp                 int64
}

// IssueCode genera un código opaco aleatorio y persiste el registro con
// used=false. La unicidad descansa en la entropía del código, sin retry.
func (e *CodeEngine) IssueCode(ctx context.Context, p IssueCodeParams) (record.AuthorizationCode, error) {
	var zero record.AuthorizationCode
	if !record.ValidURL(p.ClientID) {
		return zero, InvalidRequest("client_id must be a valid URL")
	}
	if !record.ValidURL(p.RedirectURI) {
		return zero, InvalidRequest("redirect_uri must be a valid URL")
	}
	me, err := record.CanonicalizeMe(p.Me)
	if err != nil {
		return zero, InvalidRequest("me: %v", err)
	}
	if p.CodeChallenge == "" {
		return zero, InvalidRequest("code_challenge is required")
	}
	if p.CodeChallengeMethod != pkce.MethodS256 && p.CodeChallengeMethod != pkce.MethodPlain {
		return zero, InvalidRequest("unsupported code_challenge_method %q", p.CodeChallengeMethod)
	}
	if p.Exp <= e.now().Unix() {
		return zero, InvalidRequest("exp must be in the future")
	}

	code, err := tokens.GenerateOpaqueToken(codeBytes)
	if err != nil {
		return zero, ServerError("could not generate authorization code", err)
	}
	rec, err := e.codes.StoreOne(ctx, record.AuthorizationCode{
		Code:                code,
		ClientID:            p.ClientID,
		RedirectURI:         p.RedirectURI,
		Me:                  me,
		Scope:               record.NormalizeScope(p.Scope),
		CodeChallenge:       p.CodeChallenge,
		CodeChallengeMethod: p.CodeChallengeMethod,
		Exp:                 p.Exp,
	})
	if err != nil {
		e.log.Error("store authorization code", logger.ClientID(p.ClientID), logger.Err(err))
		return zero, ServerError("could not store authorization code", err)
	}
	metrics.CodesIssued.Inc()
	e.log.Info("authorization code issued", logger.ClientID(p.ClientID), logger.Me(me))
	return rec, nil
}

// RedeemCodeParams es el intercambio del token endpoint.
type RedeemCodeParams struct {
	Code         string
	ClientID     string
	RedirectURI  string
	CodeVerifier string
	GrantType    string
}

// Grant es el resultado de un canje exitoso. Scope queda vacío en el flujo
// profile-URL-only.
type Grant struct {
	Me    string `json:"me"`
	Scope string `json:"scope,omitempty"`
}

// RedeemCode valida y consume un authorization code. El código queda marcado
// used=true antes de devolver éxito; si esa escritura falla el canje falla
// completo y el código sigue siendo canjeable.
func (e *CodeEngine) RedeemCode(ctx context.Context, p RedeemCodeParams) (Grant, error) {
	var zero Grant
	switch p.GrantType {
	case "", GrantAuthorizationCode:
	default:
		return zero, UnsupportedGrantType(p.GrantType)
	}
	if p.Code == "" || p.CodeVerifier == "" {
		return zero, InvalidRequest("code and code_verifier are required")
	}

	rec, err := e.codes.RetrieveOne(ctx, &storage.SelectQuery{
		Where: []storage.WhereExpr{storage.Eq("code", p.Code)},
	})
	if errors.Is(err, storage.ErrNotFound) {
		return zero, InvalidGrant("authorization code not found")
	}
	if err != nil {
		return zero, ServerError("could not load authorization code", err)
	}
	if rec.Used {
		e.log.Warn("authorization code replay", logger.ClientID(rec.ClientID))
		return zero, InvalidGrant("authorization code already used")
	}
	if rec.Exp <= e.now().Unix() {
		return zero, InvalidGrant("authorization code expired")
	}
	if rec.ClientID != p.ClientID || rec.RedirectURI != p.RedirectURI {
		return zero, InvalidGrant("client_id or redirect_uri mismatch")
	}
	if !pkce.Verify(rec.CodeChallengeMethod, p.CodeVerifier, rec.CodeChallenge) {
		return zero, InvalidGrant("PKCE verification failed")
	}

	// Consumo condicional: el backend arbitra la carrera marcando used=true
	// solo si seguía en false. Cero filas significa que otro canje ganó.
	updated, err := e.codes.UpdateMany(ctx, storage.UpdateQuery{
		Set:   map[string]any{"used": true},
		Where: []storage.WhereExpr{storage.Eq("code", p.Code), storage.Eq("used", false)},
	})
	if err != nil {
		return zero, ServerError("could not mark authorization code as used", err)
	}
	if len(updated) == 0 {
		e.log.Warn("authorization code replay", logger.ClientID(rec.ClientID))
		return zero, InvalidGrant("authorization code already used")
	}

	metrics.CodesRedeemed.Inc()
	e.log.Info("authorization code redeemed", logger.ClientID(rec.ClientID), logger.Me(rec.Me))
	if p.GrantType == "" {
		return Grant{Me: rec.Me}, nil
	}
	return Grant{Me: rec.Me, Scope: rec.Scope}, nil
}
