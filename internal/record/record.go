// Package record define los cinco tipos de registro persistidos por el
// authorization server: authorization_code, access_token, refresh_token,
// client_application y user_profile. Todos comparten el mismo contrato de
// storage (internal/storage); los nombres de campo (tags json) son a la vez
// nombres de columna en los backends SQL y claves en los backends de archivo.
package record

import "github.com/dropDatabas3/indieauth/internal/storage"

// Timestamps en unix seconds, estampados por el backend.

// AuthorizationCode es un código de autorización single-use atado a un
// challenge PKCE. Transiciona unused → used exactamente una vez; nunca se
// borra automáticamente (se retiene para detección de replay).
type AuthorizationCode struct {
	Code                string `json:"code"`
	ClientID            string `json:"client_id"`
	RedirectURI         string `json:"redirect_uri"`
	Me                  string `json:"me"`
	Scope               string `json:"scope"`
	CodeChallenge       string `json:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method"`
	Exp                 int64  `json:"exp"`
	Used                bool   `json:"used"`
	CreatedAt           int64  `json:"created_at"`
	UpdatedAt           int64  `json:"updated_at"`
}

func (c AuthorizationCode) StorageKey() string { return c.Code }

// AccessToken es la metadata de un access token JWT. Los claims semánticos
// (me, scope, exp, iss) viven dentro del JWT firmado; este registro existe
// para soportar revocación e introspección por jti.
type AccessToken struct {
	Jti              string `json:"jti"`
	ClientID         string `json:"client_id"`
	RedirectURI      string `json:"redirect_uri"`
	Revoked          bool   `json:"revoked"`
	RevocationReason string `json:"revocation_reason"`
	CreatedAt        int64  `json:"created_at"`
	UpdatedAt        int64  `json:"updated_at"`
}

func (t AccessToken) StorageKey() string { return t.Jti }

// RefreshToken es un refresh token opaco, one-time-use: se consume (y revoca)
// en el refresh y se reemplaza por un par nuevo.
type RefreshToken struct {
	RefreshToken     string `json:"refresh_token"`
	Jti              string `json:"jti"`
	ClientID         string `json:"client_id"`
	Me               string `json:"me"`
	RedirectURI      string `json:"redirect_uri"`
	Scope            string `json:"scope"`
	Exp              int64  `json:"exp"`
	Revoked          bool   `json:"revoked"`
	RevocationReason string `json:"revocation_reason"`
	CreatedAt        int64  `json:"created_at"`
	UpdatedAt        int64  `json:"updated_at"`
}

func (t RefreshToken) StorageKey() string { return t.RefreshToken }

// ClientApplication es un cliente IndieAuth registrado. CRUD simple.
type ClientApplication struct {
	ClientID    string `json:"client_id"`
	ClientName  string `json:"client_name"`
	ClientURI   string `json:"client_uri"`
	RedirectURI string `json:"redirect_uri"`
	LogoURI     string `json:"logo_uri"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

func (c ClientApplication) StorageKey() string { return c.ClientID }

// UserProfile es el perfil público asociado a una profile URL. CRUD simple.
type UserProfile struct {
	Me        string `json:"me"`
	Name      string `json:"name"`
	Photo     string `json:"photo"`
	URL       string `json:"url"`
	Email     string `json:"email"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

func (p UserProfile) StorageKey() string { return p.Me }

// Specs por tipo de registro, consumidos por los constructores de backends.
var (
	AuthorizationCodes = storage.KindSpec{
		Name:       "authorization_code",
		PrimaryKey: "code",
		Booleans:   []string{"used"},
	}
	AccessTokens = storage.KindSpec{
		Name:       "access_token",
		PrimaryKey: "jti",
		Booleans:   []string{"revoked"},
	}
	RefreshTokens = storage.KindSpec{
		Name:       "refresh_token",
		PrimaryKey: "refresh_token",
		Booleans:   []string{"revoked"},
	}
	ClientApplications = storage.KindSpec{
		Name:       "client_application",
		PrimaryKey: "client_id",
	}
	UserProfiles = storage.KindSpec{
		Name:       "user_profile",
		PrimaryKey: "me",
	}
)
