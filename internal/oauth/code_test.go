package oauth

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/indieauth/internal/pkce"
	"github.com/dropDatabas3/indieauth/internal/record"
	"github.com/dropDatabas3/indieauth/internal/storage"
	"github.com/dropDatabas3/indieauth/internal/storage/memory"
)

const (
	testClientID = "https://app.example.com/"
	testRedirect = "https://app.example.com/callback"
	testMe       = "https://me.example.com/"
)

func newCodeEngineT(t *testing.T) *CodeEngine {
	t.Helper()
	return NewCodeEngine(memory.NewStore[record.AuthorizationCode](memory.NewDB(), record.AuthorizationCodes))
}

func issueParams(t *testing.T) (IssueCodeParams, string) {
	t.Helper()
	verifier, err := pkce.GenerateVerifier(64)
	require.NoError(t, err)
	challenge, err := pkce.Challenge(pkce.MethodS256, verifier)
	require.NoError(t, err)
	return IssueCodeParams{
		ClientID:            testClientID,
		RedirectURI:         testRedirect,
		Me:                  testMe,
		Scope:               "create update",
		CodeChallenge:       challenge,
		CodeChallengeMethod: pkce.MethodS256,
		Exp:                 time.Now().Add(10 * time.Minute).Unix(),
	}, verifier
}

func TestIssueAndRedeem_SingleUse(t *testing.T) {
	ctx := context.Background()
	e := newCodeEngineT(t)
	params, verifier := issueParams(t)

	rec, err := e.IssueCode(ctx, params)
	require.NoError(t, err)
	require.NotEmpty(t, rec.Code)
	require.False(t, rec.Used)
	require.Equal(t, testMe, rec.Me)

	grant, err := e.RedeemCode(ctx, RedeemCodeParams{
		Code:         rec.Code,
		ClientID:     testClientID,
		RedirectURI:  testRedirect,
		CodeVerifier: verifier,
		GrantType:    GrantAuthorizationCode,
	})
	require.NoError(t, err)
	require.Equal(t, testMe, grant.Me)
	require.Equal(t, "create update", grant.Scope)

	// Segundo canje del mismo código: siempre InvalidGrant.
	_, err = e.RedeemCode(ctx, RedeemCodeParams{
		Code:         rec.Code,
		ClientID:     testClientID,
		RedirectURI:  testRedirect,
		CodeVerifier: verifier,
		GrantType:    GrantAuthorizationCode,
	})
	require.Equal(t, KindInvalidGrant, KindOf(err))
}

func TestRedeem_ProfileURLOnly(t *testing.T) {
	ctx := context.Background()
	e := newCodeEngineT(t)
	params, verifier := issueParams(t)
	rec, err := e.IssueCode(ctx, params)
	require.NoError(t, err)

	// grant_type vacío: flujo profile-URL-only, solo me.
	grant, err := e.RedeemCode(ctx, RedeemCodeParams{
		Code:         rec.Code,
		ClientID:     testClientID,
		RedirectURI:  testRedirect,
		CodeVerifier: verifier,
	})
	require.NoError(t, err)
	require.Equal(t, testMe, grant.Me)
	require.Empty(t, grant.Scope)
}

func TestRedeem_UnsupportedGrantType(t *testing.T) {
	e := newCodeEngineT(t)
	_, err := e.RedeemCode(context.Background(), RedeemCodeParams{
		Code:         "x",
		CodeVerifier: "y",
		GrantType:    "client_credentials",
	})
	require.Equal(t, KindUnsupportedGrantType, KindOf(err))
}

func TestRedeem_Expired(t *testing.T) {
	ctx := context.Background()
	e := newCodeEngineT(t)
	params, verifier := issueParams(t)
	rec, err := e.IssueCode(ctx, params)
	require.NoError(t, err)

	e.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	_, err = e.RedeemCode(ctx, RedeemCodeParams{
		Code:         rec.Code,
		ClientID:     testClientID,
		RedirectURI:  testRedirect,
		CodeVerifier: verifier,
		GrantType:    GrantAuthorizationCode,
	})
	require.Equal(t, KindInvalidGrant, KindOf(err))
}

func TestRedeem_BindingMismatches(t *testing.T) {
	ctx := context.Background()
	e := newCodeEngineT(t)
	params, verifier := issueParams(t)
	rec, err := e.IssueCode(ctx, params)
	require.NoError(t, err)

	cases := []RedeemCodeParams{
		{Code: "unknown", ClientID: testClientID, RedirectURI: testRedirect, CodeVerifier: verifier},
		{Code: rec.Code, ClientID: "https://evil.example.com/", RedirectURI: testRedirect, CodeVerifier: verifier},
		{Code: rec.Code, ClientID: testClientID, RedirectURI: "https://evil.example.com/cb", CodeVerifier: verifier},
	}
	for _, p := range cases {
		p.GrantType = GrantAuthorizationCode
		_, err := e.RedeemCode(ctx, p)
		require.Equal(t, KindInvalidGrant, KindOf(err), "params: %+v", p)
	}

	// Verifier ajeno: el binding PKCE tiene que fallar.
	other, _ := pkce.GenerateVerifier(64)
	_, err = e.RedeemCode(ctx, RedeemCodeParams{
		Code:         rec.Code,
		ClientID:     testClientID,
		RedirectURI:  testRedirect,
		CodeVerifier: other,
		GrantType:    GrantAuthorizationCode,
	})
	require.Equal(t, KindInvalidGrant, KindOf(err))

	// Todos los rechazos anteriores no consumieron el código.
	grant, err := e.RedeemCode(ctx, RedeemCodeParams{
		Code:         rec.Code,
		ClientID:     testClientID,
		RedirectURI:  testRedirect,
		CodeVerifier: verifier,
		GrantType:    GrantAuthorizationCode,
	})
	require.NoError(t, err)
	require.Equal(t, testMe, grant.Me)
}

func TestIssueCode_Validation(t *testing.T) {
	ctx := context.Background()
	e := newCodeEngineT(t)
	base, _ := issueParams(t)

	bad := base
	bad.ClientID = "not-a-url"
	_, err := e.IssueCode(ctx, bad)
	require.Equal(t, KindInvalidRequest, KindOf(err))

	bad = base
	bad.Me = "ftp://me.example.com/"
	_, err = e.IssueCode(ctx, bad)
	require.Equal(t, KindInvalidRequest, KindOf(err))

	bad = base
	bad.CodeChallenge = ""
	_, err = e.IssueCode(ctx, bad)
	require.Equal(t, KindInvalidRequest, KindOf(err))

	bad = base
	bad.CodeChallengeMethod = "S512"
	_, err = e.IssueCode(ctx, bad)
	require.Equal(t, KindInvalidRequest, KindOf(err))

	bad = base
	bad.Exp = time.Now().Add(-time.Minute).Unix()
	_, err = e.IssueCode(ctx, bad)
	require.Equal(t, KindInvalidRequest, KindOf(err))
}

// staleCodeStore devuelve en RetrieveOne una foto vieja del registro (como si
// otro canje hubiese ganado la carrera después de la lectura) y delega el
// resto en el store real.
type staleCodeStore struct {
	storage.Store[record.AuthorizationCode]
	stale record.AuthorizationCode
}

func (s *staleCodeStore) RetrieveOne(ctx context.Context, q *storage.SelectQuery) (record.AuthorizationCode, error) {
	return s.stale, nil
}

func TestRedeemCode_LostRaceIsInvalidGrant(t *testing.T) {
	ctx := context.Background()
	codes := memory.NewStore[record.AuthorizationCode](memory.NewDB(), record.AuthorizationCodes)
	e := NewCodeEngine(codes)
	params, verifier := issueParams(t)

	rec, err := e.IssueCode(ctx, params)
	require.NoError(t, err)

	redeem := RedeemCodeParams{
		Code:         rec.Code,
		ClientID:     testClientID,
		RedirectURI:  testRedirect,
		CodeVerifier: verifier,
		GrantType:    GrantAuthorizationCode,
	}
	_, err = e.RedeemCode(ctx, redeem)
	require.NoError(t, err)

	// Segundo canje con lectura stale (ve used=false): el consumo condicional
	// en el backend tiene que rechazarlo igual.
	racer := NewCodeEngine(&staleCodeStore{Store: codes, stale: rec})
	_, err = racer.RedeemCode(ctx, redeem)
	require.Equal(t, KindInvalidGrant, KindOf(err))
}

func TestRedeemCode_ConcurrentRedemptionsSucceedOnce(t *testing.T) {
	ctx := context.Background()
	e := newCodeEngineT(t)
	params, verifier := issueParams(t)

	rec, err := e.IssueCode(ctx, params)
	require.NoError(t, err)

	const n = 8
	var successes int32
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := e.RedeemCode(ctx, RedeemCodeParams{
				Code:         rec.Code,
				ClientID:     testClientID,
				RedirectURI:  testRedirect,
				CodeVerifier: verifier,
				GrantType:    GrantAuthorizationCode,
			})
			if err == nil {
				atomic.AddInt32(&successes, 1)
			} else if KindOf(err) != KindInvalidGrant {
				t.Errorf("unexpected error kind %q: %v", KindOf(err), err)
			}
		}()
	}
	close(start)
	wg.Wait()
	require.EqualValues(t, 1, successes)
}
