package jwt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

func newJWKSServer(t *testing.T, set *JWKS) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set.Public())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerateJWKS(t *testing.T) {
	set, err := GenerateJWKS(3)
	if err != nil {
		t.Fatalf("GenerateJWKS err: %v", err)
	}
	if len(set.Keys) != 3 {
		t.Fatalf("expected 3 keys, got %d", len(set.Keys))
	}
	seen := map[string]bool{}
	for _, k := range set.Keys {
		if k.Kty != "OKP" || k.Crv != "Ed25519" || k.KID == "" || k.D == "" {
			t.Fatalf("bad key: %+v", k)
		}
		if seen[k.KID] {
			t.Fatalf("duplicate kid %s", k.KID)
		}
		seen[k.KID] = true
	}
	for _, k := range set.Public().Keys {
		if k.D != "" {
			t.Fatal("Public() must strip private material")
		}
	}
}

func TestRandomKid(t *testing.T) {
	set, _ := GenerateJWKS(4)
	for i := 0; i < 20; i++ {
		kid, err := RandomKid(set.Keys)
		if err != nil {
			t.Fatalf("RandomKid err: %v", err)
		}
		if _, ok := set.KeyByKID(kid); !ok {
			t.Fatalf("RandomKid returned unknown kid %s", kid)
		}
	}
	if _, err := RandomKid(nil); !errors.Is(err, ErrNoKeys) {
		t.Fatalf("empty set: expected ErrNoKeys, got %v", err)
	}
	if _, err := RandomKid(set.Public().Keys); !errors.Is(err, ErrNoKeys) {
		t.Fatalf("public-only set: expected ErrNoKeys, got %v", err)
	}
}

func TestSignAndVerify_RoundTrip(t *testing.T) {
	set, _ := GenerateJWKS(2)
	srv := newJWKSServer(t, set)

	kid, _ := RandomKid(set.Keys)
	signed, claims, err := Sign(map[string]any{"me": "https://me.example.com/", "scope": "create"}, kid, set, "https://auth.example.com/", "1 hour")
	if err != nil {
		t.Fatalf("Sign err: %v", err)
	}
	if claims["jti"] == "" || claims["iss"] != "https://auth.example.com/" {
		t.Fatalf("claims incomplete: %+v", claims)
	}

	got, err := NewVerifier().Verify(context.Background(), signed, "https://auth.example.com/", srv.URL, 0)
	if err != nil {
		t.Fatalf("Verify err: %v", err)
	}
	if got["me"] != "https://me.example.com/" || got["scope"] != "create" {
		t.Fatalf("verified claims mismatch: %+v", got)
	}
}

func TestSign_UnknownKid(t *testing.T) {
	set, _ := GenerateJWKS(1)
	if _, _, err := Sign(nil, "no-such-kid", set, "iss", "1h"); !errors.Is(err, ErrSigning) {
		t.Fatalf("expected ErrSigning, got %v", err)
	}
}

func TestVerify_IssuerMismatch(t *testing.T) {
	set, _ := GenerateJWKS(1)
	srv := newJWKSServer(t, set)
	signed, _, err := Sign(nil, set.Keys[0].KID, set, "https://a.example.com/", "1h")
	if err != nil {
		t.Fatal(err)
	}
	_, err = NewVerifier().Verify(context.Background(), signed, "https://other.example.com/", srv.URL, 0)
	if !errors.Is(err, ErrIssuerMismatch) {
		t.Fatalf("expected ErrIssuerMismatch, got %v", err)
	}
}

func TestVerify_WrongKeySet(t *testing.T) {
	signerSet, _ := GenerateJWKS(1)
	otherSet, _ := GenerateJWKS(1)
	// El server publica claves distintas a las que firmaron.
	otherSet.Keys[0].KID = signerSet.Keys[0].KID
	srv := newJWKSServer(t, otherSet)

	signed, _, err := Sign(nil, signerSet.Keys[0].KID, signerSet, "iss", "1h")
	if err != nil {
		t.Fatal(err)
	}
	_, err = NewVerifier().Verify(context.Background(), signed, "iss", srv.URL, 0)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerify_Expired(t *testing.T) {
	set, _ := GenerateJWKS(1)
	srv := newJWKSServer(t, set)

	// Token firmado a mano con exp en el pasado.
	priv, err := privateKey(set.Keys[0])
	if err != nil {
		t.Fatal(err)
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, jwtv5.MapClaims{
		"iss": "iss",
		"iat": time.Now().Add(-2 * time.Hour).Unix(),
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	tk.Header["kid"] = set.Keys[0].KID
	signed, err := tk.SignedString(priv)
	if err != nil {
		t.Fatal(err)
	}

	_, err = NewVerifier().Verify(context.Background(), signed, "iss", srv.URL, 0)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerify_MaxAge(t *testing.T) {
	set, _ := GenerateJWKS(1)
	srv := newJWKSServer(t, set)

	priv, err := privateKey(set.Keys[0])
	if err != nil {
		t.Fatal(err)
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, jwtv5.MapClaims{
		"iss": "iss",
		"iat": time.Now().Add(-30 * time.Minute).Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	tk.Header["kid"] = set.Keys[0].KID
	signed, err := tk.SignedString(priv)
	if err != nil {
		t.Fatal(err)
	}

	v := NewVerifier()
	if _, err := v.Verify(context.Background(), signed, "iss", srv.URL, time.Hour); err != nil {
		t.Fatalf("within max age should pass: %v", err)
	}
	if _, err := v.Verify(context.Background(), signed, "iss", srv.URL, 10*time.Minute); !errors.Is(err, ErrExpired) {
		t.Fatalf("older than max age: expected ErrExpired, got %v", err)
	}
}

func TestDecode_NoVerification(t *testing.T) {
	set, _ := GenerateJWKS(1)
	signed, _, err := Sign(map[string]any{"me": "https://me.example.com/"}, set.Keys[0].KID, set, "iss", "1h")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := Decode(signed)
	if err != nil {
		t.Fatalf("Decode err: %v", err)
	}
	if claims["me"] != "https://me.example.com/" {
		t.Fatalf("decoded claims mismatch: %+v", claims)
	}
	if _, err := Decode("not-a-jwt"); err == nil {
		t.Fatal("Decode of garbage must fail")
	}
}

func TestParseDuration_HumanForms(t *testing.T) {
	cases := map[string]time.Duration{
		"72 hours":   72 * time.Hour,
		"30 days":    30 * 24 * time.Hour,
		"15 minutes": 15 * time.Minute,
		"2 weeks":    14 * 24 * time.Hour,
		"1h30m":      90 * time.Minute,
	}
	for in, want := range cases {
		got, err := ParseDuration(in)
		if err != nil {
			t.Fatalf("ParseDuration(%q) err: %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseDuration(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParseDuration("sometime"); err == nil {
		t.Fatal("garbage duration must fail")
	}
}
