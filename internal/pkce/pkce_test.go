package pkce

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerateVerifier_Length(t *testing.T) {
	for _, n := range []int{MinVerifierLength, 64, MaxVerifierLength} {
		v, err := GenerateVerifier(n)
		if err != nil {
			t.Fatalf("GenerateVerifier(%d) err: %v", n, err)
		}
		if len(v) != n {
			t.Fatalf("length mismatch: got %d want %d", len(v), n)
		}
		for _, c := range v {
			if !strings.ContainsRune(verifierAlphabet, c) {
				t.Fatalf("character %q outside the unreserved alphabet", c)
			}
		}
	}
}

func TestGenerateVerifier_InvalidLength(t *testing.T) {
	for _, n := range []int{0, 42, 129, 1000} {
		if _, err := GenerateVerifier(n); !errors.Is(err, ErrInvalidLength) {
			t.Fatalf("GenerateVerifier(%d): expected ErrInvalidLength, got %v", n, err)
		}
	}
}

func TestChallenge_S256RoundTrip(t *testing.T) {
	v, err := GenerateVerifier(43)
	if err != nil {
		t.Fatalf("GenerateVerifier err: %v", err)
	}
	ch, err := Challenge(MethodS256, v)
	if err != nil {
		t.Fatalf("Challenge err: %v", err)
	}
	if ch == v {
		t.Fatal("S256 challenge must not equal the verifier")
	}
	if !Verify(MethodS256, v, ch) {
		t.Fatal("Verify should accept the original verifier")
	}

	other, _ := GenerateVerifier(43)
	if Verify(MethodS256, other, ch) {
		t.Fatal("Verify should reject a different verifier")
	}
}

func TestChallenge_Plain(t *testing.T) {
	ch, err := Challenge(MethodPlain, "some-verifier-value")
	if err != nil {
		t.Fatalf("Challenge err: %v", err)
	}
	if ch != "some-verifier-value" {
		t.Fatalf("plain challenge should be the verifier, got %q", ch)
	}
	if !Verify(MethodPlain, "some-verifier-value", ch) {
		t.Fatal("Verify plain should accept")
	}
}

func TestChallenge_UnsupportedMethod(t *testing.T) {
	if _, err := Challenge("S512", "x"); !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("expected ErrUnsupportedMethod, got %v", err)
	}
	if Verify("S512", "x", "y") {
		t.Fatal("Verify with unknown method must return false")
	}
}

// RFC 7636 appendix B: vector de referencia.
func TestChallenge_RFCVector(t *testing.T) {
	const verifier = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	const want = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	got, err := Challenge(MethodS256, verifier)
	if err != nil {
		t.Fatalf("Challenge err: %v", err)
	}
	if got != want {
		t.Fatalf("challenge mismatch: got %q want %q", got, want)
	}
}

// Con muestreo por rechazo todo el alfabeto es alcanzable con probabilidad
// uniforme; sobre una muestra grande los 66 caracteres tienen que aparecer.
func TestGenerateVerifier_CoversAlphabet(t *testing.T) {
	seen := make(map[rune]bool, len(verifierAlphabet))
	for i := 0; i < 300; i++ {
		v, err := GenerateVerifier(MaxVerifierLength)
		if err != nil {
			t.Fatalf("GenerateVerifier err: %v", err)
		}
		for _, c := range v {
			seen[c] = true
		}
	}
	for _, c := range verifierAlphabet {
		if !seen[c] {
			t.Errorf("character %q never generated", c)
		}
	}
}
