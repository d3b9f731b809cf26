package record

import (
	"fmt"
	"net/url"
	"strings"
)

// CanonicalizeMe normaliza una profile URL según las reglas de IndieAuth:
// scheme y host en minúsculas, path "/" si está vacío, sin fragment.
// Rechaza URLs sin scheme http(s) o sin host.
func CanonicalizeMe(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("record: parse profile URL %q: %w", raw, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("record: profile URL %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("record: profile URL %q: missing host", raw)
	}
	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	u.Fragment = ""
	return u.String(), nil
}

// ValidURL chequea que un client_id o redirect_uri sea una URL http(s)
// absoluta.
func ValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}
