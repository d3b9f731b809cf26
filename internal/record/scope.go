package record

import (
	"regexp"
	"sort"
	"strings"
)

// Scope name rules (same shape the IndieAuth/Micropub ecosystem uses):
// lowercase, start/end with [a-z0-9], middle may include [a-z0-9:_.-],
// length 1..64. Excludes whitespace and semicolons explicitly.
var scopeNameRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9:_\.-]{0,62}[a-z0-9])?$`)

// ValidScopeName retorna true si el nombre de scope matchea el patrón.
func ValidScopeName(name string) bool {
	return scopeNameRe.MatchString(name)
}

// NormalizeScope deduplica y ordena un scope space-delimited.
// Retorna "" si no queda ningún scope válido.
func NormalizeScope(scope string) string {
	seen := map[string]bool{}
	var out []string
	for _, s := range strings.Fields(scope) {
		if !seen[s] && ValidScopeName(s) {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return strings.Join(out, " ")
}

// ScopeSubset retorna true si todos los scopes de sub están incluidos en
// super. Usado para rechazar escalación de scope en el refresh.
func ScopeSubset(sub, super string) bool {
	granted := map[string]bool{}
	for _, s := range strings.Fields(super) {
		granted[s] = true
	}
	for _, s := range strings.Fields(sub) {
		if !granted[s] {
			return false
		}
	}
	return true
}
