package jwt

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDuration acepta duraciones legibles ("72 hours", "30 days",
// "15 minutes") además de la sintaxis de time.ParseDuration ("72h").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("jwt: empty duration")
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return 0, fmt.Errorf("jwt: cannot parse duration %q", s)
	}
	n, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, fmt.Errorf("jwt: cannot parse duration %q: %w", s, err)
	}
	var unit time.Duration
	switch strings.TrimSuffix(strings.ToLower(parts[1]), "s") + "s" {
	case "seconds":
		unit = time.Second
	case "minutes":
		unit = time.Minute
	case "hours":
		unit = time.Hour
	case "days":
		unit = 24 * time.Hour
	case "weeks":
		unit = 7 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("jwt: unknown duration unit %q", parts[1])
	}
	return time.Duration(n * float64(unit)), nil
}
