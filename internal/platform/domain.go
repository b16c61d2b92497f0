package platform

import (
	"fmt"
	"strings"

	"golang.org/x/net/idna"
)

// NormalizeDomain converts a domain name to its lower-case ASCII (punycode)
// form as it is sent to the CA. A trailing dot is dropped.
func NormalizeDomain(name string) (string, error) {
	name = strings.TrimSuffix(strings.TrimSpace(name), ".")
	if name == "" {
		return "", fmt.Errorf("empty domain name")
	}
	ascii, err := idna.Lookup.ToASCII(name)
	if err != nil {
		return "", fmt.Errorf("normalize domain %q: %w", name, err)
	}
	return strings.ToLower(ascii), nil
}

// NormalizeDomains normalizes every name and drops duplicates while keeping
// the first occurrence's position.
func NormalizeDomains(names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		d, err := NormalizeDomain(n)
		if err != nil {
			return nil, err
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out, nil
}
