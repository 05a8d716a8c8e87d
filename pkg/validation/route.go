// Package validation provides input validation for route definitions.
// Everything that ends up in a file path or an nginx directive passes
// through here first.
package validation

import (
	"fmt"
	"net/netip"
	"regexp"
	"strings"
)

// Route names become directory names and nginx upstream identifiers:
// - ASCII letters, digits, hyphens and underscores
// - Must start with a letter or digit
// - Max 128 characters
var routeNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,127}$`)

// Hostname label per RFC 1123, lower-cased by NormalizeDomain beforehand.
var labelRegex = regexp.MustCompile(`^[a-z0-9_]([a-z0-9-]{0,61}[a-z0-9])?$`)

var routeNameReplacer = regexp.MustCompile(`[^a-zA-Z0-9-]`)

// MaxDomainLength is the maximum length of a hostname.
const MaxDomainLength = 253

// schemePrefixes are stripped from user supplied domains, longest first.
var schemePrefixes = []string{"https://", "http://", "://", "//"}

// NormalizeDomain lower-cases a user supplied domain and strips any
// scheme prefix, path and surrounding whitespace.
func NormalizeDomain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	for _, p := range schemePrefixes {
		if strings.HasPrefix(d, p) {
			d = d[len(p):]
			break
		}
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	return d
}

// ValidateDomain checks a bare hostname. It rejects scheme prefixes,
// names without an internal dot and names ending in a dot.
func ValidateDomain(name string) error {
	if name == "" {
		return fmt.Errorf("domain cannot be empty")
	}
	if strings.Contains(name, "://") || strings.HasPrefix(name, "//") {
		return fmt.Errorf("domain must not include a scheme")
	}
	if strings.HasSuffix(name, ".") {
		return fmt.Errorf("domain must not end with a dot")
	}
	if strings.HasPrefix(name, ".") || !strings.Contains(name, ".") {
		return fmt.Errorf("domain must contain an internal dot")
	}
	if len(name) > MaxDomainLength {
		return fmt.Errorf("domain exceeds maximum length of %d", MaxDomainLength)
	}
	if strings.Contains(name, "*") {
		return fmt.Errorf("wildcard domains are not supported")
	}
	for _, label := range strings.Split(name, ".") {
		if !labelRegex.MatchString(label) {
			return fmt.Errorf("invalid domain label %q", label)
		}
	}
	return nil
}

// ValidateUpstream checks an upstream address.
func ValidateUpstream(ip string, port int) error {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return fmt.Errorf("invalid IP address")
	}
	if addr.Zone() != "" {
		return fmt.Errorf("zoned IPv6 addresses are not supported")
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", port)
	}
	return nil
}

// ValidateRouteName checks that name is safe as a directory and nginx identifier.
func ValidateRouteName(name string) error {
	if name == "" {
		return fmt.Errorf("route name cannot be empty")
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("route name contains path traversal sequence")
	}
	if !routeNameRegex.MatchString(name) {
		return fmt.Errorf("invalid route name format: %s", name)
	}
	return nil
}

// SanitizeRouteName turns free text into a route name: every character
// outside [a-zA-Z0-9-] becomes a hyphen and surrounding hyphens are trimmed.
func SanitizeRouteName(raw string) string {
	return strings.Trim(routeNameReplacer.ReplaceAllString(strings.TrimSpace(raw), "-"), "-")
}
