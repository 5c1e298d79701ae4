// Package scopes declares the OAuth scopes this system requires and requests,
// and computes the difference against what a tenant actually granted. It is
// pure so the token manager's scope gate stays independently testable.
package scopes

import (
	"sort"
	"strings"
)

// required scopes: a connection missing any of these can never serve a fetch.
var required = []string{
	"quotes:read",
	"invoices:read",
	"jobs:read",
	"payments:read",
}

// optional scopes requested during the grant but survivable without; fetchers
// degrade their queries when these are absent.
var optional = []string{
	"clients:read",
	"addresses:read",
}

// Required returns the scopes every connection must carry.
func Required() []string {
	out := make([]string, len(required))
	copy(out, required)
	return out
}

// Requested returns the full scope list asked for during authorization.
func Requested() []string {
	out := make([]string, 0, len(required)+len(optional))
	out = append(out, required...)
	out = append(out, optional...)
	return out
}

// Parse splits a space-delimited scope string into a set. Commas are
// tolerated since some provider responses use them.
func Parse(raw string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, s := range strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == ','
	}) {
		s = strings.TrimSpace(s)
		if s != "" {
			set[strings.ToLower(s)] = struct{}{}
		}
	}
	return set
}

// Missing returns required scopes absent from the granted string, sorted for
// stable output.
func Missing(granted string) []string {
	have := Parse(granted)
	var missing []string
	for _, s := range required {
		if _, ok := have[s]; !ok {
			missing = append(missing, s)
		}
	}
	sort.Strings(missing)
	return missing
}

// Has reports whether the granted string contains a single scope.
func Has(granted, scope string) bool {
	_, ok := Parse(granted)[strings.ToLower(scope)]
	return ok
}
