package graphql

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Classification labels used for logs and metrics.
const (
	ClassOK            = "ok"
	ClassRateLimited   = "rate_limited"
	ClassMissingScopes = "missing_scopes"
	ClassAPIError      = "api_error"
)

// RateLimitedError reports that the upstream throttled the query. It is the
// only classification the executor retries.
type RateLimitedError struct {
	RetryAfter time.Duration
	Cost       *CostInfo
	Message    string
}

func (e *RateLimitedError) Error() string {
	if e == nil {
		return "rate limited"
	}
	if e.Message != "" {
		return fmt.Sprintf("rate limited: %s (retry after %s)", e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("rate limited (retry after %s)", e.RetryAfter)
}

// MissingScopesError reports that the tenant's grant cannot satisfy the query.
type MissingScopesError struct {
	Missing []string
	Message string
}

func (e *MissingScopesError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("missing scopes: %s", strings.Join(e.Missing, ", "))
	}
	if e.Message != "" {
		return fmt.Sprintf("missing scopes: %s", e.Message)
	}
	return "missing scopes"
}

// APIError is any other structured upstream failure. ActionHint is populated
// for known schema-mismatch phrasings to speed up diagnosis of schema drift.
type APIError struct {
	Code       string
	RequestID  string
	Message    string
	ActionHint string
	Errors     []string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "upstream API error"
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("%s (request %s)", msg, e.RequestID)
	}
	if e.ActionHint != "" {
		msg = fmt.Sprintf("%s [hint: %s]", msg, e.ActionHint)
	}
	return msg
}

var (
	throttlePattern = regexp.MustCompile(`(?i)throttl|rate limit|too many requests|exceeded.*(cost|budget)`)
	scopePattern    = regexp.MustCompile(`(?i)permission|forbidden|access denied|not authori[sz]ed|scope`)
	schemaPatterns  = []struct {
		re   *regexp.Regexp
		hint string
	}{
		{regexp.MustCompile(`(?i)unknown argument`), "the query sends an argument this API version does not accept; check the API version header"},
		{regexp.MustCompile(`(?i)doesn't exist on type|does not exist on type|undefined field|unknown field`), "the query selects a field this API version does not expose; reduce the query or bump the API version"},
		{regexp.MustCompile(`(?i)variable .* is never used|unused variable`), "the query declares a variable the document no longer references"},
	}
	scopeNamePattern = regexp.MustCompile(`[a-z_]+:[a-z_]+`)
	fieldDenyPattern = regexp.MustCompile(`(?i)(access denied|not authori[sz]ed|permission).*(field|for)|field .* (is restricted|requires)`)
)

// actionHint matches known schema-mismatch phrasings.
func actionHint(message string) string {
	for _, p := range schemaPatterns {
		if p.re.MatchString(message) {
			return p.hint
		}
	}
	return ""
}

// extractScopes pulls scope names out of an error message.
func extractScopes(message string) []string {
	return scopeNamePattern.FindAllString(strings.ToLower(message), -1)
}

// FieldDenied reports whether an API error message names a field the caller
// is not allowed to read, which fetchers treat as degradable rather than
// fatal.
func FieldDenied(err *APIError) bool {
	if err == nil {
		return false
	}
	return fieldDenyPattern.MatchString(err.Message)
}

var fieldMissingPattern = regexp.MustCompile(`(?i)doesn't exist on type|does not exist on type|undefined field|unknown field`)

// Degradable reports whether a fetch error can be resolved by retrying the
// same page with a reduced query instead of failing the whole fetch: a scope
// classification, or an API error naming a field that is denied or absent on
// this tenant's schema version.
func Degradable(err error) bool {
	var ms *MissingScopesError
	if errors.As(err, &ms) {
		return true
	}
	var api *APIError
	if errors.As(err, &api) {
		return FieldDenied(api) || fieldMissingPattern.MatchString(api.Message)
	}
	return false
}
