// validate.go -- Input validation for flow requests.
package auth

import (
	"regexp"
	"slices"
	"strings"
)

// Input caps. Correlation keys and codes from real providers are far below these.
const (
	maxParamLength = 512
	maxScopes      = 20
	maxReturnPath  = 256
)

var transports = []string{"popup", "redirect", "direct"}

// subjectHintPattern is an Aptos account address: 0x followed by up to 64 hex digits.
var subjectHintPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{1,64}$`)

// scopePattern is an RFC 6749 scope-token.
var scopePattern = regexp.MustCompile(`^[\x21\x23-\x5B\x5D-\x7E]+$`)

// ValidateSubjectHint returns an error message, or "" if hint is empty or well formed.
func ValidateSubjectHint(hint string) string {
	if hint == "" || subjectHintPattern.MatchString(hint) {
		return ""
	}
	return "subjectHint must be a 0x-prefixed hex address"
}

// ValidateReturnPath returns an error message, or "" if p is a same-origin absolute path.
// Rejects scheme-relative ("//host") and backslash tricks that browsers treat as hosts.
func ValidateReturnPath(p string) string {
	if p == "" {
		return ""
	}
	if len(p) > maxReturnPath {
		return "returnPath is too long"
	}
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.ContainsAny(p, "\\\r\n\t") {
		return "returnPath must be a local path"
	}
	return ""
}

// ValidateScopes returns an error message, or "" if every scope is a valid scope-token.
func ValidateScopes(scopes []string) string {
	if len(scopes) > maxScopes {
		return "too many scopes"
	}
	for _, s := range scopes {
		if !scopePattern.MatchString(s) {
			return "scopes contain an invalid value"
		}
	}
	return ""
}

// ValidateTransport returns an error message, or "" if t is empty or known.
func ValidateTransport(t string) string {
	if t == "" || slices.Contains(transports, t) {
		return ""
	}
	return "transport must be popup, redirect or direct"
}

// tooLong reports whether any value exceeds maxParamLength.
func tooLong(vals ...string) bool {
	for _, v := range vals {
		if len(v) > maxParamLength {
			return true
		}
	}
	return false
}
