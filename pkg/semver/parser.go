// Package semver parses method references and negotiates the bridge protocol version.
package semver

import (
	"fmt"
	"regexp"
	"strings"
)

const logPrefix = "semver:parser"

// ParsedMethodRef holds the parsed components of a method reference string.
type ParsedMethodRef struct {
	// Namespace, empty when the reference did not name one
	Namespace string
	// Method name (e.g., "router.open")
	Method string
	// Protocol range if specified (e.g., "^1.2.0", "1"); empty means any
	Range string
	// Raw input string
	Raw string
}

var (
	methodNameRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9._-]*$`)
	namespaceRegex  = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)
	majorOnlyRegex  = regexp.MustCompile(`^\d+$`)
)

// ParseMethodRef parses a method reference.
//
// Supported formats:
//   - echo                       (default namespace)
//   - router/router.open         (namespace and method)
//   - router/router.open@1       (major only)
//   - router/router.open@^1.2.0  (range)
func ParseMethodRef(input string) (*ParsedMethodRef, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return nil, fmt.Errorf("%s - empty method reference", logPrefix)
	}

	ref := raw
	var rangeStr string
	if at := strings.Index(ref, "@"); at >= 0 {
		rangeStr = strings.TrimSpace(ref[at+1:])
		ref = ref[:at]
		if rangeStr == "" {
			return nil, fmt.Errorf("%s - empty version after @: %s", logPrefix, raw)
		}
	}

	var ns string
	method := ref
	if slash := strings.Index(ref, "/"); slash >= 0 {
		ns, method = ref[:slash], ref[slash+1:]
		if !ValidateNamespace(ns) {
			return nil, fmt.Errorf("%s - invalid namespace %q in %s", logPrefix, ns, raw)
		}
	}
	if !ValidateMethodName(method) {
		return nil, fmt.Errorf("%s - invalid method name %q in %s", logPrefix, method, raw)
	}

	return &ParsedMethodRef{Namespace: ns, Method: method, Range: rangeStr, Raw: raw}, nil
}

// String rebuilds the canonical reference.
func (r *ParsedMethodRef) String() string {
	s := r.Method
	if r.Namespace != "" {
		s = r.Namespace + "/" + s
	}
	if r.Range != "" {
		s += "@" + r.Range
	}
	return s
}

// IsMajorOnly checks if a range is a major-only specifier (e.g., "3").
func IsMajorOnly(rangeStr string) bool {
	return majorOnlyRegex.MatchString(rangeStr)
}

// ValidateMethodName validates a method name (letters, digits, dots, hyphens, underscores).
func ValidateMethodName(name string) bool {
	return methodNameRegex.MatchString(name)
}

// ValidateNamespace validates a namespace (letters, digits, hyphens, underscores).
func ValidateNamespace(ns string) bool {
	return namespaceRegex.MatchString(ns)
}
