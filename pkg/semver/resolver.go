package semver

import (
	"fmt"

	masterminds "github.com/Masterminds/semver/v3"
)

const resolverLogPrefix = "semver:resolver"

// Protocol is the bridge protocol version and the caller versions it accepts.
type Protocol struct {
	current *masterminds.Version
	accept  *masterminds.Constraints
	raw     string
}

// NewProtocol parses the bridge's current version and the constraint callers must satisfy. An empty
// accept admits the current major only.
func NewProtocol(current, accept string) (*Protocol, error) {
	v, err := masterminds.NewVersion(current)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid protocol version %q: %w", resolverLogPrefix, current, err)
	}
	if accept == "" {
		accept = fmt.Sprintf("%d.x", v.Major())
	}
	c, err := masterminds.NewConstraint(accept)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid protocol constraint %q: %w", resolverLogPrefix, accept, err)
	}
	if !c.Check(v) {
		return nil, fmt.Errorf("%s - protocol %s does not satisfy its own constraint %q", resolverLogPrefix, current, accept)
	}
	return &Protocol{current: v, accept: c, raw: current}, nil
}

// MustProtocol is NewProtocol that panics on error, for package-level defaults.
func MustProtocol(current, accept string) *Protocol {
	p, err := NewProtocol(current, accept)
	if err != nil {
		panic(err)
	}
	return p
}

// Current returns the bridge protocol version as configured.
func (p *Protocol) Current() string { return p.raw }

// Negotiate checks a caller's requested protocol and returns the version the bridge answers with.
// requested may be empty, a version the caller speaks ("1.2"), or a range the bridge must satisfy
// ("^1.0.0").
func (p *Protocol) Negotiate(requested string) (string, error) {
	if requested == "" {
		return p.raw, nil
	}
	if v, err := masterminds.NewVersion(requested); err == nil {
		if !p.accept.Check(v) {
			return p.raw, fmt.Errorf("%s - unsupported protocol version %s (bridge speaks %s)", resolverLogPrefix, requested, p.raw)
		}
		return p.raw, nil
	}
	c, err := masterminds.NewConstraint(requested)
	if err != nil {
		return p.raw, fmt.Errorf("%s - invalid protocol version %q: %w", resolverLogPrefix, requested, err)
	}
	if !c.Check(p.current) {
		return p.raw, fmt.Errorf("%s - protocol %s does not satisfy %q", resolverLogPrefix, p.raw, requested)
	}
	return p.raw, nil
}

// Satisfies reports whether the bridge protocol satisfies a method reference range.
func (p *Protocol) Satisfies(rangeStr string) bool {
	if rangeStr == "" {
		return true
	}
	if IsMajorOnly(rangeStr) {
		rangeStr += ".x"
	}
	c, err := masterminds.NewConstraint(rangeStr)
	if err != nil {
		return false
	}
	return c.Check(p.current)
}
