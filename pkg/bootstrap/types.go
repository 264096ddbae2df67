// Package bootstrap loads the method manifest that declares a bridge's methods at startup.
package bootstrap

import (
	"fmt"
	"sort"

	"github.com/morezero/sparkling-bridge/pkg/call"
	"github.com/morezero/sparkling-bridge/pkg/registry"
	"github.com/morezero/sparkling-bridge/pkg/semver"
	"github.com/morezero/sparkling-bridge/pkg/status"
)

// MethodDecl declares one method: how its params are validated and how its result is shaped.
type MethodDecl struct {
	Namespace    string            `json:"namespace,omitempty" yaml:"namespace,omitempty" toml:"namespace,omitempty"`
	RequiredKeys []string          `json:"requiredKeys,omitempty" yaml:"requiredKeys,omitempty" toml:"requiredKeys,omitempty"`
	Fields       map[string]string `json:"fields,omitempty" yaml:"fields,omitempty" toml:"fields,omitempty"`
	Shape        string            `json:"shape,omitempty" yaml:"shape,omitempty" toml:"shape,omitempty"`
	Thread       string            `json:"thread,omitempty" yaml:"thread,omitempty" toml:"thread,omitempty"`
	Description  string            `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
}

// Spec converts the declaration into a registry spec.
func (d MethodDecl) Spec() (registry.Spec, error) {
	shape, err := status.ParseShape(d.Shape)
	if err != nil {
		return registry.Spec{}, err
	}
	thread, err := call.ParseThread(d.Thread)
	if err != nil {
		return registry.Spec{}, err
	}
	return registry.Spec{
		RequiredKeys: append([]string(nil), d.RequiredKeys...),
		Fields:       d.Fields,
		Shape:        shape,
		Thread:       thread,
		Description:  d.Description,
	}, nil
}

// Manifest is the root of a manifest file.
type Manifest struct {
	Name            string `json:"name" yaml:"name" toml:"name"`
	Version         string `json:"version" yaml:"version" toml:"version"`
	Description     string `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	ProtocolVersion string `json:"protocolVersion,omitempty" yaml:"protocolVersion,omitempty" toml:"protocolVersion,omitempty"`
	// AcceptProtocol is the semver constraint callers' protocol versions must satisfy.
	AcceptProtocol string `json:"acceptProtocol,omitempty" yaml:"acceptProtocol,omitempty" toml:"acceptProtocol,omitempty"`
	// Namespaces lists the namespaces callers may use; empty allows all.
	Namespaces []string              `json:"namespaces,omitempty" yaml:"namespaces,omitempty" toml:"namespaces,omitempty"`
	Methods    map[string]MethodDecl `json:"methods" yaml:"methods" toml:"methods"`
	// Aliases maps an alternate name to a declared method.
	Aliases map[string]string `json:"aliases,omitempty" yaml:"aliases,omitempty" toml:"aliases,omitempty"`
}

// Validate checks names, shapes, thread preferences, aliases and the protocol version.
func (m *Manifest) Validate() error {
	for name, decl := range m.Methods {
		if !semver.ValidateMethodName(name) {
			return fmt.Errorf("%s - invalid method name %q", logPrefix, name)
		}
		if decl.Namespace != "" && !semver.ValidateNamespace(decl.Namespace) {
			return fmt.Errorf("%s - method %s: invalid namespace %q", logPrefix, name, decl.Namespace)
		}
		if _, err := decl.Spec(); err != nil {
			return fmt.Errorf("%s - method %s: %w", logPrefix, name, err)
		}
	}
	for alias, target := range m.Aliases {
		if !semver.ValidateMethodName(alias) {
			return fmt.Errorf("%s - invalid alias %q", logPrefix, alias)
		}
		if _, ok := m.Methods[target]; !ok {
			return fmt.Errorf("%s - alias %s points at undeclared method %s", logPrefix, alias, target)
		}
	}
	for _, ns := range m.Namespaces {
		if !semver.ValidateNamespace(ns) {
			return fmt.Errorf("%s - invalid namespace %q", logPrefix, ns)
		}
	}
	if m.ProtocolVersion != "" {
		if _, err := semver.NewProtocol(m.ProtocolVersion, m.AcceptProtocol); err != nil {
			return err
		}
	}
	return nil
}

// ResolvedManifest provides fast lookup of declared methods.
type ResolvedManifest struct {
	name       string
	version    string
	protocol   string
	accept     string
	namespaces []string
	methods    map[string]*MethodDecl
	aliases    map[string]string
}

// Get returns a declaration by method name or alias.
func (rm *ResolvedManifest) Get(name string) *MethodDecl {
	if decl, ok := rm.methods[name]; ok {
		return decl
	}
	if target, ok := rm.aliases[name]; ok {
		return rm.methods[target]
	}
	return nil
}

// ResolveAlias resolves an alias to the declared method name.
func (rm *ResolvedManifest) ResolveAlias(alias string) string {
	if target, ok := rm.aliases[alias]; ok {
		return target
	}
	return alias
}

// Names returns the declared method names, sorted.
func (rm *ResolvedManifest) Names() []string {
	out := make([]string, 0, len(rm.methods))
	for n := range rm.methods {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Protocol builds the protocol this manifest speaks, or nil when it does not name one.
func (rm *ResolvedManifest) Protocol() (*semver.Protocol, error) {
	if rm.protocol == "" {
		return nil, nil
	}
	return semver.NewProtocol(rm.protocol, rm.accept)
}

func (rm *ResolvedManifest) Name() string         { return rm.name }
func (rm *ResolvedManifest) Version() string      { return rm.version }
func (rm *ResolvedManifest) Namespaces() []string { return rm.namespaces }
