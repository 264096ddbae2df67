package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/morezero/sparkling-bridge/pkg/registry"
)

const applyLogPrefix = "bootstrap:apply"

// ApplyResult reports what Apply registered.
type ApplyResult struct {
	Registered []string `json:"registered"`
	Stubbed    []string `json:"stubbed"`
	Aliases    []string `json:"aliases"`
	// Undeclared are implementations the manifest does not mention; they keep their own spec.
	Undeclared []string `json:"undeclared"`
}

// declared wraps an implementation so the manifest's spec takes precedence over its own.
type declared struct {
	registry.Method
	spec registry.Spec
}

func (d *declared) Spec() registry.Spec { return d.spec }

func (d *declared) Handle(ctx context.Context, req *registry.Request, done registry.Completion) {
	d.Method.Handle(ctx, req, done)
}

func (d *declared) Release() {
	if r, ok := d.Method.(registry.Releaser); ok {
		r.Release()
	}
}

// mergeSpec fills the declaration's unset fields from the implementation's own spec.
func mergeSpec(decl, own registry.Spec, d MethodDecl) registry.Spec {
	out := decl
	if len(d.RequiredKeys) == 0 {
		out.RequiredKeys = own.RequiredKeys
	}
	if len(d.Fields) == 0 {
		out.Fields = own.Fields
	}
	if d.Shape == "" {
		out.Shape = own.Shape
	}
	if d.Thread == "" {
		out.Thread = own.Thread
	}
	if d.Description == "" {
		out.Description = own.Description
	}
	return out
}

// Apply registers the manifest's methods in the Global tier of reg. Declared methods without an
// implementation are registered as stubs answering NOT_IMPLEMENTED; aliases share the instance of
// their target.
func Apply(reg *registry.Registry, m *Manifest, impls map[string]registry.Method) (*ApplyResult, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	res := &ApplyResult{}
	instances := make(map[string]registry.Method, len(m.Methods))

	names := make([]string, 0, len(m.Methods))
	for name := range m.Methods {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		decl := m.Methods[name]
		spec, err := decl.Spec()
		if err != nil {
			return nil, fmt.Errorf("%s - method %s: %w", applyLogPrefix, name, err)
		}
		var method registry.Method
		if impl, ok := impls[name]; ok && impl != nil {
			method = &declared{Method: impl, spec: mergeSpec(spec, impl.Spec(), decl)}
			res.Registered = append(res.Registered, name)
		} else {
			method = &registry.Stub{Name: name, MethodSpec: spec}
			res.Stubbed = append(res.Stubbed, name)
		}
		if err := reg.Register(name, method, registry.Global()); err != nil {
			return nil, fmt.Errorf("%s - register %s: %w", applyLogPrefix, name, err)
		}
		instances[name] = method
	}

	aliases := make([]string, 0, len(m.Aliases))
	for alias := range m.Aliases {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		if err := reg.Register(alias, instances[m.Aliases[alias]], registry.Global()); err != nil {
			return nil, fmt.Errorf("%s - register alias %s: %w", applyLogPrefix, alias, err)
		}
		res.Aliases = append(res.Aliases, alias)
	}

	extra := make([]string, 0)
	for name := range impls {
		if _, ok := m.Methods[name]; !ok {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		if impls[name] == nil {
			continue
		}
		if err := reg.Register(name, impls[name], registry.Global()); err != nil {
			return nil, fmt.Errorf("%s - register %s: %w", applyLogPrefix, name, err)
		}
		res.Undeclared = append(res.Undeclared, name)
	}

	slog.Info(fmt.Sprintf("%s - Applied manifest %s: %d implemented, %d stubbed, %d aliases, %d undeclared",
		applyLogPrefix, m.Name, len(res.Registered), len(res.Stubbed), len(res.Aliases), len(res.Undeclared)))
	return res, nil
}
