// Package policy provides the stock authority checker and override gates.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/morezero/sparkling-bridge/pkg/call"
	"github.com/morezero/sparkling-bridge/pkg/status"
)

const logPrefix = "policy:authority"

// NamespaceAuthority vetoes calls whose namespace is not on its allow-list. An empty list allows every
// namespace. Containers may be granted extra namespaces.
type NamespaceAuthority struct {
	mu        sync.RWMutex
	allowed   map[string]bool
	byContain map[string]map[string]bool
}

// NewNamespaceAuthority creates an authority allowing namespaces.
func NewNamespaceAuthority(namespaces ...string) *NamespaceAuthority {
	a := &NamespaceAuthority{allowed: make(map[string]bool), byContain: make(map[string]map[string]bool)}
	for _, ns := range namespaces {
		if ns != "" {
			a.allowed[ns] = true
		}
	}
	return a
}

// Grant allows namespace for calls from containerID only.
func (a *NamespaceAuthority) Grant(containerID, namespace string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	set := a.byContain[containerID]
	if set == nil {
		set = make(map[string]bool)
		a.byContain[containerID] = set
	}
	set[namespace] = true
}

// Revoke drops every grant for containerID.
func (a *NamespaceAuthority) Revoke(containerID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.byContain, containerID)
}

// Allowed returns the process-wide allow-list, sorted.
func (a *NamespaceAuthority) Allowed() []string {
	out := make([]string, 0, len(a.allowed))
	for ns := range a.allowed {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

func (a *NamespaceAuthority) CheckAuthority(_ context.Context, env *call.Envelope) error {
	if len(a.allowed) == 0 || a.allowed[env.Namespace] {
		return nil
	}
	a.mu.RLock()
	granted := a.byContain[env.ContainerID][env.Namespace]
	a.mu.RUnlock()
	if granted {
		return nil
	}
	slog.Debug(fmt.Sprintf("%s - %s denied namespace %s", logPrefix, env.ContainerID, env.Namespace))
	return status.Errorf(status.CodeNoAuthority, "no authority for namespace %s", env.Namespace)
}
