package bootstrap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const logPrefix = "bootstrap:loader"

// ManifestEnv names the environment variable holding the manifest path.
const ManifestEnv = "BRIDGE_MANIFEST_FILE"

// LoadManifest loads the method manifest from file paths or environment.
// It tries paths in order: first any paths passed in, then BRIDGE_MANIFEST_FILE, then defaults.
// When no file can be read or parsed the embedded default manifest is returned.
func LoadManifest(paths ...string) (*Manifest, error) {
	all := make([]string, 0, len(paths)+5)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv(ManifestEnv); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/bridge.yaml", "config/bridge.json", "config/bridge.toml", "bridge.yaml")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		m, err := ParseManifest(data, filepath.Ext(p))
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse manifest %s: %v", logPrefix, p, err))
			continue
		}
		slog.Info(fmt.Sprintf("%s - Loaded manifest from %s (%d methods)", logPrefix, p, len(m.Methods)))
		return m, nil
	}

	slog.Info(fmt.Sprintf("%s - Using default manifest", logPrefix))
	return GetDefaultManifest(), nil
}

// ParseManifest decodes and validates a manifest. ext selects the format: ".json", ".yaml"/".yml" or
// ".toml".
func ParseManifest(data []byte, ext string) (*Manifest, error) {
	var m Manifest
	switch strings.ToLower(ext) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("%s - JSON parse error: %w", logPrefix, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%s - YAML parse error: %w", logPrefix, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &m); err != nil {
			return nil, fmt.Errorf("%s - TOML parse error: %w", logPrefix, err)
		}
	default:
		return nil, fmt.Errorf("%s - unsupported manifest format %q", logPrefix, ext)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// GetDefaultManifest returns the embedded fallback manifest. It declares the builtin methods plus the
// common host methods, which stay stubs until an implementation is linked in.
func GetDefaultManifest() *Manifest {
	return &Manifest{
		Name:            "sparkling-bridge",
		Version:         "1.0.0",
		Description:     "Default bridge method manifest",
		ProtocolVersion: "1.0.0",
		Methods: map[string]MethodDecl{
			"echo": {
				RequiredKeys: []string{"msg"},
				Description:  "Returns its params",
			},
			"bridge.info": {
				Thread:      "current",
				Description: "Protocol version and registered methods",
			},
			"bridge.ping": {
				Thread:      "current",
				Shape:       "flattened",
				Description: "Liveness check",
			},
			"router.open": {
				RequiredKeys: []string{"scheme"},
				Thread:       "main",
				Description:  "Opens a page by scheme",
			},
			"router.close": {
				Thread:      "main",
				Description: "Closes the current page",
			},
			"storage.getItem": {
				RequiredKeys: []string{"key"},
				Thread:       "background",
				Description:  "Reads a persisted value",
			},
			"storage.setItem": {
				RequiredKeys: []string{"key", "data"},
				Thread:       "background",
				Description:  "Persists a value",
			},
			"file.upload": {
				RequiredKeys: []string{"filePath", "url"},
				Fields:       map[string]string{"contentType": "header.contentType"},
				Thread:       "background",
				Description:  "Uploads a local file",
			},
		},
		Aliases: map[string]string{
			"ping": "bridge.ping",
		},
	}
}

// CreateResolvedManifest builds a ResolvedManifest for fast lookups.
func CreateResolvedManifest(m *Manifest) *ResolvedManifest {
	methods := make(map[string]*MethodDecl, len(m.Methods))
	for name, decl := range m.Methods {
		d := decl
		methods[name] = &d
	}

	aliases := make(map[string]string, len(m.Aliases))
	for alias, target := range m.Aliases {
		aliases[alias] = target
	}

	return &ResolvedManifest{
		name:       m.Name,
		version:    m.Version,
		protocol:   m.ProtocolVersion,
		accept:     m.AcceptProtocol,
		namespaces: append([]string(nil), m.Namespaces...),
		methods:    methods,
		aliases:    aliases,
	}
}

// MergeManifests merges an override manifest into a base manifest.
func MergeManifests(base, override *Manifest) *Manifest {
	merged := *base

	merged.Methods = make(map[string]MethodDecl, len(base.Methods)+len(override.Methods))
	for name, decl := range base.Methods {
		merged.Methods[name] = decl
	}
	for name, decl := range override.Methods {
		merged.Methods[name] = decl
	}

	merged.Aliases = make(map[string]string, len(base.Aliases)+len(override.Aliases))
	for alias, target := range base.Aliases {
		merged.Aliases[alias] = target
	}
	for alias, target := range override.Aliases {
		merged.Aliases[alias] = target
	}

	if override.ProtocolVersion != "" {
		merged.ProtocolVersion = override.ProtocolVersion
		merged.AcceptProtocol = override.AcceptProtocol
	}
	if len(override.Namespaces) > 0 {
		merged.Namespaces = append([]string(nil), override.Namespaces...)
	}

	return &merged
}
