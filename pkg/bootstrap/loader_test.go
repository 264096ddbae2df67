package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaultManifest(t *testing.T) {
	m := GetDefaultManifest()

	if m.Version != "1.0.0" {
		t.Errorf("bootstrap:loader_test - expected version 1.0.0, got %s", m.Version)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("bootstrap:loader_test - default manifest invalid: %v", err)
	}
	echo, ok := m.Methods["echo"]
	if !ok {
		t.Fatal("bootstrap:loader_test - expected echo to be declared")
	}
	if len(echo.RequiredKeys) != 1 || echo.RequiredKeys[0] != "msg" {
		t.Errorf("bootstrap:loader_test - echo required keys = %v", echo.RequiredKeys)
	}
}

func TestCreateResolvedManifest(t *testing.T) {
	resolved := CreateResolvedManifest(GetDefaultManifest())

	if resolved.Get("bridge.ping") == nil {
		t.Fatal("bootstrap:loader_test - expected bridge.ping, got nil")
	}
	if resolved.Get("ping") == nil {
		t.Error("bootstrap:loader_test - expected alias 'ping' to resolve")
	}
	if resolved.Get("nonexistent") != nil {
		t.Error("bootstrap:loader_test - expected nil for undeclared method")
	}
	if resolved.ResolveAlias("ping") != "bridge.ping" || resolved.ResolveAlias("echo") != "echo" {
		t.Error("bootstrap:loader_test - alias resolution mismatch")
	}
	names := resolved.Names()
	if len(names) == 0 || names[0] != "bridge.info" {
		t.Errorf("bootstrap:loader_test - Names() = %v", names)
	}
	p, err := resolved.Protocol()
	if err != nil || p == nil || p.Current() != "1.0.0" {
		t.Errorf("bootstrap:loader_test - Protocol() = %v, %v", p, err)
	}
}

const yamlManifest = `
name: test
version: 2.0.0
protocolVersion: 1.4.0
namespaces: [default, shop]
methods:
  echo:
    requiredKeys: [msg]
  cart.add:
    namespace: shop
    requiredKeys: [sku, qty]
    fields:
      sku: item.sku
    shape: flattened
    thread: background
aliases:
  addToCart: cart.add
`

const tomlManifest = `
name = "test"
version = "2.0.0"

[methods.echo]
requiredKeys = ["msg"]

[methods."cart.add"]
requiredKeys = ["sku"]
shape = "raw"

[aliases]
addToCart = "cart.add"
`

const jsonManifest = `{"name":"test","version":"2.0.0","methods":{"echo":{"requiredKeys":["msg"]},"cart.add":{"thread":"main"}},"aliases":{"addToCart":"cart.add"}}`

func TestParseManifest_Formats(t *testing.T) {
	tests := []struct {
		ext  string
		data string
	}{
		{".yaml", yamlManifest},
		{".yml", yamlManifest},
		{".toml", tomlManifest},
		{".json", jsonManifest},
	}
	for _, tt := range tests {
		m, err := ParseManifest([]byte(tt.data), tt.ext)
		if err != nil {
			t.Fatalf("bootstrap:loader_test - %s: %v", tt.ext, err)
		}
		if m.Name != "test" || len(m.Methods) != 2 {
			t.Errorf("bootstrap:loader_test - %s: parsed %+v", tt.ext, m)
		}
		if m.Aliases["addToCart"] != "cart.add" {
			t.Errorf("bootstrap:loader_test - %s: aliases = %v", tt.ext, m.Aliases)
		}
	}

	m, _ := ParseManifest([]byte(yamlManifest), ".yaml")
	cart := m.Methods["cart.add"]
	if cart.Fields["sku"] != "item.sku" || cart.Namespace != "shop" {
		t.Errorf("bootstrap:loader_test - yaml cart.add = %+v", cart)
	}
}

func TestParseManifest_Invalid(t *testing.T) {
	tests := []struct {
		name string
		ext  string
		data string
	}{
		{"unknown format", ".ini", "x=1"},
		{"broken json", ".json", `{"name":`},
		{"unknown json field", ".json", `{"name":"x","bogus":1}`},
		{"bad shape", ".json", `{"methods":{"echo":{"shape":"sideways"}}}`},
		{"bad thread", ".yaml", "methods:\n  echo:\n    thread: sometimes\n"},
		{"dangling alias", ".json", `{"methods":{"echo":{}},"aliases":{"e":"missing"}}`},
		{"bad method name", ".json", `{"methods":{"has space":{}}}`},
		{"bad protocol", ".json", `{"protocolVersion":"one","methods":{}}`},
	}
	for _, tt := range tests {
		if _, err := ParseManifest([]byte(tt.data), tt.ext); err == nil {
			t.Errorf("bootstrap:loader_test - %s: expected error", tt.name)
		}
	}
}

func TestLoadManifest_PathOrderAndFallback(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "bridge.yaml")
	if err := os.WriteFile(good, []byte(yamlManifest), 0o600); err != nil {
		t.Fatal(err)
	}
	broken := filepath.Join(dir, "broken.json")
	if err := os.WriteFile(broken, []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ManifestEnv, "")

	m, err := LoadManifest(filepath.Join(dir, "missing.toml"), broken, good)
	if err != nil || m.Name != "test" {
		t.Fatalf("bootstrap:loader_test - expected the yaml manifest, got %v %v", m, err)
	}

	t.Setenv(ManifestEnv, good)
	m, _ = LoadManifest()
	if m.Name != "test" {
		t.Errorf("bootstrap:loader_test - env path not used, got %s", m.Name)
	}

	t.Setenv(ManifestEnv, filepath.Join(dir, "nope.yaml"))
	m, _ = LoadManifest()
	if m.Name != "sparkling-bridge" {
		t.Errorf("bootstrap:loader_test - expected default manifest, got %s", m.Name)
	}
}

func TestMergeManifests(t *testing.T) {
	base := GetDefaultManifest()
	override := &Manifest{
		ProtocolVersion: "1.3.0",
		Namespaces:      []string{"shop"},
		Methods:         map[string]MethodDecl{"echo": {RequiredKeys: []string{"msg", "from"}}, "cart.add": {}},
		Aliases:         map[string]string{"add": "cart.add"},
	}
	merged := MergeManifests(base, override)

	if len(merged.Methods["echo"].RequiredKeys) != 2 {
		t.Errorf("bootstrap:loader_test - override should replace echo")
	}
	if _, ok := merged.Methods["cart.add"]; !ok {
		t.Errorf("bootstrap:loader_test - override methods should be added")
	}
	if merged.Aliases["ping"] != "bridge.ping" || merged.Aliases["add"] != "cart.add" {
		t.Errorf("bootstrap:loader_test - aliases = %v", merged.Aliases)
	}
	if merged.ProtocolVersion != "1.3.0" || len(merged.Namespaces) != 1 {
		t.Errorf("bootstrap:loader_test - protocol/namespaces not merged: %+v", merged)
	}
	if len(base.Methods["echo"].RequiredKeys) != 1 {
		t.Errorf("bootstrap:loader_test - merge must not mutate base")
	}
}
