package semver

import "testing"

func TestParseMethodRef(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantNS    string
		wantName  string
		wantRange string
		wantErr   bool
	}{
		{name: "bare method", input: "echo", wantName: "echo"},
		{name: "dotted method", input: "router.open", wantName: "router.open"},
		{name: "namespaced", input: "router/router.open", wantNS: "router", wantName: "router.open"},
		{name: "major only", input: "router/router.open@1", wantNS: "router", wantName: "router.open", wantRange: "1"},
		{name: "caret range", input: " storage/storage.get@^1.2.0 ", wantNS: "storage", wantName: "storage.get", wantRange: "^1.2.0"},
		{name: "empty", input: "  ", wantErr: true},
		{name: "empty range", input: "echo@", wantErr: true},
		{name: "bad namespace", input: "9ns/echo", wantErr: true},
		{name: "bad method", input: "ns/", wantErr: true},
		{name: "space in method", input: "ec ho", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMethodRef(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("semver:parser_test - expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("semver:parser_test - unexpected error: %v", err)
			}
			if got.Namespace != tt.wantNS || got.Method != tt.wantName || got.Range != tt.wantRange {
				t.Errorf("semver:parser_test - got %+v", got)
			}
		})
	}
}

func TestParsedMethodRef_String(t *testing.T) {
	ref, err := ParseMethodRef("router/router.open@^1.0.0")
	if err != nil {
		t.Fatalf("semver:parser_test - unexpected error: %v", err)
	}
	if ref.String() != "router/router.open@^1.0.0" {
		t.Errorf("semver:parser_test - String() = %q", ref.String())
	}
}

func TestIsMajorOnly(t *testing.T) {
	for in, want := range map[string]bool{"1": true, "12": true, "1.2": false, "^1": false, "": false} {
		if got := IsMajorOnly(in); got != want {
			t.Errorf("semver:parser_test - IsMajorOnly(%q) = %v, want %v", in, got, want)
		}
	}
}
