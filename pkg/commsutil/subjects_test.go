package commsutil

import "testing"

func TestBuildCallSubject(t *testing.T) {
	tests := []struct {
		name      string
		namespace string
		method    string
		want      string
	}{
		{"basic", "default", "echo", "bridge.call.completed.default.echo"},
		{"dotted method", "router", "router.open", "bridge.call.completed.router.router_open"},
		{"wildcards escaped", "a*", "b>", "bridge.call.completed.a_.b_"},
		{"empty namespace", "", "echo", "bridge.call.completed._.echo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildCallSubject(SubjectCallCompleted, tt.namespace, tt.method)
			if got != tt.want {
				t.Errorf("commsutil:subjects_test - BuildCallSubject(%q, %q) = %q, want %q", tt.namespace, tt.method, got, tt.want)
			}
		})
	}
}
