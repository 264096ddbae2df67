package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectCallCompleted = "bridge.call.completed"
	SubjectMethodChanged = "bridge.method.changed"
)

// SubjectToken makes s safe to use as a single subject token.
func SubjectToken(s string) string {
	if s == "" {
		return "_"
	}
	r := strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")
	return r.Replace(s)
}

// BuildCallSubject builds the per-method call-completed subject under base.
func BuildCallSubject(base, namespace, method string) string {
	return fmt.Sprintf("%s.%s.%s", base, SubjectToken(namespace), SubjectToken(method))
}
