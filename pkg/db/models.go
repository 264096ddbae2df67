package db

import "time"

// CallRecord is a row in the bridge_call_log table.
type CallRecord struct {
	ID                 int64     `json:"id"`
	CallbackID         string    `json:"callback_id"`
	Method             string    `json:"method"`
	Namespace          string    `json:"namespace"`
	ContainerID        string    `json:"container_id,omitempty"`
	Platform           string    `json:"platform"`
	Thread             string    `json:"thread"`
	Code               int       `json:"code"`
	Message            string    `json:"message,omitempty"`
	BusinessHandlerHit bool      `json:"business_handler_hit"`
	DurationMs         int64     `json:"duration_ms"`
	Created            time.Time `json:"created"`
}

// CodeCount is one bucket of CountByCode.
type CodeCount struct {
	Code  int   `json:"code"`
	Count int64 `json:"count"`
}

// MethodRecord is a row in the bridge_methods table.
type MethodRecord struct {
	Name         string    `json:"name"`
	Scope        string    `json:"scope"`
	Shape        string    `json:"shape"`
	Thread       string    `json:"thread"`
	RequiredKeys []string  `json:"required_keys"`
	Lazy         bool      `json:"lazy"`
	Description  string    `json:"description,omitempty"`
	Modified     time.Time `json:"modified"`
}

// callLogColumns is the column order shared by inserts and scans.
var callLogColumns = []string{
	"callback_id", "method", "namespace", "container_id", "platform", "thread",
	"code", "message", "business_handler_hit", "duration_ms", "created",
}
