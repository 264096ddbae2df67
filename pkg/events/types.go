// Package events defines the bridge's call and registration events and the publishers that emit them.
package events

// Method registration event types.
const (
	EventMethodRegistered   = "method.registered"
	EventMethodUnregistered = "method.unregistered"
)

// CallCompletedEvent is emitted once per delivered call.
type CallCompletedEvent struct {
	CallbackID         string `json:"callbackId"`
	Method             string `json:"method"`
	Namespace          string `json:"namespace"`
	ContainerID        string `json:"containerId,omitempty"`
	Platform           string `json:"platform"`
	Thread             string `json:"thread"`
	Code               int    `json:"code"`
	CodeName           string `json:"codeName"`
	Message            string `json:"message,omitempty"`
	BusinessHandlerHit bool   `json:"businessHandlerHit"`
	DurationMs         int64  `json:"durationMs"`
	Timestamp          string `json:"timestamp"`
}

// MethodChangedEvent is emitted when a method is registered or unregistered.
type MethodChangedEvent struct {
	Type        string `json:"type"`
	Method      string `json:"method"`
	Scope       string `json:"scope"`
	ContainerID string `json:"containerId,omitempty"`
}
