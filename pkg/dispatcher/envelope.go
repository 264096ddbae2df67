package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/morezero/sparkling-bridge/pkg/call"
	"github.com/morezero/sparkling-bridge/pkg/dynamic"
	"github.com/morezero/sparkling-bridge/pkg/status"
)

// BridgeRequest is the inbound call as the view engine hands it over.
type BridgeRequest struct {
	MethodName      string          `json:"methodName"`
	Namespace       string          `json:"namespace,omitempty"`
	Data            json.RawMessage `json:"data,omitempty"`
	ContainerID     string          `json:"containerId,omitempty"`
	ProtocolVersion string          `json:"protocolVersion,omitempty"`
	Platform        string          `json:"platform,omitempty"`
	Thread          string          `json:"thread,omitempty"`
	CallbackID      string          `json:"callbackId,omitempty"`
	CancelPolicy    string          `json:"cancelPolicy,omitempty"`
}

// BridgeResponse is the outbound result. It marshals to {code, msg, data, containerId?, protocolVersion}
// with the data laid out by the method's result shape.
type BridgeResponse struct {
	Result          status.Result
	CallbackID      string
	ContainerID     string
	ProtocolVersion string
}

// ToMap renders the response for the view engine.
func (r *BridgeResponse) ToMap() map[string]any {
	return r.annotate(r.Result.ToMap())
}

func (r *BridgeResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.annotate(r.Result.JSONMap()))
}

func (r *BridgeResponse) annotate(out map[string]any) map[string]any {
	if r.Result.Shape == status.ShapeRawPassthrough {
		return out
	}
	if r.ContainerID != "" {
		out["containerId"] = r.ContainerID
	}
	out["protocolVersion"] = r.ProtocolVersion
	return out
}

// ParseRequest decodes a JSON request.
func ParseRequest(data []byte) (*BridgeRequest, error) {
	var req BridgeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%s - malformed request: %w", logPrefix, err)
	}
	return &req, nil
}

// Envelope validates req and builds the call envelope for it.
func (req *BridgeRequest) Envelope() (*call.Envelope, error) {
	if req.MethodName == "" {
		return nil, status.NewError(status.CodeInvalidParam, "methodName is required")
	}
	params := map[string]dynamic.Value{}
	if len(req.Data) > 0 && string(req.Data) != "null" {
		var v dynamic.Value
		if err := json.Unmarshal(req.Data, &v); err != nil {
			return nil, status.Errorf(status.CodeInvalidParam, "malformed data: %v", err)
		}
		m, ok := v.AsMap()
		if !ok {
			return nil, status.Errorf(status.CodeInvalidParam, "data must be an object, got %s", v.Kind())
		}
		params = m
	}
	thread, err := call.ParseThread(req.Thread)
	if err != nil {
		return nil, status.Errorf(status.CodeInvalidParam, "invalid thread %q", req.Thread)
	}
	policy, err := call.ParseCancelPolicy(req.CancelPolicy)
	if err != nil {
		return nil, status.Errorf(status.CodeInvalidParam, "invalid cancelPolicy %q", req.CancelPolicy)
	}
	return call.New(call.Params{
		MethodName:      req.MethodName,
		Namespace:       req.Namespace,
		Params:          params,
		Platform:        call.ParsePlatform(req.Platform),
		Thread:          thread,
		CallbackID:      req.CallbackID,
		ContainerID:     req.ContainerID,
		ProtocolVersion: req.ProtocolVersion,
		CancelPolicy:    policy,
	}), nil
}

// HandleRequest negotiates the protocol, builds the envelope and dispatches it. respond is called
// exactly once.
func (d *Dispatcher) HandleRequest(ctx context.Context, req *BridgeRequest, respond func(*BridgeResponse)) {
	send := func(resp *BridgeResponse) {
		if respond != nil {
			guard("respond", func() { respond(resp) })
		}
	}
	version, err := d.protocol.Negotiate(req.ProtocolVersion)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - %s: %v", logPrefix, req.MethodName, err))
		send(&BridgeResponse{
			Result:          status.Failure(status.CodeInvalidParam, fmt.Sprintf("unsupported protocolVersion %q", req.ProtocolVersion)),
			CallbackID:      req.CallbackID,
			ContainerID:     req.ContainerID,
			ProtocolVersion: version,
		})
		return
	}
	env, err := req.Envelope()
	if err != nil {
		send(&BridgeResponse{Result: status.FromError(err), CallbackID: req.CallbackID, ContainerID: req.ContainerID, ProtocolVersion: version})
		return
	}
	d.Dispatch(ctx, env, func(r status.Result) {
		send(&BridgeResponse{Result: r, CallbackID: env.CallbackID, ContainerID: env.ContainerID, ProtocolVersion: version})
	})
}
