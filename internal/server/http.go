package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/morezero/sparkling-bridge/pkg/db"
	"github.com/morezero/sparkling-bridge/pkg/registry"
)

// HealthCheck reports the health of one dependency.
type HealthCheck func(ctx context.Context) error

// methodLister is the part of the registry the admin pages read.
type methodLister interface {
	Describe(scope registry.Scope) []registry.MethodInfo
}

// callLog is the part of the call log repository the admin pages read.
type callLog interface {
	RecentCalls(ctx context.Context, params db.RecentCallsParams) ([]db.CallRecord, error)
	CountByCode(ctx context.Context, since time.Time) ([]db.CodeCount, error)
}

// HealthOutput is the /health body.
type HealthOutput struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// MethodsOutput is the /methods body.
type MethodsOutput struct {
	Service         string                `json:"service"`
	ProtocolVersion string                `json:"protocolVersion"`
	Scope           string                `json:"scope"`
	Methods         []registry.MethodInfo `json:"methods"`
}

func (s *Server) health(ctx context.Context) *HealthOutput {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.HealthCheckTimeout)
	defer cancel()

	out := &HealthOutput{Status: "healthy", Checks: map[string]string{}, Timestamp: time.Now().UTC().Format(time.RFC3339)}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			out.Status = "unhealthy"
			out.Checks[name] = err.Error()
			continue
		}
		out.Checks[name] = "ok"
	}
	return out
}

func (s *Server) methods(r *http.Request) *MethodsOutput {
	scope := registry.Global()
	if c := r.URL.Query().Get("container"); c != "" {
		scope = registry.Local(c)
	}
	infos := s.reg.Describe(scope)
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return &MethodsOutput{Service: s.cfg.ServiceName, ProtocolVersion: s.protocol, Scope: scope.String(), Methods: infos}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(fmt.Sprintf("%s - json encode: %v", logPrefix, err))
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := s.health(r.Context())
		status := http.StatusOK
		if h.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, h)
	}
}

func (s *Server) handleReady() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func (s *Server) handleMethods() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, s.methods(r))
	}
}

// handleCalls lists recent call log rows: ?method=&container=&failures=1&limit=.
func (s *Server) handleCalls() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.calls == nil {
			http.Error(w, "call log disabled", http.StatusNotFound)
			return
		}
		q := r.URL.Query()
		params := db.RecentCallsParams{
			Method:       q.Get("method"),
			ContainerID:  q.Get("container"),
			OnlyFailures: q.Get("failures") == "1" || q.Get("failures") == "true",
		}
		if l := q.Get("limit"); l != "" {
			n, err := strconv.Atoi(l)
			if err != nil || n < 1 || n > 1000 {
				http.Error(w, "limit must be between 1 and 1000", http.StatusBadRequest)
				return
			}
			params.Limit = n
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()
		records, err := s.calls.RecentCalls(ctx, params)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []db.CallRecord{}
		}
		writeJSON(w, http.StatusOK, records)
	}
}

// handleCallStats counts calls by result code over ?window= (default 1h).
func (s *Server) handleCallStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.calls == nil {
			http.Error(w, "call log disabled", http.StatusNotFound)
			return
		}
		window := time.Hour
		if v := r.URL.Query().Get("window"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				http.Error(w, "invalid window", http.StatusBadRequest)
				return
			}
			window = d
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()
		counts, err := s.calls.CountByCode(ctx, time.Now().Add(-window))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if counts == nil {
			counts = []db.CodeCount{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"window": window.String(), "counts": counts})
	}
}

const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Methods.Service}}</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    h1, h2 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 1000px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; }
    section { margin-bottom: 2rem; }
  </style>
</head>
<body>
  <h1>{{.Methods.Service}}</h1>
  <p class="meta">Protocol {{.Methods.ProtocolVersion}}</p>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    <ul>
      {{range $name, $check := .Health.Checks}}<li>{{$name}}: {{$check}}</li>{{end}}
    </ul>
  </section>

  <section>
    <h2>Methods</h2>
    {{if not .Methods.Methods}}
    <p>No methods registered.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Method</th><th>Required keys</th><th>Shape</th><th>Thread</th><th>Description</th></tr>
      </thead>
      <tbody>
        {{range .Methods.Methods}}
        <tr>
          <td>{{.Name}}{{if .Lazy}} (lazy){{end}}</td>
          <td>{{range $i, $k := .RequiredKeys}}{{if $i}}, {{end}}{{$k}}{{end}}</td>
          <td>{{.Shape}}</td>
          <td>{{.Thread}}</td>
          <td>{{.Description}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>
</body>
</html>
`

type homeData struct {
	Health  *HealthOutput
	Methods *MethodsOutput
}

// handleHome renders the method table.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		data := homeData{Health: s.health(r.Context()), Methods: s.methods(r)}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
