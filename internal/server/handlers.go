package server

import (
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/morezero/agent-orchestrator/pkg/orchestrator"
	"github.com/morezero/agent-orchestrator/pkg/remote"
)

// Health statuses reported by /health.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// HealthReport is the /health body.
type HealthReport struct {
	Status       string              `json:"status"`
	Comms        bool                `json:"comms"`
	Orchestrator orchestrator.Health `json:"orchestrator"`
	Timestamp    string              `json:"timestamp"`
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome())
	mux.HandleFunc("/agent/", s.handleAgentDetail())
	mux.HandleFunc("/agents", s.handleAgents())
	mux.HandleFunc("/health", s.handleHealth())
	mux.HandleFunc("/ready", s.handleReady())
	return mux
}

// healthReport is unhealthy when COMMS is disconnected or discovery ended
// with no usable agent. An uninitialized registry is healthy.
func (s *Server) healthReport() *HealthReport {
	h := s.orch.Health()
	commsOK := s.nc == nil || s.nc.IsConnected()
	status := StatusHealthy
	if !commsOK || h.State == remote.StateDegraded.String() {
		status = StatusUnhealthy
	}
	return &HealthReport{
		Status:       status,
		Comms:        commsOK,
		Orchestrator: h,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := s.healthReport()
		w.Header().Set("Content-Type", "application/json")
		if h.Status != StatusHealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(h)
	}
}

func (s *Server) handleReady() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		h := s.orch.Health()
		if !h.Ready {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "not ready", "state": h.State})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ready", "state": h.State})
	}
}

func (s *Server) handleAgents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.orch.ListRemoteAgents())
	}
}

// homePageTemplate is the HTML for the orchestrator home page (white bg, black/blue text).
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Agent Orchestrator</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2, h3 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .stat { font-weight: bold; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 1rem; }
    section { margin-bottom: 2rem; }
    .error { color: #cc0000; }
  </style>
</head>
<body>
  <h1>Agent Orchestrator</h1>
  <p class="meta">Discovery state and the remote agents tasks can be routed to.</p>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    <p>COMMS: {{if .Health.Comms}}<span class="stat">OK</span>{{else}}<span class="error">Disconnected</span>{{end}}</p>
    <p>Discovery: <span class="stat">{{.Health.Orchestrator.State}}</span></p>
    <p>Timestamp: {{.Health.Timestamp}}</p>
  </section>

  <section>
    <h2>Remote agents</h2>
    {{if not .Agents}}
    <p>No remote agents registered.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Agent</th><th>Description</th><th>Circuit</th></tr>
      </thead>
      <tbody>
        {{range .Agents}}
        <tr>
          <td><a href="/agent/{{pathEscape .Name}}">{{.Name}}</a></td>
          <td>{{.Description}}</td>
          <td>{{index $.Health.Orchestrator.Breakers .Name}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>

  {{if .Health.Orchestrator.Failed}}
  <section>
    <h2>Unreachable addresses</h2>
    <table>
      <thead><tr><th>Address</th><th>Error</th></tr></thead>
      <tbody>
        {{range .Health.Orchestrator.Failed}}
        <tr><td>{{.Address}}</td><td class="error">{{.Error}}</td></tr>
        {{end}}
      </tbody>
    </table>
  </section>
  {{end}}
</body>
</html>
`

// agentDetailPageTemplate is the HTML for a single agent card.
const agentDetailPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Name}} – Agent Orchestrator</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2, h3 { color: #0066cc; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; vertical-align: top; }
    th { background: #f0f4f8; color: #0066cc; width: 160px; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 0.5rem; }
    section { margin-bottom: 2rem; }
    .back { margin-bottom: 1rem; }
  </style>
</head>
<body>
  <p class="back"><a href="/">← Back to agents</a></p>
  <h1>{{.Name}}</h1>
  {{if .Description}}<p class="meta">{{.Description}}</p>{{end}}

  <section>
    <h2>Card</h2>
    <table>
      <tr><th>Address</th><td>{{.Address}}</td></tr>
      <tr><th>Endpoint</th><td>{{.URL}}</td></tr>
      <tr><th>Version</th><td>{{.Version}}</td></tr>
      <tr><th>Streaming</th><td>{{.Capabilities.Streaming}}</td></tr>
      <tr><th>Input modes</th><td>{{range .DefaultInputModes}}{{.}} {{end}}</td></tr>
      <tr><th>Output modes</th><td>{{range .DefaultOutputModes}}{{.}} {{end}}</td></tr>
    </table>
  </section>

  <section>
    <h2>Skills</h2>
    {{if not .Skills}}
    <p>No skills advertised.</p>
    {{else}}
    {{range .Skills}}
    <h3>{{.Name}}</h3>
    {{if .Description}}<p>{{.Description}}</p>{{end}}
    {{if .Tags}}<p><strong>Tags:</strong> {{range .Tags}}{{.}} {{end}}</p>{{end}}
    {{if .Examples}}
    <details>
      <summary>Examples</summary>
      <ul>{{range .Examples}}<li>{{.}}</li>{{end}}</ul>
    </details>
    {{end}}
    {{end}}
    {{end}}
  </section>
</body>
</html>
`

var templateFuncs = template.FuncMap{"pathEscape": url.PathEscape}

// homeData is the data passed to the home page template.
type homeData struct {
	Health *HealthReport
	Agents []remote.AgentInfo
}

// handleHome returns an HTTP handler for the orchestrator home page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Funcs(templateFuncs).Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		data := homeData{Health: s.healthReport(), Agents: s.orch.ListRemoteAgents()}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

// handleAgentDetail serves /agent/<name> as HTML and /agent/<name>/card.json as the raw card.
func (s *Server) handleAgentDetail() http.HandlerFunc {
	tmpl := template.Must(template.New("agentDetail").Parse(agentDetailPageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.EscapedPath(), "/agent/")
		if rest == "" {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		escaped, suffix, _ := strings.Cut(rest, "/")
		name, err := url.PathUnescape(escaped)
		if err != nil {
			http.NotFound(w, r)
			return
		}

		d := s.orch.Descriptor(name)
		if d == nil {
			http.NotFound(w, r)
			return
		}

		switch suffix {
		case "card.json":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(d)
		case "":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			if err := tmpl.Execute(w, d); err != nil {
				slog.Error(fmt.Sprintf("%s - agent detail template execute: %v", logPrefix, err))
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		default:
			http.NotFound(w, r)
		}
	}
}

var _ orchestratorForServer = (*orchestrator.Orchestrator)(nil)
