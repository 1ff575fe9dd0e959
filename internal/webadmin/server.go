// Package webadmin exposes an optional read-only HTTP dashboard over the
// server's keyspace and replication status, adapted from the teacher's
// internal/web/server.go (DashboardServer.Start's mux.HandleFunc routing,
// template-rendered index page, JSON status API) repurposed from a
// migration-progress dashboard to a key-value server's admin view.
package webadmin

import (
	"encoding/json"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"redikv/internal/logger"
	"redikv/internal/replication"
	"redikv/internal/store"
)

// Status mirrors what INFO reports, shaped for JSON/HTML rendering.
type Status struct {
	Role            string   `json:"role"`
	ConnectedSlaves int      `json:"connectedSlaves"`
	ReplOffset      int64    `json:"replOffset"`
	Keys            int      `json:"keys"`
	Uptime          string   `json:"uptime"`
	SampleKeys      []string `json:"sampleKeys"`
}

// Server is the admin HTTP listener.
type Server struct {
	addr     string
	keyspace *store.Keyspace
	registry *replication.Registry
	role     replication.Role
	started  time.Time

	tmpl *template.Template

	mu sync.RWMutex
	ln net.Listener
}

// New creates an admin server; addr may be empty, in which case the
// caller should skip calling Start (no dashboard is configured).
func New(addr string, ks *store.Keyspace, reg *replication.Registry, role replication.Role) (*Server, error) {
	tmpl, err := template.New("index").Parse(indexTemplate)
	if err != nil {
		return nil, err
	}
	return &Server{addr: addr, keyspace: ks, registry: reg, role: role, started: time.Now(), tmpl: tmpl}, nil
}

// Start binds the listener and serves until the process exits; intended
// to be run in its own goroutine by main.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/snapshot.json.zst", s.handleCompressedSnapshot)

	logger.Info("webadmin: listening on %s", ln.Addr().String())
	return http.Serve(ln, mux)
}

// Addr returns the bound address once Start has run.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

func (s *Server) currentStatus() Status {
	keys := s.keyspace.Keys("*")
	sample := keys
	if len(sample) > 20 {
		sample = sample[:20]
	}
	st := Status{
		Role:       s.role.String(),
		Keys:       len(keys),
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		SampleKeys: sample,
	}
	if s.registry != nil {
		st.ConnectedSlaves = len(s.registry.Replicas())
		st.ReplOffset = s.registry.Offset()
	}
	return st
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if err := s.tmpl.Execute(w, s.currentStatus()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.currentStatus())
}

// handleCompressedSnapshot serves the current status as zstd-compressed
// JSON, giving the dashboard's polling endpoint a cheap example of
// exercising the same compressor the RDB loader uses for .zst dumps.
func (s *Server) handleCompressedSnapshot(w http.ResponseWriter, r *http.Request) {
	body, err := json.Marshal(s.currentStatus())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	enc, err := zstd.NewWriter(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/zstd")
	defer enc.Close()
	if _, err := enc.Write(body); err != nil {
		logger.Warn("webadmin: snapshot write failed: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

const indexTemplate = `<!DOCTYPE html>
<html>
<head><title>redikv</title></head>
<body>
<h1>redikv</h1>
<p>role: {{.Role}}</p>
<p>keys: {{.Keys}}</p>
<p>connected replicas: {{.ConnectedSlaves}}</p>
<p>repl offset: {{.ReplOffset}}</p>
<p>uptime: {{.Uptime}}</p>
<h2>sample keys</h2>
<ul>
{{range .SampleKeys}}<li>{{.}}</li>
{{end}}
</ul>
</body>
</html>
`
