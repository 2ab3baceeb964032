// Package healthz serves the plugin's liveness endpoint and the
// Prometheus /metrics endpoint over plain HTTP, separate from the CSI
// Unix domain socket.
package healthz

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cuemby/baseoverlay-csi/pkg/metrics"
)

// Server serves /healthz and /metrics.
type Server struct {
	mux     *http.ServeMux
	version string
}

// NewServer creates a health check HTTP server reporting version in its
// /healthz response.
func NewServer(version string) *Server {
	mux := http.NewServeMux()
	s := &Server{mux: mux, version: version}

	mux.HandleFunc("/healthz", s.healthzHandler)
	mux.Handle("/metrics", metrics.Handler())

	return s
}

// Start starts the health check HTTP server and blocks until it exits.
func (s *Server) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// Response is the /healthz JSON body.
type Response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// healthzHandler is a liveness check: it reports healthy whenever the
// process can serve HTTP at all. The plugin has no dependency it checks
// proactively beyond what NodePublishVolume itself will surface on the
// CSI socket.
func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := Response{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   s.version,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}
