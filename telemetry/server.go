package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/madkoding/esp32-android-auto-wifi/bridge"
	"github.com/madkoding/esp32-android-auto-wifi/pkg"
)

// Server serves /metrics and /status over HTTP.
type Server struct {
	src      Source
	registry *prometheus.Registry
	mux      *http.ServeMux
	httpSrv  *http.Server
}

// status is the /status response body.
type status struct {
	State      string          `json:"state"`
	StatusText string          `json:"status_text,omitempty"`
	Connected  bool            `json:"connected"`
	PoolFree   int             `json:"pool_free"`
	PoolSize   int             `json:"pool_size"`
	Rejected   uint64          `json:"rejected_clients"`
	Stats      bridge.Snapshot `json:"stats"`
}

// NewServer creates a telemetry server over src with its own metric
// registry.
func NewServer(src Source) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewExporter(src))

	s := &Server{
		src:      src,
		registry: registry,
		mux:      http.NewServeMux(),
	}
	s.mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("/status", s.handleStatus)
	return s
}

// Handler returns the server's HTTP handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	m := s.src.Machine()
	state := m.State()
	p := s.src.Pool()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status{
		State:      state.String(),
		StatusText: m.Status(),
		Connected:  state >= bridge.StateClientConnected && state <= bridge.StateForwarding,
		PoolFree:   p.Free(),
		PoolSize:   p.Size(),
		Rejected:   s.src.Rejected(),
		Stats:      s.src.Stats().Snapshot(),
	})
}

// ListenAndServe serves until Shutdown or a listener error.
func (s *Server) ListenAndServe(addr string) error {
	s.httpSrv = &http.Server{Addr: addr, Handler: s.mux}
	pkg.LogInfo(pkg.ComponentTelemetry, "telemetry server up", "addr", addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}
