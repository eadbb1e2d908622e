package telemetry

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/madkoding/esp32-android-auto-wifi/bridge"
	"github.com/madkoding/esp32-android-auto-wifi/pool"
)

// fakeSource is a Source with fixed bridge internals.
type fakeSource struct {
	machine  *bridge.Machine
	stats    *bridge.Stats
	pool     *pool.Pool
	rejected uint64
}

func (f *fakeSource) Machine() *bridge.Machine { return f.machine }
func (f *fakeSource) Stats() *bridge.Stats     { return f.stats }
func (f *fakeSource) Pool() *pool.Pool         { return f.pool }
func (f *fakeSource) Rejected() uint64         { return f.rejected }

func newFakeSource(t *testing.T) *fakeSource {
	t.Helper()
	m := bridge.NewMachine(0)
	for _, ev := range []bridge.Event{
		bridge.EventAPStartRequested,
		bridge.EventAPStarted,
		bridge.EventClientAccepted,
		bridge.EventHelloExchanged,
		bridge.EventAccessoryAttached,
	} {
		if err := m.Apply(ev, ""); err != nil {
			t.Fatalf("Apply(%s): %v", ev, err)
		}
	}
	st := &bridge.Stats{}
	st.Reset(7)
	return &fakeSource{
		machine:  m,
		stats:    st,
		pool:     pool.New(4, 128),
		rejected: 3,
	}
}

func TestExporterGather(t *testing.T) {
	src := newFakeSource(t)
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(NewExporter(src)); err != nil {
		t.Fatalf("Register(): %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather(): %v", err)
	}

	got := map[string]bool{}
	for _, mf := range families {
		got[mf.GetName()] = true
	}
	for _, want := range []string{
		"aabridge_state",
		"aabridge_forwarded_bytes_total",
		"aabridge_forwarding_passes_total",
		"aabridge_pool_skips_total",
		"aabridge_pool_free_buffers",
		"aabridge_pool_buffers",
		"aabridge_sessions_total",
		"aabridge_clients_rejected_total",
		"aabridge_forwarding",
	} {
		if !got[want] {
			t.Errorf("metric family %s missing", want)
		}
	}

	for _, mf := range families {
		switch mf.GetName() {
		case "aabridge_forwarding":
			if v := mf.GetMetric()[0].GetGauge().GetValue(); v != 1 {
				t.Errorf("aabridge_forwarding = %v, want 1", v)
			}
		case "aabridge_clients_rejected_total":
			if v := mf.GetMetric()[0].GetCounter().GetValue(); v != 3 {
				t.Errorf("aabridge_clients_rejected_total = %v, want 3", v)
			}
		case "aabridge_pool_free_buffers":
			if v := mf.GetMetric()[0].GetGauge().GetValue(); v != 4 {
				t.Errorf("aabridge_pool_free_buffers = %v, want 4", v)
			}
		case "aabridge_state":
			active := 0
			for _, m := range mf.GetMetric() {
				if m.GetGauge().GetValue() == 1 {
					active++
					for _, l := range m.GetLabel() {
						if l.GetName() == "state" && l.GetValue() != "forwarding" {
							t.Errorf("active state label = %s, want forwarding", l.GetValue())
						}
					}
				}
			}
			if active != 1 {
				t.Errorf("%d active state series, want 1", active)
			}
		}
	}
}

func TestStatusEndpoint(t *testing.T) {
	src := newFakeSource(t)
	srv := NewServer(src)

	req := httptest.NewRequest("GET", "/status", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status code = %d", rec.Code)
	}
	var body struct {
		State     string `json:"state"`
		Connected bool   `json:"connected"`
		PoolFree  int    `json:"pool_free"`
		Stats     struct {
			SessionID uint32 `json:"session_id"`
		} `json:"stats"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.State != "forwarding" {
		t.Errorf("state = %q, want forwarding", body.State)
	}
	if !body.Connected {
		t.Error("connected = false in forwarding state")
	}
	if body.PoolFree != 4 {
		t.Errorf("pool_free = %d, want 4", body.PoolFree)
	}
	if body.Stats.SessionID != 7 {
		t.Errorf("session_id = %d, want 7", body.Stats.SessionID)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := NewServer(newFakeSource(t))

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status code = %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Error("empty metrics body")
	}
}
