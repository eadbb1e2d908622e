package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/madkoding/esp32-android-auto-wifi/bridge"
	"github.com/madkoding/esp32-android-auto-wifi/pool"
)

// Source is the read-only bridge view telemetry consumes. The bridge
// sequencer satisfies it.
type Source interface {
	Machine() *bridge.Machine
	Stats() *bridge.Stats
	Pool() *pool.Pool
	Rejected() uint64
}

// Exporter implements prometheus.Collector over a Source. Every scrape
// reads the live atomic counters; nothing is cached.
type Exporter struct {
	src Source

	state      *prometheus.Desc
	bytes      *prometheus.Desc
	passes     *prometheus.Desc
	poolSkips  *prometheus.Desc
	poolFree   *prometheus.Desc
	poolSize   *prometheus.Desc
	sessions   *prometheus.Desc
	rejected   *prometheus.Desc
	forwarding *prometheus.Desc
}

// NewExporter creates an exporter over src.
func NewExporter(src Source) *Exporter {
	return &Exporter{
		src: src,
		state: prometheus.NewDesc("aabridge_state",
			"Current bridge state, one series per state, 1 on the active one.",
			[]string{"state"}, nil),
		bytes: prometheus.NewDesc("aabridge_forwarded_bytes_total",
			"Bytes forwarded this session, per direction.",
			[]string{"direction"}, nil),
		passes: prometheus.NewDesc("aabridge_forwarding_passes_total",
			"Forwarding passes that moved bytes this session, per direction.",
			[]string{"direction"}, nil),
		poolSkips: prometheus.NewDesc("aabridge_pool_skips_total",
			"Forwarding passes skipped this session because the pool was exhausted.",
			nil, nil),
		poolFree: prometheus.NewDesc("aabridge_pool_free_buffers",
			"Buffers currently free in the pool.",
			nil, nil),
		poolSize: prometheus.NewDesc("aabridge_pool_buffers",
			"Total buffers in the pool.",
			nil, nil),
		sessions: prometheus.NewDesc("aabridge_sessions_total",
			"Sessions started since the bridge came up.",
			nil, nil),
		rejected: prometheus.NewDesc("aabridge_clients_rejected_total",
			"Client connections rejected while a session was active.",
			nil, nil),
		forwarding: prometheus.NewDesc("aabridge_forwarding",
			"1 while the bridge is in the forwarding state.",
			nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.state
	ch <- e.bytes
	ch <- e.passes
	ch <- e.poolSkips
	ch <- e.poolFree
	ch <- e.poolSize
	ch <- e.sessions
	ch <- e.rejected
	ch <- e.forwarding
}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	current := e.src.Machine().State()
	for s := bridge.StateInit; s <= bridge.StateError; s++ {
		v := 0.0
		if s == current {
			v = 1.0
		}
		ch <- prometheus.MustNewConstMetric(e.state, prometheus.GaugeValue, v, s.String())
	}

	snap := e.src.Stats().Snapshot()
	ch <- prometheus.MustNewConstMetric(e.bytes, prometheus.CounterValue,
		float64(snap.WiFiToUSBBytes), "wifi_to_usb")
	ch <- prometheus.MustNewConstMetric(e.bytes, prometheus.CounterValue,
		float64(snap.USBToWiFiBytes), "usb_to_wifi")
	ch <- prometheus.MustNewConstMetric(e.passes, prometheus.CounterValue,
		float64(snap.WiFiToUSBPasses), "wifi_to_usb")
	ch <- prometheus.MustNewConstMetric(e.passes, prometheus.CounterValue,
		float64(snap.USBToWiFiPasses), "usb_to_wifi")
	ch <- prometheus.MustNewConstMetric(e.poolSkips, prometheus.CounterValue,
		float64(snap.PoolSkips))
	ch <- prometheus.MustNewConstMetric(e.sessions, prometheus.CounterValue,
		float64(snap.Sessions))

	p := e.src.Pool()
	ch <- prometheus.MustNewConstMetric(e.poolFree, prometheus.GaugeValue,
		float64(p.Free()))
	ch <- prometheus.MustNewConstMetric(e.poolSize, prometheus.GaugeValue,
		float64(p.Size()))

	ch <- prometheus.MustNewConstMetric(e.rejected, prometheus.CounterValue,
		float64(e.src.Rejected()))

	fwd := 0.0
	if current == bridge.StateForwarding {
		fwd = 1.0
	}
	ch <- prometheus.MustNewConstMetric(e.forwarding, prometheus.GaugeValue, fwd)
}

// Compile-time interface check
var _ prometheus.Collector = (*Exporter)(nil)
