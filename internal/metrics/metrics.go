// Package metrics tracks the daemon's own process counters. It uses a
// private VictoriaMetrics/metrics.Set rather than the package-level default
// set so that tests constructing a daemon instance never leak counters into
// each other.
package metrics

import (
	"io"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
)

// Metrics bundles the counters and gauges the status surface exposes on
// /metrics.
type Metrics struct {
	set *metrics.Set

	FramesDecoded  *metrics.Counter
	FramesEncoded  *metrics.Counter
	FrameDropped   *metrics.Counter
	OpcodesTotal   *metrics.Counter
	ConnectAttempt *metrics.Counter
	ConnectFailure *metrics.Counter
	LogBytes       *metrics.Counter

	robotLive *metrics.Gauge
	liveFlag  atomic.Bool
}

func New() *Metrics {
	set := metrics.NewSet()
	m := &Metrics{
		set:            set,
		FramesDecoded:  set.NewCounter("daybreak_frames_decoded_total"),
		FramesEncoded:  set.NewCounter("daybreak_frames_encoded_total"),
		FrameDropped:   set.NewCounter("daybreak_frames_dropped_total"),
		OpcodesTotal:   set.NewCounter("daybreak_router_opcodes_total"),
		ConnectAttempt: set.NewCounter("daybreak_connect_attempts_total"),
		ConnectFailure: set.NewCounter("daybreak_connect_failures_total"),
		LogBytes:       set.NewCounter("daybreak_log_bytes_appended_total"),
	}
	m.robotLive = set.NewGauge("daybreak_robot_session_live", func() float64 {
		if m.liveFlag.Load() {
			return 1
		}
		return 0
	})
	return m
}

// SetRobotLive records whether a Robot Session is currently connected.
func (m *Metrics) SetRobotLive(live bool) {
	m.liveFlag.Store(live)
}

// WritePrometheus renders the daemon's private metric set in Prometheus
// exposition format, for the /metrics route.
func (m *Metrics) WritePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}
