// Package observability aggregates live counters from the transport
// layer into a snapshot the monitoring endpoint can serve.
package observability

import (
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"
)

// Stats is one point-in-time snapshot of the router.
type Stats struct {
	ConnectionsOpen  int64 `json:"connections_open"`
	ConnectionsTotal int64 `json:"connections_total"`
	FramesIn         int64 `json:"frames_in"`
	ErrorsEmitted    int64 `json:"errors_emitted"`

	// --- SYSTEM METRICS ---
	AllocMemMb uint64 `json:"alloc_mem_mb"`
	NumGC      uint32 `json:"num_gc"`
	Goroutines int    `json:"goroutines"`
	UptimeSec  int64  `json:"uptime_sec"`
}

// Monitor collects counters from the hot path with atomics only, the
// snapshot is assembled on demand.
type Monitor struct {
	log   *slog.Logger
	start time.Time

	connectionsOpen  atomic.Int64
	connectionsTotal atomic.Int64
	framesIn         atomic.Int64
	errorsEmitted    atomic.Int64
}

func NewMonitor(log *slog.Logger) *Monitor {
	return &Monitor{log: log, start: time.Now()}
}

func (m *Monitor) ConnectionOpened() {
	m.connectionsOpen.Add(1)
	m.connectionsTotal.Add(1)
}

func (m *Monitor) ConnectionClosed() {
	m.connectionsOpen.Add(-1)
}

func (m *Monitor) FrameReceived() {
	m.framesIn.Add(1)
}

func (m *Monitor) ErrorEmitted() {
	m.errorsEmitted.Add(1)
}

// Snapshot reads the counters and the Go runtime stats.
func (m *Monitor) Snapshot() Stats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return Stats{
		ConnectionsOpen:  m.connectionsOpen.Load(),
		ConnectionsTotal: m.connectionsTotal.Load(),
		FramesIn:         m.framesIn.Load(),
		ErrorsEmitted:    m.errorsEmitted.Load(),
		AllocMemMb:       mem.Alloc / 1024 / 1024,
		NumGC:            mem.NumGC,
		Goroutines:       runtime.NumGoroutine(),
		UptimeSec:        int64(time.Since(m.start).Seconds()),
	}
}
