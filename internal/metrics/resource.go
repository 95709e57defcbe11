package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceSample is one point-in-time host resource reading.
type ResourceSample struct {
	CPUPercent   float64
	MemUsedBytes uint64
}

// ResourceMonitor periodically samples host CPU and memory and forwards the
// reading to a Collector, the way cmd/agent's collectMetrics polls gopsutil
// on an interval rather than per-request.
type ResourceMonitor struct {
	collector *Collector
	interval  time.Duration
	logger    *slog.Logger
}

func NewResourceMonitor(collector *Collector, interval time.Duration, logger *slog.Logger) *ResourceMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ResourceMonitor{collector: collector, interval: interval, logger: logger}
}

// Run samples on a ticker until ctx is cancelled. Intended to run as one
// background goroutine for the process lifetime.
func (m *ResourceMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sampleOnce()
		case <-ctx.Done():
			return
		}
	}
}

func (m *ResourceMonitor) sampleOnce() {
	sample := ResourceSample{}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		sample.CPUPercent = pct[0]
	} else if err != nil {
		m.logger.Warn("resource monitor: cpu sample failed", "error", err)
	}

	if memInfo, err := mem.VirtualMemory(); err == nil && memInfo != nil {
		sample.MemUsedBytes = memInfo.Used
	} else if err != nil {
		m.logger.Warn("resource monitor: memory sample failed", "error", err)
	}

	m.collector.SetHostResources(sample)
}
