package metrics

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// SystemStats holds resource readings of the daemon process.
type SystemStats struct {
	Uptime         time.Duration `json:"uptime"`
	Goroutines     int           `json:"goroutines"`
	HeapAllocBytes uint64        `json:"heap_alloc_bytes"`
	SysMemoryBytes uint64        `json:"sys_memory_bytes"`
	GCPauseTotalNs uint64        `json:"gc_pause_total_ns"`
}

// SystemReader abstracts process metrics retrieval.
type SystemReader interface {
	ReadStats(ctx context.Context) (*SystemStats, error)
}

// RuntimeReader reads SystemStats from the Go runtime.
type RuntimeReader struct {
	started time.Time
}

// NewRuntimeReader returns a RuntimeReader measuring uptime from now.
func NewRuntimeReader() *RuntimeReader {
	return &RuntimeReader{started: time.Now()}
}

// ReadStats implements SystemReader.
func (r *RuntimeReader) ReadStats(_ context.Context) (*SystemStats, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return &SystemStats{
		Uptime:         time.Since(r.started),
		Goroutines:     runtime.NumGoroutine(),
		HeapAllocBytes: ms.HeapAlloc,
		SysMemoryBytes: ms.Sys,
		GCPauseTotalNs: ms.PauseTotalNs,
	}, nil
}

// SystemCollector reads process resource metrics.
type SystemCollector struct {
	reader SystemReader
}

// NewSystemCollector creates a new SystemCollector.
func NewSystemCollector(reader SystemReader) *SystemCollector {
	return &SystemCollector{reader: reader}
}

// Collect reads the current process stats.
func (c *SystemCollector) Collect(ctx context.Context) (*SystemStats, error) {
	stats, err := c.reader.ReadStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("metrics: system: %w", err)
	}
	return stats, nil
}
