package infrastructure

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// RuntimeStats is a point-in-time view of the process
type RuntimeStats struct {
	Goroutines    int64     `json:"goroutines"`
	HeapBytes     int64     `json:"heap_bytes"`
	SystemBytes   int64     `json:"system_bytes"`
	GCCount       uint32    `json:"gc_count"`
	LastGCPauseMS int64     `json:"last_gc_pause_ms"`
	CPUCount      int       `json:"cpu_count"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	Timestamp     time.Time `json:"timestamp"`
}

// RuntimeCollector periodically records Go runtime gauges
type RuntimeCollector struct {
	goroutines metric.Int64Gauge
	heap       metric.Int64Gauge
	system     metric.Int64Gauge
	gcPause    metric.Float64Histogram
	uptime     metric.Float64Gauge

	startTime time.Time
	interval  time.Duration
	stopOnce  sync.Once
	stopCh    chan struct{}
}

// NewRuntimeCollector creates the runtime gauges on meter
func NewRuntimeCollector(meter metric.Meter, interval time.Duration) (*RuntimeCollector, error) {
	goroutines, err := meter.Int64Gauge("runtime_goroutines",
		metric.WithDescription("Number of active goroutines"))
	if err != nil {
		return nil, fmt.Errorf("failed to create goroutine gauge: %w", err)
	}
	heap, err := meter.Int64Gauge("runtime_heap_bytes",
		metric.WithDescription("Heap bytes in use"), metric.WithUnit("By"))
	if err != nil {
		return nil, fmt.Errorf("failed to create heap gauge: %w", err)
	}
	system, err := meter.Int64Gauge("runtime_system_bytes",
		metric.WithDescription("Memory obtained from the OS"), metric.WithUnit("By"))
	if err != nil {
		return nil, fmt.Errorf("failed to create system memory gauge: %w", err)
	}
	gcPause, err := meter.Float64Histogram("runtime_gc_pause_seconds",
		metric.WithDescription("Garbage collection pause duration"), metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create gc pause histogram: %w", err)
	}
	uptime, err := meter.Float64Gauge("process_uptime_seconds",
		metric.WithDescription("Process uptime in seconds"), metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create uptime gauge: %w", err)
	}

	return &RuntimeCollector{
		goroutines: goroutines,
		heap:       heap,
		system:     system,
		gcPause:    gcPause,
		uptime:     uptime,
		startTime:  time.Now(),
		interval:   interval,
		stopCh:     make(chan struct{}),
	}, nil
}

// Collect reads runtime statistics and records them
func (c *RuntimeCollector) Collect(ctx context.Context) RuntimeStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	stats := RuntimeStats{
		Goroutines:    int64(runtime.NumGoroutine()),
		HeapBytes:     int64(mem.HeapAlloc),
		SystemBytes:   int64(mem.Sys),
		GCCount:       mem.NumGC,
		LastGCPauseMS: time.Duration(mem.PauseNs[(mem.NumGC+255)%256]).Milliseconds(),
		CPUCount:      runtime.NumCPU(),
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Timestamp:     time.Now().UTC(),
	}

	c.goroutines.Record(ctx, stats.Goroutines)
	c.heap.Record(ctx, stats.HeapBytes)
	c.system.Record(ctx, stats.SystemBytes)
	c.uptime.Record(ctx, stats.UptimeSeconds)
	if mem.NumGC > 0 {
		c.gcPause.Record(ctx, time.Duration(mem.PauseNs[(mem.NumGC+255)%256]).Seconds())
	}
	return stats
}

// Start collects on every tick until ctx is done or Stop is called
func (c *RuntimeCollector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect(ctx)
	for {
		select {
		case <-ticker.C:
			c.Collect(ctx)
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the collection loop
func (c *RuntimeCollector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}
