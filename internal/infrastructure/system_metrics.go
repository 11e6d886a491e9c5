package infrastructure

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// RegisterRuntimeMetrics publishes process level gauges on the meter. The
// SDK invokes the single callback once per collection cycle, so every
// scrape reports one consistent snapshot of the runtime stats.
func RegisterRuntimeMetrics(meter metric.Meter, startTime time.Time) error {
	goroutines, err := meter.Int64ObservableGauge(
		"process_goroutines",
		metric.WithDescription("Number of live goroutines"),
	)
	if err != nil {
		return fmt.Errorf("create goroutines gauge: %w", err)
	}

	heapAlloc, err := meter.Int64ObservableGauge(
		"process_heap_alloc_bytes",
		metric.WithDescription("Bytes of allocated heap objects"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return fmt.Errorf("create heap alloc gauge: %w", err)
	}

	heapObjects, err := meter.Int64ObservableGauge(
		"process_heap_objects",
		metric.WithDescription("Number of allocated heap objects"),
	)
	if err != nil {
		return fmt.Errorf("create heap objects gauge: %w", err)
	}

	gcCycles, err := meter.Int64ObservableCounter(
		"process_gc_cycles_total",
		metric.WithDescription("Completed garbage collection cycles"),
	)
	if err != nil {
		return fmt.Errorf("create gc cycles counter: %w", err)
	}

	gcPauseTotal, err := meter.Float64ObservableCounter(
		"process_gc_pause_seconds_total",
		metric.WithDescription("Cumulative stop-the-world pause time"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create gc pause counter: %w", err)
	}

	uptime, err := meter.Float64ObservableGauge(
		"process_uptime_seconds",
		metric.WithDescription("Seconds since the process started"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create uptime gauge: %w", err)
	}

	_, err = meter.RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)

			o.ObserveInt64(goroutines, int64(runtime.NumGoroutine()))
			o.ObserveInt64(heapAlloc, int64(mem.HeapAlloc))
			o.ObserveInt64(heapObjects, int64(mem.HeapObjects))
			o.ObserveInt64(gcCycles, int64(mem.NumGC))
			o.ObserveFloat64(gcPauseTotal, time.Duration(mem.PauseTotalNs).Seconds())
			o.ObserveFloat64(uptime, time.Since(startTime).Seconds())
			return nil
		},
		goroutines, heapAlloc, heapObjects, gcCycles, gcPauseTotal, uptime,
	)
	if err != nil {
		return fmt.Errorf("register runtime metrics callback: %w", err)
	}

	return nil
}
