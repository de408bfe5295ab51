package telemetry

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"go.opentelemetry.io/otel"
)

const perfSampleInterval = time.Second * 30

// InstrumentPerfStats samples process resource usage on an interval until the
// context is canceled. Useful when a large export run starts eating memory.
func InstrumentPerfStats(ctx context.Context) {
	meter := otel.Meter("fabdata.perf")
	cpuGauge, _ := meter.Float64Gauge("cpu_usage_percent")
	heapGauge, _ := meter.Int64Gauge("heap_allocated_mb")
	objectsGauge, _ := meter.Int64Gauge("live_objects")
	goroutineGauge, _ := meter.Int64Gauge("goroutines")

	go func() {
		ticker := time.NewTicker(perfSampleInterval)
		defer ticker.Stop()

		var stats runtime.MemStats
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			runtime.ReadMemStats(&stats)
			heapGauge.Record(ctx, int64(stats.HeapAlloc/1_000_000))
			objectsGauge.Record(ctx, int64(stats.Mallocs-stats.Frees))
			goroutineGauge.Record(ctx, int64(runtime.NumGoroutine()))

			usage, err := cpu.PercentWithContext(ctx, 0, false)
			if err != nil {
				slog.Debug("failed to read cpu usage", "err", err)
				continue
			}
			if len(usage) > 0 {
				cpuGauge.Record(ctx, usage[0])
			}
		}
	}()
}
