package main

import (
	"context"
	"log/slog"
	"os"

	"fablab-opendata/cmd/fabdata/cmd"
	"fablab-opendata/lib/telemetry"
)

func main() {
	ctx := context.Background()

	telemetry.InitSlog(os.Getenv("FABDATA_VERBOSE") != "")

	// telemetry is optional: without a telemetry.json5 nearby, spans and
	// metrics simply go nowhere
	tel, err := telemetry.SetupFromEnv(ctx, "fabdata")
	if err != nil && !os.IsNotExist(err) {
		slog.Warn("telemetry setup failed", "err", err)
	}
	if err == nil {
		defer tel.Shutdown(ctx)
		telemetry.InstrumentPerfStats(ctx)
	}

	cmd.ExecuteContext(ctx)
}
