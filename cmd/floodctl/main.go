// Command floodctl derives flood hazard rasters from depth and velocity
// rasters and reports on the results.
//
// Usage:
//
//	floodctl catalog scan
//	floodctl derive-vd [--force]
//	floodctl derive-hazard [--force]
//	floodctl zonal properties.csv [--json]
//	floodctl purge plan --group Depth --dir data/depth
//	floodctl purge confirm
//	floodctl history
//
// Settings come from the environment; see internal/config.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
