// Package telemetry reads device metrics from the time-series store and
// assembles per-device health snapshots.
package telemetry

import (
	"context"
	"errors"
)

// ErrNoData indicates a query succeeded but matched no points in the window.
var ErrNoData = errors.New("no data in window")

// Reader is the narrow contract against the telemetry store. Implementations
// must honor context deadlines; a timeout is a failure of that read only.
type Reader interface {
	// CPUAvg returns the mean CPU usage percentage over the window.
	CPUAvg(ctx context.Context, deviceID, window string) (float64, error)

	// MemFreeMin returns the minimum free memory percentage over the window.
	MemFreeMin(ctx context.Context, deviceID, window string) (float64, error)

	// CriticalErrors returns the summed critical error count over the window.
	CriticalErrors(ctx context.Context, deviceID, window string) (int64, error)
}
