package telemetry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nwops/upgraded/pkg/models"
)

// HealthAggregator fetches the three evaluation metrics for a device and
// assembles a health snapshot. The reads are independent and issued
// concurrently under a shared timeout. A failed read does not abort the
// snapshot; the affected metric is recorded as absent, which pushes rule
// evaluation toward denial.
type HealthAggregator struct {
	reader  Reader
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewHealthAggregator creates a HealthAggregator. A nil clock uses time.Now.
func NewHealthAggregator(reader Reader, timeout time.Duration, logger *zap.Logger, now func() time.Time) *HealthAggregator {
	if now == nil {
		now = time.Now
	}
	return &HealthAggregator{reader: reader, timeout: timeout, logger: logger, now: now}
}

// Snapshot collects CPU average, minimum free memory and critical error
// count over the window and classifies the result.
func (a *HealthAggregator) Snapshot(ctx context.Context, deviceID, window string) *models.HealthSnapshot {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var (
		wg   sync.WaitGroup
		cpu  *float64
		mem  *float64
		errs int64
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		v, err := a.reader.CPUAvg(ctx, deviceID, window)
		if err != nil {
			a.logger.Warn("cpu read failed, treating as absent",
				zap.String("device_id", deviceID), zap.Error(err))
			return
		}
		cpu = &v
	}()
	go func() {
		defer wg.Done()
		v, err := a.reader.MemFreeMin(ctx, deviceID, window)
		if err != nil {
			a.logger.Warn("mem read failed, treating as absent",
				zap.String("device_id", deviceID), zap.Error(err))
			return
		}
		mem = &v
	}()
	go func() {
		defer wg.Done()
		v, err := a.reader.CriticalErrors(ctx, deviceID, window)
		if err != nil {
			// Absent error counts degrade to zero; CPU/memory absence
			// already forces the conservative path.
			a.logger.Warn("error count read failed, treating as zero",
				zap.String("device_id", deviceID), zap.Error(err))
			return
		}
		errs = v
	}()
	wg.Wait()

	snap := &models.HealthSnapshot{
		DeviceID:       deviceID,
		Window:         window,
		CPUAvg:         cpu,
		MemFreeMin:     mem,
		CriticalErrors: errs,
		CollectedAt:    a.now().UTC(),
	}
	snap.Status = Classify(snap)
	return snap
}

// Classify derives the coarse health status from a snapshot. The status is
// advisory and distinct from the upgrade verdict.
func Classify(snap *models.HealthSnapshot) models.HealthStatus {
	if snap.CPUAvg == nil || snap.MemFreeMin == nil {
		return models.HealthUnknown
	}
	cpu, mem := *snap.CPUAvg, *snap.MemFreeMin
	switch {
	case snap.CriticalErrors > 0:
		return models.HealthCritical
	case cpu > 80 || mem < 20:
		return models.HealthWarning
	case cpu > 70 || mem < 30:
		return models.HealthCaution
	default:
		return models.HealthHealthy
	}
}
