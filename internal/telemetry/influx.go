package telemetry

import (
	"context"
	"fmt"
	"regexp"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// windowPattern restricts window strings to simple Flux durations ("2h",
// "30m"). Window values are interpolated into Flux source, so anything else
// is rejected before a query is built.
var windowPattern = regexp.MustCompile(`^[0-9]+[smhdw]$`)

// deviceIDPattern bounds what may appear inside a Flux string literal.
var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Compile-time interface guard.
var _ Reader = (*InfluxReader)(nil)

// InfluxReader implements Reader against an InfluxDB 2.x bucket.
type InfluxReader struct {
	queryAPI api.QueryAPI
	bucket   string
}

// NewInfluxReader creates a Reader over the given InfluxDB connection.
func NewInfluxReader(client influxdb2.Client, org, bucket string) *InfluxReader {
	return &InfluxReader{
		queryAPI: client.QueryAPI(org),
		bucket:   bucket,
	}
}

func (r *InfluxReader) CPUAvg(ctx context.Context, deviceID, window string) (float64, error) {
	flux, err := r.buildQuery(deviceID, window,
		`r._measurement == "cpu" and r._field == "usage_percent"`, "mean")
	if err != nil {
		return 0, err
	}
	return r.queryScalar(ctx, flux)
}

func (r *InfluxReader) MemFreeMin(ctx context.Context, deviceID, window string) (float64, error) {
	flux, err := r.buildQuery(deviceID, window,
		`r._measurement == "mem" and r._field == "free_percent"`, "min")
	if err != nil {
		return 0, err
	}
	return r.queryScalar(ctx, flux)
}

func (r *InfluxReader) CriticalErrors(ctx context.Context, deviceID, window string) (int64, error) {
	flux, err := r.buildQuery(deviceID, window,
		`r._measurement == "errors" and r.severity == "critical" and r._field == "count"`, "sum")
	if err != nil {
		return 0, err
	}
	v, err := r.queryScalar(ctx, flux)
	if err != nil {
		// A sum over an empty window means zero errors, not missing data.
		if err == ErrNoData {
			return 0, nil
		}
		return 0, err
	}
	return int64(v), nil
}

func (r *InfluxReader) buildQuery(deviceID, window, filter, aggregation string) (string, error) {
	if !windowPattern.MatchString(window) {
		return "", fmt.Errorf("invalid window %q", window)
	}
	if !deviceIDPattern.MatchString(deviceID) {
		return "", fmt.Errorf("invalid device id %q", deviceID)
	}
	return fmt.Sprintf(`
		from(bucket: %q)
			|> range(start: -%s)
			|> filter(fn: (r) => %s and r.router_id == %q)
			|> %s()`,
		r.bucket, window, filter, deviceID, aggregation), nil
}

func (r *InfluxReader) queryScalar(ctx context.Context, flux string) (float64, error) {
	result, err := r.queryAPI.Query(ctx, flux)
	if err != nil {
		return 0, fmt.Errorf("influx query: %w", err)
	}
	defer result.Close()

	if !result.Next() {
		if err := result.Err(); err != nil {
			return 0, fmt.Errorf("influx result: %w", err)
		}
		return 0, ErrNoData
	}

	switch v := result.Record().Value().(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("influx result: unexpected value type %T", v)
	}
}
