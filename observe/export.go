package observe

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// NewManualProvider returns an SDK meter provider whose readings are
// pulled on demand, for one-shot CLI runs with no scrape endpoint.
func NewManualProvider() (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)), reader
}

// Dump logs every collected data point at info level, one entry per point.
func Dump(ctx context.Context, reader *sdkmetric.ManualReader, log logrus.FieldLogger) error {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return fmt.Errorf("collect metrics: %w", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					fields(log, dp.Attributes).WithField("value", dp.Value).Info(m.Name)
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					fields(log, dp.Attributes).WithFields(logrus.Fields{
						"count": dp.Count,
						"sum":   fmt.Sprintf("%.3f", dp.Sum),
					}).Info(m.Name)
				}
			}
		}
	}
	return nil
}

func fields(log logrus.FieldLogger, set attribute.Set) logrus.FieldLogger {
	f := logrus.Fields{}
	for _, kv := range set.ToSlice() {
		f[string(kv.Key)] = kv.Value.Emit()
	}
	return log.WithFields(f)
}
