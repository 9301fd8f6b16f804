// Package observability provides OpenTelemetry metrics exposed in Prometheus format.
package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// MeterName is the instrumentation scope of the OCR services.
const MeterName = "github.com/cuongbtq/invoice-ocr"

// InitMetrics initializes the OpenTelemetry metrics provider with a Prometheus exporter.
// It returns the HTTP handler for the /metrics endpoint and a shutdown function.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := metric.NewMeterProvider(
		metric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// Metrics holds the OCR job counters.
type Metrics struct {
	extractions otelmetric.Int64Counter
	training    otelmetric.Int64Counter
}

// NewMetrics creates the counters on meter. A nil meter uses the global provider.
func NewMetrics(meter otelmetric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(MeterName)
	}

	extractions, err := meter.Int64Counter("ocr_extractions",
		otelmetric.WithDescription("Extraction requests by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction counter: %w", err)
	}

	training, err := meter.Int64Counter("ocr_training_jobs",
		otelmetric.WithDescription("Training job outcomes"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create training counter: %w", err)
	}

	return &Metrics{extractions: extractions, training: training}, nil
}

// RecordExtraction counts one extraction request.
func (m *Metrics) RecordExtraction(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.extractions.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordTraining counts one training job outcome.
func (m *Metrics) RecordTraining(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.training.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("outcome", outcome)))
}
