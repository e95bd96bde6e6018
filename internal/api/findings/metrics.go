package findings

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const namespace = "findings_api"

// Metrics defines the counters the API service records.
type Metrics interface {
	IncScanSubmissions(ctx context.Context)
	IncScanErrors(ctx context.Context, reason string)
	IncTriageActions(ctx context.Context, target string)
}

type apiMetrics struct {
	scanSubmissions metric.Int64Counter
	scanErrors      metric.Int64Counter
	triageActions   metric.Int64Counter
}

// NewMetrics builds the API counters from the provided meter provider.
func NewMetrics(mp metric.MeterProvider) (Metrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(apiMetrics)
	var err error

	if m.scanSubmissions, err = meter.Int64Counter(
		"scan_submissions_total",
		metric.WithDescription("Total number of scan submissions"),
	); err != nil {
		return nil, err
	}

	if m.scanErrors, err = meter.Int64Counter(
		"scan_errors_total",
		metric.WithDescription("Total number of scan submissions that failed"),
	); err != nil {
		return nil, err
	}

	if m.triageActions, err = meter.Int64Counter(
		"triage_actions_total",
		metric.WithDescription("Total number of manual triage actions"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *apiMetrics) IncScanSubmissions(ctx context.Context) {
	m.scanSubmissions.Add(ctx, 1)
}

func (m *apiMetrics) IncScanErrors(ctx context.Context, reason string) {
	m.scanErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *apiMetrics) IncTriageActions(ctx context.Context, target string) {
	m.triageActions.Add(ctx, 1, metric.WithAttributes(attribute.String("target", target)))
}

// noopMetrics keeps the service usable without a meter provider, such as in
// tests.
type noopMetrics struct{}

func (noopMetrics) IncScanSubmissions(context.Context)       {}
func (noopMetrics) IncScanErrors(context.Context, string)    {}
func (noopMetrics) IncTriageActions(context.Context, string) {}
