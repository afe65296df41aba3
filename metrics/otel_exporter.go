package metrics

import (
	"context"
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// OTelExporter provides OpenTelemetry metrics export following OTel standards
type OTelExporter struct {
	meterProvider *sdkmetric.MeterProvider
	gatherer      promclient.Gatherer
	queues        QueueStats
	deliveries    DeliveryStats

	// OTel meters and instruments
	meter              metric.Meter
	queueLengthGauge   metric.Int64ObservableGauge
	activeWorkersGauge metric.Int64ObservableGauge
	deliveryCountGauge metric.Int64ObservableGauge
}

// NewOTelExporter creates a new OpenTelemetry metrics exporter with Prometheus format.
// A nil registry uses the Prometheus default registry.
func NewOTelExporter(queues QueueStats, deliveries DeliveryStats, registry *promclient.Registry) (*OTelExporter, error) {
	var (
		opts     []prometheus.Option
		gatherer promclient.Gatherer = promclient.DefaultGatherer
	)
	if registry != nil {
		opts = append(opts, prometheus.WithRegisterer(registry))
		gatherer = registry
	}

	// Create Prometheus exporter
	exporter, err := prometheus.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	// Create meter provider
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	if registry == nil {
		otel.SetMeterProvider(meterProvider)
	}

	// Create meter with service info
	meter := meterProvider.Meter(
		"flowrelay",
		metric.WithInstrumentationVersion("1.0.0"),
	)

	oe := &OTelExporter{
		meterProvider: meterProvider,
		gatherer:      gatherer,
		queues:        queues,
		deliveries:    deliveries,
		meter:         meter,
	}

	// Register metrics instruments
	if err := oe.registerInstruments(); err != nil {
		return nil, fmt.Errorf("registering instruments: %w", err)
	}

	return oe, nil
}

// registerInstruments creates and registers all OpenTelemetry metric instruments
func (oe *OTelExporter) registerInstruments() error {
	var err error

	// Queue length gauge (per priority)
	oe.queueLengthGauge, err = oe.meter.Int64ObservableGauge(
		"flowrelay.queue.length",
		metric.WithDescription("Number of waiting tasks per priority queue"),
		metric.WithUnit("{tasks}"),
		metric.WithInt64Callback(oe.observeQueueLengths),
	)
	if err != nil {
		return fmt.Errorf("creating queue length gauge: %w", err)
	}

	oe.activeWorkersGauge, err = oe.meter.Int64ObservableGauge(
		"flowrelay.workers.active",
		metric.WithDescription("Number of task workers with a live heartbeat"),
		metric.WithUnit("{workers}"),
		metric.WithInt64Callback(oe.observeActiveWorkers),
	)
	if err != nil {
		return fmt.Errorf("creating active workers gauge: %w", err)
	}

	// Delivery count gauge (per outcome)
	oe.deliveryCountGauge, err = oe.meter.Int64ObservableGauge(
		"flowrelay.webhook.deliveries",
		metric.WithDescription("Number of finished webhook deliveries by outcome"),
		metric.WithUnit("{deliveries}"),
		metric.WithInt64Callback(oe.observeDeliveryCounts),
	)
	if err != nil {
		return fmt.Errorf("creating delivery count gauge: %w", err)
	}

	return nil
}

// observeQueueLengths is a callback that reports queue lengths
func (oe *OTelExporter) observeQueueLengths(ctx context.Context, observer metric.Int64Observer) error {
	queueLengths, err := oe.queues.QueueLengths(ctx)
	if err != nil {
		return err
	}

	for queue, length := range queueLengths {
		observer.Observe(length, metric.WithAttributes(
			attribute.String("queue.type", queue),
		))
	}

	return nil
}

// observeActiveWorkers is a callback that reports active worker counts
func (oe *OTelExporter) observeActiveWorkers(ctx context.Context, observer metric.Int64Observer) error {
	workers, err := oe.queues.ActiveWorkers(ctx)
	if err != nil {
		return err
	}

	observer.Observe(workers)
	return nil
}

// observeDeliveryCounts is a callback that reports delivery counts by outcome
func (oe *OTelExporter) observeDeliveryCounts(ctx context.Context, observer metric.Int64Observer) error {
	counts, err := oe.deliveries.DeliveryCounts(ctx)
	if err != nil {
		return err
	}

	for outcome, count := range counts {
		observer.Observe(count, metric.WithAttributes(
			attribute.String("delivery.outcome", outcome),
		))
	}

	return nil
}

// ServeHTTP serves Prometheus-formatted metrics
func (oe *OTelExporter) ServeHTTP() http.Handler {
	return promhttp.HandlerFor(oe.gatherer, promhttp.HandlerOpts{})
}

// Shutdown gracefully shuts down the meter provider
func (oe *OTelExporter) Shutdown(ctx context.Context) error {
	if oe.meterProvider != nil {
		return oe.meterProvider.Shutdown(ctx)
	}
	return nil
}
