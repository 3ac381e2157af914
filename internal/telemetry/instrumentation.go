package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Span attributes must stay low cardinality. Resource names are bounded by
// configuration and are allowed; asset URLs, file paths and error messages
// are not. Those belong in logs, which carry trace_id for correlation.

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// InstrumentOperation wraps fn in a span tagged with the component and outcome.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc, attrs ...attribute.KeyValue) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()

	ctx, span := t.tracer.Start(ctx, operationName)
	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)
	span.SetAttributes(attrs...)

	err := fn(ctx)

	status := "success"
	if err != nil {
		status = "error"

		span.SetAttributes(attribute.Bool("error", true))
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.String("status", status),
		attribute.Float64("duration_seconds", time.Since(start).Seconds()),
	)

	return err
}

// InstrumentHarvest instruments the full pagination of one resource.
func (t *Telemetry) InstrumentHarvest(ctx context.Context, resource string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	err := t.InstrumentOperation(ctx, "harvest_resource", "harvester", fn, attribute.String("resource", resource))

	status := "success"
	if err != nil {
		status = "error"
	}

	t.RecordResource(ctx, status)

	return err
}

// InstrumentDownload instruments the processing of one asset URL. fn reports
// the outcome label and the number of bytes written.
func (t *Telemetry) InstrumentDownload(ctx context.Context, fn func(ctx context.Context) (string, int64, error)) error {
	if t == nil {
		_, _, err := fn(ctx)

		return err
	}

	start := time.Now()

	t.addActiveDownloads(ctx, 1)
	defer t.addActiveDownloads(ctx, -1)

	var (
		outcome string
		written int64
	)

	err := t.InstrumentOperation(ctx, "download_asset", "downloader", func(ctx context.Context) error {
		var err error

		outcome, written, err = fn(ctx)

		return err
	})

	if err != nil && outcome == "" {
		outcome = "error"
	}

	t.RecordDownload(ctx, outcome, time.Since(start), written)

	return err
}
