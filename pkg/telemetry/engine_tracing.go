package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/evstack/ev-derive/pkg/driver"
	"github.com/evstack/ev-derive/types"
)

// tracedEngine wraps a driver.Engine and records a span per executed payload.
type tracedEngine struct {
	inner  driver.Engine
	tracer trace.Tracer
}

// WithTracingEngine decorates an Engine with OpenTelemetry spans.
func WithTracingEngine(inner driver.Engine) driver.Engine {
	return &tracedEngine{
		inner:  inner,
		tracer: otel.Tracer("ev-derive/engine"),
	}
}

func (t *tracedEngine) Execute(ctx context.Context, parent types.BlockInfo, attrs *types.PayloadAttributes) (types.BlockInfo, error) {
	opts := []trace.SpanStartOption{trace.WithAttributes(
		attribute.Int64("parent.number", int64(parent.Number)),
		attribute.String("parent.hash", parent.Hash.Hex()),
	)}
	if attrs != nil {
		opts = append(opts, trace.WithAttributes(
			attribute.Int64("timestamp", int64(attrs.Timestamp)),
			attribute.Int("tx.count", len(attrs.Transactions)),
			attribute.Int64("epoch.number", int64(attrs.Epoch.Number)),
		))
	}
	ctx, span := t.tracer.Start(ctx, "Engine.Execute", opts...)
	defer span.End()

	block, err := t.inner.Execute(ctx, parent, attrs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return block, err
	}
	span.SetAttributes(
		attribute.Int64("block.number", int64(block.Number)),
		attribute.String("block.hash", block.Hash.Hex()),
	)
	return block, nil
}
