package derive

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	corederive "github.com/evstack/ev-derive/core/derive"
	"github.com/evstack/ev-derive/types"
)

var _ corederive.PurgeableIterator[*types.PayloadAttributes] = (*tracedStage)(nil)

// tracedStage decorates the final stage with OpenTelemetry spans.
// Next and Purge take no context, so every span is the root of its own trace.
type tracedStage struct {
	inner  corederive.PurgeableIterator[*types.PayloadAttributes]
	tracer trace.Tracer
}

func withTracing(inner corederive.PurgeableIterator[*types.PayloadAttributes]) *tracedStage {
	return &tracedStage{
		inner:  inner,
		tracer: otel.Tracer("ev-derive/pipeline"),
	}
}

func (t *tracedStage) Next() corederive.Result[*types.PayloadAttributes] {
	_, span := t.tracer.Start(context.Background(), "Attributes.Next")
	defer span.End()

	res := t.inner.Next()
	attrs, ok := res.Get()
	span.SetAttributes(attribute.Bool("ready", ok))
	if ok {
		span.SetAttributes(
			attribute.Int64("timestamp", int64(attrs.Timestamp)),
			attribute.Int64("epoch.number", int64(attrs.Epoch.Number)),
			attribute.Int64("seq.number", int64(attrs.SeqNumber)),
			attribute.Int64("l1.inclusion_block", int64(attrs.L1InclusionBlock)),
			attribute.Int("tx.count", len(attrs.Transactions)),
		)
	}
	return res
}

func (t *tracedStage) Purge() {
	_, span := t.tracer.Start(context.Background(), "Attributes.Purge")
	defer span.End()
	t.inner.Purge()
}
