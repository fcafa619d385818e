package tagmanager

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// The meter all the TagManager counters are created under.
const MetricsMeterName = "tagger/tagmanager"

// type Metrics struct {{{

// Counters for the TagManager operations.
//
// A nil *Metrics is valid, recording to it does nothing.
type Metrics struct {
	operationsTotal metric.Int64Counter
	entitiesWritten metric.Int64Counter
} // }}}

// func NewMetrics {{{

// Returns nil, nil when provider is nil.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(MetricsMeterName)

	operationsTotal, err := meter.Int64Counter(
		"tagger_operations_total",
		metric.WithDescription("Total number of tag operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	entitiesWritten, err := meter.Int64Counter(
		"tagger_entities_written_total",
		metric.WithDescription("Total number of entities whose stored tags were written or cleared"),
		metric.WithUnit("{entity}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		operationsTotal: operationsTotal,
		entitiesWritten: entitiesWritten,
	}, nil
} // }}}

// func Metrics.RecordOperation {{{

func (m *Metrics) RecordOperation(ctx context.Context, op string, success bool) {
	if m == nil {
		return
	}

	m.operationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.Bool("success", success),
	))
} // }}}

// func Metrics.RecordWrites {{{

// Counts n entities written by op, nothing is recorded for 0.
func (m *Metrics) RecordWrites(ctx context.Context, op string, n int) {
	if m == nil || n == 0 {
		return
	}

	m.entitiesWritten.Add(ctx, int64(n), metric.WithAttributes(attribute.String("op", op)))
} // }}}
