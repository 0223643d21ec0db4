package middleware

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-podium/internal/domain"
	"github.com/ahrav/go-podium/internal/ports"
)

var _ ports.OperationObserver = (*OTelObserver)(nil)

// TracerName is the instrumentation name of every span the engine creates.
const TracerName = "github.com/ahrav/go-podium"

// OTelObserver implements ports.OperationObserver using OpenTelemetry
// tracing. Every observed operation gets its own span carrying the contest
// and grade; when a MetricsCollector is configured the observer also records
// latency and an outcome counter for the operation.
type OTelObserver struct {
	metrics ports.MetricsCollector
	tracer  trace.Tracer
	now     func() time.Time
}

// NewOTelObserver creates a new OpenTelemetry observer. metrics may be nil.
// Spans go to the globally registered tracer provider.
func NewOTelObserver(metrics ports.MetricsCollector) *OTelObserver {
	return &OTelObserver{
		metrics: metrics,
		tracer:  otel.Tracer(TracerName),
		now:     time.Now,
	}
}

// Observe implements ports.OperationObserver.
func (o *OTelObserver) Observe(
	ctx context.Context,
	operation, contestID, gradeID string,
) (context.Context, func(err error)) {
	ctx, span := o.tracer.Start(ctx, "podium."+operation, trace.WithAttributes(
		attribute.String("podium.contest_id", contestID),
		attribute.String("podium.grade_id", gradeID),
	))
	start := o.now()

	return ctx, func(err error) {
		defer span.End()

		elapsed := o.now().Sub(start)
		status := outcomeStatus(err)
		span.SetAttributes(attribute.String("podium.outcome", status))

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		if o.metrics == nil {
			return
		}
		labels := map[string]string{
			"contest_id": contestID,
			"grade_id":   gradeID,
		}
		o.metrics.RecordLatency(operation, elapsed, labels)
		labels["status"] = status
		o.metrics.RecordCounter(operation, 1, labels)
	}
}

// outcomeStatus maps an operation error to a low-cardinality label value.
func outcomeStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrSessionActive),
		errors.Is(err, domain.ErrNoActiveSession),
		errors.Is(err, domain.ErrSessionNotOpen),
		errors.Is(err, domain.ErrBallotsPending),
		errors.Is(err, domain.ErrDuplicateRanks),
		errors.Is(err, domain.ErrResultAlreadySaved):
		return "rejected"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			return "invalid"
		}
		return "error"
	}
}
