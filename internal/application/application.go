package application

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/fault"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/session"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const SpanPrefix = "UC."

type UseCase[C any, R any] interface {
	Execute(ctx context.Context, cmd C) (R, error)
}

type IDGenerator interface {
	NewID() string
}

// RequirePrivileged rejects non-operator sessions.
func RequirePrivileged(sess session.Session) error {
	if !sess.Privileged {
		return fault.Forbidden("operator privileges required")
	}
	return nil
}

// Instruments carries the RED instruments and base logger shared by a service's use cases.
type Instruments struct {
	tel          observability.Observability
	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
}

func NewInstruments(tel observability.Observability, service string) Instruments {
	if tel == nil {
		tel = observability.Nop()
	}
	m := tel.Metrics()
	return Instruments{
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", service)),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
	}
}

func (in Instruments) Tel() observability.Observability { return in.tel }

func (in Instruments) Logger() observability.Logger { return in.log }

// Call is one instrumented use case run. Set Outcome/Status on failure paths and add log fields as they
// become known; Done closes the span, records RED metrics and writes the use_case_done line.
type Call struct {
	in      Instruments
	useCase string
	span    trace.Span
	start   time.Time
	Log     observability.Logger
	Outcome string
	Status  string
	fields  []observability.Field
}

func (in Instruments) Begin(ctx context.Context, useCase, spanName string, attrs ...attribute.KeyValue) (context.Context, *Call) {
	attrs = append(attrs, attribute.String("use_case", useCase))
	ctx, span := in.tel.Tracer().Start(ctx, SpanPrefix+spanName, attrs...)
	logger := logctx.FromOr(ctx, in.log).With(observability.F("use_case", useCase))
	return ctx, &Call{
		in:      in,
		useCase: useCase,
		span:    span,
		start:   time.Now(),
		Log:     logger,
		Outcome: "success",
		Status:  "OK",
	}
}

func (c *Call) Span() trace.Span { return c.span }

// Fail marks the run as failed with a status code. A classified error's code wins when status is empty.
func (c *Call) Fail(status string, err error) error {
	if status == "" {
		status = fault.CodeOf(err)
	}
	if status == "" {
		status = "INTERNAL"
	}
	c.Outcome, c.Status = "error", status
	return err
}

func (c *Call) With(fields ...observability.Field) {
	c.fields = append(c.fields, fields...)
}

func (c *Call) Done(ctx context.Context, err error) {
	lat := time.Since(c.start).Seconds()

	if c.span != nil {
		if err != nil {
			c.span.RecordError(err)
			c.span.SetStatus(codes.Error, c.Status)
		} else {
			c.span.SetStatus(codes.Ok, c.Status)
		}
		c.span.End()
	}

	c.in.reqCounter.Add(1,
		observability.L("use_case", c.useCase),
		observability.L("outcome", c.Outcome),
	)
	c.in.durHistogram.Observe(lat,
		observability.L("use_case", c.useCase),
	)

	fields := []observability.Field{
		observability.F("outcome", c.Outcome),
		observability.F("status", c.Status),
		observability.F("latency_seconds", lat),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	fields = append(fields, c.fields...)
	if err != nil {
		fields = append(fields, observability.Err(err))
	}
	c.Log.Info("use_case_done", fields...)
}
