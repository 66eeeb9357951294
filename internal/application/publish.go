package application

import (
	"context"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
)

const (
	publishPeer    = "outbox"
	publishTimeout = 300 * time.Millisecond
)

// Publisher wraps an outbox publisher with a short timeout and external-call metrics.
// Publishing is best effort: failures are reported, never propagated.
type Publisher struct {
	pub          domoutbox.Publisher
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewPublisher(pub domoutbox.Publisher, tel observability.Observability) *Publisher {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Publisher{
		pub:          pub,
		extCounter:   tel.Metrics().Counter(observability.MExternalRequests),
		extHistogram: tel.Metrics().Histogram(observability.MExternalRequestDuration),
	}
}

func (p *Publisher) Publish(ctx context.Context, logger observability.Logger, e domoutbox.Event) error {
	if p == nil || p.pub == nil || e == nil {
		return nil
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	start := time.Now()
	outcome := "success"
	err := p.pub.Publish(pubCtx, e)
	if err != nil {
		outcome = "error"
	} else if pubCtx.Err() != nil {
		outcome = "canceled"
		err = pubCtx.Err()
	}

	p.extCounter.Add(1,
		observability.L("peer", publishPeer),
		observability.L("endpoint", e.EventName()),
		observability.L("outcome", outcome),
	)
	p.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", publishPeer),
		observability.L("endpoint", e.EventName()),
	)

	if err != nil && logger != nil {
		logger.Warn("event_publish_failed",
			observability.F("event", e.EventName()),
			observability.Err(err),
		)
	}
	return err
}
