package events

import (
	"context"
	"log/slog"
	"time"
)

const defaultBatchSize = 100

// Poller drains the outbox into the publisher on a fixed tick. An event is
// marked published only after the publisher accepts it, so a crash between the
// two yields a duplicate, never a loss.
type Poller struct {
	tick      time.Duration
	batchSize int
	outbox    Outbox
	publisher Publisher
}

func NewPoller(outbox Outbox, publisher Publisher, tick time.Duration) *Poller {
	return &Poller{
		tick:      tick,
		batchSize: defaultBatchSize,
		outbox:    outbox,
		publisher: publisher,
	}
}

func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.drain(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) drain(ctx context.Context) {
	batch, err := p.outbox.Unpublished(ctx, p.batchSize)
	if err != nil {
		slog.ErrorContext(ctx, "outbox fetch failed", "error", err)
		return
	}

	for _, event := range batch {
		if err := p.publisher.Publish(ctx, event); err != nil {
			slog.ErrorContext(ctx, "event publish failed", "event_id", event.ID, "error", err)
			continue
		}
		if err := p.outbox.MarkPublished(ctx, event.ID); err != nil {
			slog.ErrorContext(ctx, "mark published failed", "event_id", event.ID, "error", err)
		}
	}
}
