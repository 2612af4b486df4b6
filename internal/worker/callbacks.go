package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// CallbackPromoter moves scheduled callback requests into the operator queue.
type CallbackPromoter interface {
	PromoteDue(ctx context.Context, now time.Time) (int, error)
}

// CallbackPoller periodically queues callback requests whose time has come.
type CallbackPoller struct {
	callbacks CallbackPromoter
	interval  time.Duration
	logger    *zerolog.Logger
	now       func() time.Time
}

func NewCallbackPoller(callbacks CallbackPromoter, interval time.Duration, logger *zerolog.Logger) *CallbackPoller {
	if interval <= 0 {
		interval = time.Minute
	}
	return &CallbackPoller{
		callbacks: callbacks,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
	}
}

// Poll runs a single promotion pass.
func (p *CallbackPoller) Poll(ctx context.Context) int {
	n, err := p.callbacks.PromoteDue(ctx, p.now())
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error().Err(err).Msg("Failed to promote callback requests")
		}
		return n
	}
	if n > 0 {
		p.logger.Info().Int("queued", n).Msg("Callback requests queued")
	}
	return n
}

// Start polls until ctx is done.
func (p *CallbackPoller) Start(ctx context.Context) {
	p.logger.Info().Dur("interval", p.interval).Msg("Callback poller started")
	defer p.logger.Info().Msg("Callback poller stopped")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}
