package internal

import (
	"context"
	"time"

	"storefront/entity"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultPollCutoff   = 2 * time.Minute
)

type PollOutcome string

const (
	// PollSettled means the order left the pending status
	PollSettled   PollOutcome = "settled"
	PollExpired   PollOutcome = "expired"
	PollCancelled PollOutcome = "cancelled"
)

type OrderFetcher func(ctx context.Context, orderId string) (*entity.Order, error)

// PollUpdate is delivered after every fetch, failed or not.
type PollUpdate struct {
	Order *entity.Order
	Err   error
}

// OrderPoller follows an order until its payment status converges.
// It fetches immediately, then on a fixed interval while the order is pending,
// and gives up after an absolute cutoff whatever the status.
type OrderPoller struct {
	fetch    OrderFetcher
	interval time.Duration
	cutoff   time.Duration
}

func NewOrderPoller(fetch OrderFetcher) *OrderPoller {
	return &OrderPoller{
		fetch:    fetch,
		interval: defaultPollInterval,
		cutoff:   defaultPollCutoff,
	}
}

func (p *OrderPoller) SetSchedule(interval, cutoff time.Duration) {
	if interval > 0 {
		p.interval = interval
	}
	if cutoff > 0 {
		p.cutoff = cutoff
	}
}

// Watch polls until the order settles, the cutoff passes or ctx is cancelled.
// It returns the last order fetched successfully, which may be nil.
// Both timers are stopped before Watch returns.
func (p *OrderPoller) Watch(ctx context.Context, orderId string, onUpdate func(PollUpdate)) (*entity.Order, PollOutcome) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.cutoff)
	defer cancel()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	cutoff := time.NewTimer(p.cutoff)
	defer cutoff.Stop()

	var last *entity.Order
	poll := func() bool {
		order, err := p.fetch(fetchCtx, orderId)
		if err == nil && order != nil {
			last = order
		}
		if onUpdate != nil && ctx.Err() == nil {
			onUpdate(PollUpdate{Order: order, Err: err})
		}
		return err == nil && order != nil && !isPolledStatus(order.Status)
	}

	if poll() {
		return last, PollSettled
	}
	for {
		select {
		case <-ctx.Done():
			return last, PollCancelled
		case <-cutoff.C:
			return last, PollExpired
		case <-ticker.C:
			if ctx.Err() != nil {
				return last, PollCancelled
			}
			if poll() {
				return last, PollSettled
			}
		}
	}
}

// isPolledStatus reports whether the status may still change because of a payment
func isPolledStatus(status string) bool {
	return status == entity.OrderStatusPending
}
