package internal

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"storefront/entity"
)

// statusSequence answers with the given statuses in turn and repeats the last one.
func statusSequence(calls *int32, statuses ...string) OrderFetcher {
	return func(ctx context.Context, orderId string) (*entity.Order, error) {
		n := int(atomic.AddInt32(calls, 1))
		if n > len(statuses) {
			n = len(statuses)
		}
		status := statuses[n-1]
		if status == "" {
			return nil, errors.New("backend unavailable")
		}
		return &entity.Order{Id: 42, Status: status}, nil
	}
}

func fastPoller(fetch OrderFetcher, cutoff time.Duration) *OrderPoller {
	poller := NewOrderPoller(fetch)
	poller.SetSchedule(10*time.Millisecond, cutoff)
	return poller
}

func TestNewOrderPollerDefaults(t *testing.T) {
	poller := NewOrderPoller(nil)
	assert.Equal(t, 5*time.Second, poller.interval)
	assert.Equal(t, 2*time.Minute, poller.cutoff)

	poller.SetSchedule(0, -1)
	assert.Equal(t, 5*time.Second, poller.interval)
	assert.Equal(t, 2*time.Minute, poller.cutoff)
}

func TestWatchSettlesImmediately(t *testing.T) {
	var calls int32
	poller := fastPoller(statusSequence(&calls, entity.OrderStatusProcessing), time.Second)

	var updates []PollUpdate
	order, outcome := poller.Watch(context.Background(), "42", func(update PollUpdate) {
		updates = append(updates, update)
	})

	assert.Equal(t, PollSettled, outcome)
	assert.Equal(t, entity.OrderStatusProcessing, order.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Len(t, updates, 1)
}

func TestWatchPollsWhilePending(t *testing.T) {
	var calls int32
	poller := fastPoller(statusSequence(&calls,
		entity.OrderStatusPending,
		entity.OrderStatusPending,
		entity.OrderStatusCompleted,
	), time.Second)

	order, outcome := poller.Watch(context.Background(), "42", nil)

	assert.Equal(t, PollSettled, outcome)
	assert.Equal(t, entity.OrderStatusCompleted, order.Status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestWatchStopsOnAnyNonPendingStatus(t *testing.T) {
	for _, status := range []string{
		entity.OrderStatusProcessing,
		entity.OrderStatusCompleted,
		entity.OrderStatusFailed,
		entity.OrderStatusCancelled,
		"on-hold",
	} {
		t.Run(status, func(t *testing.T) {
			var calls int32
			poller := fastPoller(statusSequence(&calls, entity.OrderStatusPending, status), time.Second)

			order, outcome := poller.Watch(context.Background(), "42", nil)

			assert.Equal(t, PollSettled, outcome)
			assert.Equal(t, status, order.Status)
			assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
		})
	}
}

func TestWatchKeepsPollingAfterFetchError(t *testing.T) {
	var calls int32
	poller := fastPoller(statusSequence(&calls, "", entity.OrderStatusProcessing), time.Second)

	var failures int
	order, outcome := poller.Watch(context.Background(), "42", func(update PollUpdate) {
		if update.Err != nil {
			failures++
		}
	})

	assert.Equal(t, PollSettled, outcome)
	assert.Equal(t, entity.OrderStatusProcessing, order.Status)
	assert.Equal(t, 1, failures)
}

func TestWatchExpiresAtCutoff(t *testing.T) {
	var calls int32
	poller := fastPoller(statusSequence(&calls, entity.OrderStatusPending), 100*time.Millisecond)

	start := time.Now()
	order, outcome := poller.Watch(context.Background(), "42", nil)
	elapsed := time.Since(start)

	assert.Equal(t, PollExpired, outcome)
	assert.Equal(t, entity.OrderStatusPending, order.Status)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
	assert.Greater(t, atomic.LoadInt32(&calls), int32(2))

	// no fetch after return
	after := atomic.LoadInt32(&calls)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt32(&calls))
}

func TestWatchExpiresWithoutSuccessfulFetch(t *testing.T) {
	var calls int32
	poller := fastPoller(statusSequence(&calls, ""), 50*time.Millisecond)

	order, outcome := poller.Watch(context.Background(), "42", nil)

	assert.Equal(t, PollExpired, outcome)
	assert.Nil(t, order)
}

func TestWatchCancelled(t *testing.T) {
	var calls int32
	poller := fastPoller(statusSequence(&calls, entity.OrderStatusPending), time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	start := time.Now()
	order, outcome := poller.Watch(ctx, "42", nil)

	assert.Equal(t, PollCancelled, outcome)
	assert.NotNil(t, order)
	assert.Less(t, time.Since(start), time.Second)

	after := atomic.LoadInt32(&calls)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt32(&calls))
}
