package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	dbt "gogreen/db/db"
	"gogreen/mq/mq"
)

// DefaultReconcileWorkers bounds how many credits are retried at once.
const DefaultReconcileWorkers = 4

// Reconciler finishes credits that failed after their route was stored. It
// consumes CreditPending events and retries the increment with exponential
// backoff. Delivery is at least once, so a credit whose increment landed but
// whose reply was lost can be applied twice.
type Reconciler struct {
	ledger     *Ledger
	queue      mq.ScoreMessageQueueWrapper
	maxRetries uint64
	baseDelay  time.Duration
	workers    int
}

func NewReconciler(l *Ledger, queue mq.ScoreMessageQueueWrapper, maxRetries uint64, baseDelay time.Duration) *Reconciler {
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	return &Reconciler{
		ledger:     l,
		queue:      queue,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		workers:    DefaultReconcileWorkers,
	}
}

// WithWorkers sets how many credits are retried concurrently.
func (r *Reconciler) WithWorkers(n int) *Reconciler {
	if n > 0 {
		r.workers = n
	}
	return r
}

// Run handles pending credits until ctx is done. Events are taken off the
// queue as soon as they arrive and wait in a backlog while the workers back
// off, so a slow store never stalls the queue's fan-out.
func (r *Reconciler) Run(ctx context.Context) {
	q := r.queue.GetScoreEventQueue(mq.ActionCreditPending)
	if q == nil {
		log.Printf("No %s queue, reconciler not started", mq.ActionCreditPending)
		return
	}

	pending := make(chan mq.ScoreEvent)
	mq.SubscribeProcessor(mq.AllTopics, ctx, q, func(ev mq.ScoreEvent) (mq.ScoreEvent, bool, error) {
		return ev, ev.Points <= 0, nil
	}, pending)

	ready := make(chan mq.ScoreEvent)
	go backlog(ctx, pending, ready)

	log.Printf("Credit reconciler started with %d workers", r.workers)
	var g errgroup.Group
	for range r.workers {
		g.Go(func() error {
			for ev := range ready {
				if _, err := r.Retry(ctx, ev); err != nil {
					log.Printf("Giving up on credit of route %s: %v", ev.RouteID, err)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	log.Printf("Credit reconciler stopped")
}

// backlog moves events from in to out without ever blocking in. Events still
// queued when ctx is done are logged and dropped.
func backlog(ctx context.Context, in <-chan mq.ScoreEvent, out chan<- mq.ScoreEvent) {
	defer close(out)
	var queued []mq.ScoreEvent
	for in != nil || len(queued) > 0 {
		var (
			send chan<- mq.ScoreEvent
			next mq.ScoreEvent
		)
		if len(queued) > 0 {
			send, next = out, queued[0]
		}
		select {
		case ev, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			queued = append(queued, ev)
		case send <- next:
			queued = queued[1:]
		case <-ctx.Done():
			for _, ev := range queued {
				log.Printf("Dropping pending credit of route %s on shutdown", ev.RouteID)
			}
			return
		}
	}
}

// Retry credits ev.Points to ev.UserID, retrying transient store failures.
// A missing user is not retried.
func (r *Reconciler) Retry(ctx context.Context, ev mq.ScoreEvent) (int64, error) {
	backoff := retry.WithMaxRetries(r.maxRetries, retry.NewExponential(r.baseDelay))

	var total int64
	attempt := ev.Attempt
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		t, err := r.ledger.CreditScore(ctx, ev.UserID, ev.Points)
		switch {
		case err == nil:
			total = t
			return nil
		case errors.Is(err, dbt.ErrUserNotFound):
			return err
		default:
			log.Printf("Credit of route %s failed on attempt %d: %v", ev.RouteID, attempt, err)
			return retry.RetryableError(err)
		}
	})
	if err != nil {
		return 0, fmt.Errorf("%w after %d attempts: %w", ErrCreditFailed, attempt, err)
	}

	log.Printf("Reconciled %d points for route %s, total %d", ev.Points, ev.RouteID, total)
	r.ledger.publish(mq.ActionScoreCredited, mq.ScoreEvent{
		UserID:  ev.UserID,
		RouteID: ev.RouteID,
		Points:  ev.Points,
		Total:   total,
		Attempt: attempt,
		At:      r.ledger.clock.Now().UTC(),
	})
	return total, nil
}
