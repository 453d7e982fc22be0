package users

import (
	"context"
	"log"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	dbt "gogreen/db/db"
	"gogreen/mq/mq"
)

// Leaderboard caches the top users per page size.
type Leaderboard struct {
	store   dbt.UserDBWrapper
	cache   *expirable.LRU[int, []dbt.UserAccount]
	timeout time.Duration
}

func NewLeaderboard(store dbt.UserDBWrapper, size int, ttl time.Duration, timeout time.Duration) *Leaderboard {
	if size <= 0 {
		size = 16
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Leaderboard{
		store:   store,
		cache:   expirable.NewLRU[int, []dbt.UserAccount](size, nil, ttl),
		timeout: timeout,
	}
}

// Top returns the first limit users ranked by score.
func (l *Leaderboard) Top(ctx context.Context, limit int) ([]dbt.UserAccount, error) {
	limit = dbt.NormalizeLimit(limit)
	if cached, ok := l.cache.Get(limit); ok {
		return slices.Clone(cached), nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	users, err := l.store.Leaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}
	l.cache.Add(limit, users)
	return slices.Clone(users), nil
}

func (l *Leaderboard) Invalidate() {
	l.cache.Purge()
}

// Watch drops the cache on every credited score until ctx is done. With a
// broker backend the all-users subscription is shared between instances, so
// the TTL still bounds staleness on the others.
func (l *Leaderboard) Watch(ctx context.Context, queue mq.ScoreMessageQueueWrapper) {
	q := queue.GetScoreEventQueue(mq.ActionScoreCredited)
	if q == nil {
		return
	}
	credited := make(chan struct{})
	mq.SubscribeProcessor(mq.AllTopics, ctx, q, func(mq.ScoreEvent) (struct{}, bool, error) {
		return struct{}{}, false, nil
	}, credited)

	go func() {
		for range credited {
			l.Invalidate()
		}
		log.Printf("Leaderboard cache watcher stopped")
	}()
}
