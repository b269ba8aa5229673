package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	jobKeyPrefix  = "calsync:jobs:"
	lockKeyPrefix = "calsync:cron:"

	popTimeout  = 5 * time.Second
	tickLockTTL = time.Minute
)

// Redis is a Redis-list backed queue: LPUSH to enqueue, BRPOP to consume,
// robfig/cron for periodic triggers with a SETNX lock deduplicating ticks
// across processes.
type Redis struct {
	client *redis.Client
	log    *zap.Logger

	mu    sync.Mutex
	crons []*cron.Cron
}

// NewRedis constructs a Redis-backed queue.
func NewRedis(client *redis.Client, log *zap.Logger) *Redis {
	return &Redis{client: client, log: log}
}

func jobKey(name string) string { return jobKeyPrefix + name }

func lockKey(dedupeKey string, tick time.Time) string {
	return fmt.Sprintf("%s%s:%d", lockKeyPrefix, dedupeKey, tick.Unix())
}

// Enqueue pushes one payload onto the job list.
func (q *Redis) Enqueue(ctx context.Context, jobName string, payload []byte) error {
	if err := q.client.LPush(ctx, jobKey(jobName), payload).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", jobName, err)
	}
	return nil
}

// Schedule registers a cron trigger that enqueues the payload on every tick.
// The tick lock makes concurrent replicas fire each tick exactly once.
func (q *Redis) Schedule(ctx context.Context, jobName, cronExpr string, payload []byte, opts ScheduleOptions) error {
	loc := time.UTC
	if opts.Timezone != "" {
		var err error
		if loc, err = time.LoadLocation(opts.Timezone); err != nil {
			return fmt.Errorf("schedule %s: %w", jobName, err)
		}
	}
	dedupe := opts.DedupeKey
	if dedupe == "" {
		dedupe = jobName
	}

	c := cron.New(cron.WithLocation(loc))
	_, err := c.AddFunc(cronExpr, func() {
		tick := time.Now().In(loc).Truncate(time.Minute)
		ok, lockErr := q.client.SetNX(ctx, lockKey(dedupe, tick), 1, tickLockTTL).Result()
		if lockErr != nil {
			q.log.Error("cron tick lock", zap.String("job", jobName), zap.Error(lockErr))
			return
		}
		if !ok {
			return // another replica owns this tick
		}
		if err := q.Enqueue(ctx, jobName, payload); err != nil {
			q.log.Error("cron enqueue", zap.String("job", jobName), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", jobName, err)
	}
	c.Start()

	q.mu.Lock()
	q.crons = append(q.crons, c)
	q.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	return nil
}

// Consume runs `concurrency` blocking-pop loops until ctx is cancelled.
// Handler failures are logged and the job is dropped; recovery is the
// scheduler's job, not the queue's.
func (q *Redis) Consume(ctx context.Context, jobName string, concurrency int, handler Handler) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	key := jobKey(jobName)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				res, err := q.client.BRPop(ctx, popTimeout, key).Result()
				switch {
				case errors.Is(err, redis.Nil):
					continue // timeout, poll again
				case err != nil:
					if ctx.Err() != nil {
						return
					}
					q.log.Warn("queue pop", zap.String("job", jobName), zap.Error(err))
					select {
					case <-ctx.Done():
						return
					case <-time.After(time.Second):
					}
					continue
				}
				// BRPOP returns [key, value].
				if len(res) != 2 {
					continue
				}
				if err := handler(ctx, []byte(res[1])); err != nil {
					q.log.Error("job handler", zap.String("job", jobName), zap.Error(err))
				}
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}
