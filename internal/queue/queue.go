// Package queue defines the durable job queue contract the sync engine runs
// on: a cron-style periodic trigger plus at-least-once delivery of one-off
// jobs into a bounded worker pool.
package queue

import "context"

// Handler processes one job payload. Errors are logged by the consumer; the
// queue does not retry (the scheduler re-qualifies failed accounts instead).
type Handler func(ctx context.Context, payload []byte) error

// ScheduleOptions tunes a periodic registration.
type ScheduleOptions struct {
	// Timezone is the IANA zone the cron expression is evaluated in. Empty
	// means UTC.
	Timezone string
	// DedupeKey guards each tick across processes, so re-registering the same
	// schedule on restart (or running several replicas) fires it once.
	DedupeKey string
}

// Queue delivers scheduler and worker jobs.
type Queue interface {
	// Schedule registers a periodic job. The payload is enqueued on every
	// cron tick.
	Schedule(ctx context.Context, jobName, cronExpr string, payload []byte, opts ScheduleOptions) error
	// Enqueue submits one job for asynchronous execution.
	Enqueue(ctx context.Context, jobName string, payload []byte) error
	// Consume registers a handler with bounded concurrency and blocks until
	// ctx is cancelled.
	Consume(ctx context.Context, jobName string, concurrency int, handler Handler) error
}
