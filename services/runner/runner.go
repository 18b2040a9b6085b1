// Package runner drives the long-lived processing loop. One cycle at a time:
// triggers (interval, intake watcher, wall-clock schedule, webhook) only mark
// work pending, the loop itself serializes execution so no two cycles ever
// interleave on the library tree.
package runner

import (
	"context"
	"log"
	"time"
)

// TriggerSource exposes the webhook's get-and-reset trigger flag.
type TriggerSource interface {
	ConsumeTrigger() bool
}

// CycleFunc runs one full processing cycle. force requests a sync pass even
// when the catalog is unchanged.
type CycleFunc func(ctx context.Context, force bool) error

// Options carries the loop timings, all derived from configuration.
type Options struct {
	// Interval between routine catalog polls.
	Interval time.Duration
	// WatchInterval is the trigger evaluation cadence.
	WatchInterval time.Duration
	// ErrorBackoff delays the next cycle after a failed one.
	ErrorBackoff time.Duration
	Schedule     Schedule
	// RunImmediately forces one cycle before the loop starts waiting.
	RunImmediately bool
}

// Runner owns the loop state. Not safe for concurrent Run calls.
type Runner struct {
	opts    Options
	cycle   CycleFunc
	watcher *Watcher
	webhook TriggerSource

	now func() time.Time
}

func New(opts Options, cycle CycleFunc, watcher *Watcher, webhook TriggerSource) *Runner {
	if opts.WatchInterval <= 0 {
		opts.WatchInterval = 5 * time.Second
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	return &Runner{opts: opts, cycle: cycle, watcher: watcher, webhook: webhook, now: time.Now}
}

// Run blocks until ctx is cancelled. The in-flight cycle finishes before the
// loop exits; nothing is torn down mid-item.
func (r *Runner) Run(ctx context.Context) error {
	if next, ok := r.opts.Schedule.Next(r.now()); ok {
		log.Printf("[runner] next scheduled run at %s", next.Format("15:04"))
	}

	lastPoll := time.Time{}
	lastTick := r.now()
	var backoffUntil time.Time

	if r.opts.RunImmediately {
		lastPoll = r.now()
		backoffUntil = r.runCycle(ctx, true)
	}

	ticker := time.NewTicker(r.opts.WatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[runner] shutting down")
			return ctx.Err()
		case <-ticker.C:
		}

		now := r.now()
		if now.Before(backoffUntil) {
			continue
		}

		force := false
		due := false

		if r.webhook != nil && r.webhook.ConsumeTrigger() {
			log.Printf("[runner] webhook trigger received")
			force = true
			due = true
		}
		if r.opts.Schedule.Due(lastTick, now) {
			log.Printf("[runner] scheduled run due")
			force = true
			due = true
			if next, ok := r.opts.Schedule.Next(now); ok {
				log.Printf("[runner] next scheduled run at %s", next.Format("15:04"))
			}
		}
		if r.watcher != nil && r.watcher.Ready() {
			// Dropped artwork must reach the server even when the catalog
			// itself is unchanged, so the sync pass may not be skipped.
			log.Printf("[runner] new intake files detected")
			force = true
			due = true
		}
		if now.Sub(lastPoll) >= r.opts.Interval {
			due = true
		}
		lastTick = now

		if !due {
			continue
		}

		lastPoll = now
		backoffUntil = r.runCycle(ctx, force)
	}
}

// runCycle executes one cycle and returns the earliest time the next one may
// start. A context error during shutdown is not treated as a cycle failure.
func (r *Runner) runCycle(ctx context.Context, force bool) time.Time {
	if err := r.cycle(ctx, force); err != nil {
		if ctx.Err() != nil {
			return r.now()
		}
		log.Printf("[runner] cycle failed, backing off %s: %v", r.opts.ErrorBackoff, err)
		return r.now().Add(r.opts.ErrorBackoff)
	}
	return r.now()
}
