// Package dispatch runs the polling loop: pull the feed, classify each
// event, and hand survivors to concurrent lifecycle tasks.
package dispatch

import (
	"context"
	"sync/atomic"
	"time"

	"ghnotifier/internal/decide"
	"ghnotifier/internal/eventbus"
	"ghnotifier/internal/feed"
	"ghnotifier/internal/lifecycle"
	"ghnotifier/internal/runtime/supervisor"

	logx "ghnotifier/pkg/logx"
)

// Options tune the loop. Zero values take the defaults noted per field.
type Options struct {
	// PollInterval between feed pulls. Default 60s.
	PollInterval time.Duration
	// PacingDelay between successive interactive notifications within one
	// cycle, so a burst does not stack widgets on screen. Default 12s.
	PacingDelay time.Duration
	// MaxInFlight bounds concurrently running lifecycle tasks. Default 8.
	MaxInFlight int
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 60 * time.Second
	}
	if o.PacingDelay <= 0 {
		o.PacingDelay = 12 * time.Second
	}
	if o.MaxInFlight <= 0 {
		o.MaxInFlight = 8
	}
	return o
}

// Loop owns the poll cycle. Lifecycle tasks run under the supplied
// supervisor so shutdown joins them.
type Loop struct {
	client feed.Client
	engine *decide.Engine
	runner *lifecycle.Runner
	ckpt   *Checkpoint
	sup    *supervisor.Supervisor
	bus    eventbus.Bus
	log    logx.Logger

	// opts stores Options; intervals are hot-reloadable, MaxInFlight is
	// fixed at construction (it sizes the semaphore).
	opts atomic.Value

	sem chan struct{}
}

func New(client feed.Client, engine *decide.Engine, runner *lifecycle.Runner,
	ckpt *Checkpoint, sup *supervisor.Supervisor, bus eventbus.Bus,
	opts Options, log logx.Logger) *Loop {
	if log.IsZero() {
		log = logx.Nop()
	}
	opts = opts.withDefaults()
	l := &Loop{
		client: client,
		engine: engine,
		runner: runner,
		ckpt:   ckpt,
		sup:    sup,
		bus:    bus,
		log:    log,
		sem:    make(chan struct{}, opts.MaxInFlight),
	}
	l.opts.Store(opts)
	return l
}

// UpdateOptions swaps the poll and pacing intervals for future cycles.
// MaxInFlight changes are ignored after construction.
func (l *Loop) UpdateOptions(opts Options) {
	next := opts.withDefaults()
	next.MaxInFlight = l.options().MaxInFlight
	l.opts.Store(next)
}

func (l *Loop) options() Options {
	return l.opts.Load().(Options)
}

// Run polls until ctx is cancelled. It returns ctx.Err() on shutdown so a
// restarting supervisor treats it as a clean exit.
func (l *Loop) Run(ctx context.Context) error {
	since, err := l.ckpt.Load()
	if err != nil {
		l.log.Warn("checkpoint unreadable; starting from scratch", logx.Err(err))
		since = time.Time{}
	}

	for {
		since = l.cycle(ctx, since)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.options().PollInterval):
		}
	}
}

// cycle performs one poll and returns the next watermark. A failed pull
// keeps the old watermark so nothing is skipped.
func (l *Loop) cycle(ctx context.Context, since time.Time) time.Time {
	startedAt := time.Now()

	events, err := l.client.ListEvents(ctx, since)
	if err != nil {
		l.log.Warn("feed pull failed", logx.Err(err))
		return since
	}
	l.log.Debug("feed pulled",
		logx.Int("events", len(events)),
		logx.Int64("in_flight", l.sup.Active()),
		logx.Time("since", since))
	if l.bus != nil {
		l.bus.Publish(eventbus.Event{Type: eventbus.TypeDispatchCycle, Data: len(events)})
	}

	launched := 0
	for _, ev := range events {
		verdict := l.engine.Decide(ctx, ev, time.Now())
		if verdict == decide.SuppressSilently {
			continue
		}
		// Pacing applies to interactive notifications only; auto-acks are
		// invisible and need no spacing.
		if verdict == decide.Show && launched > 0 {
			if !sleepCtx(ctx, l.options().PacingDelay) {
				return since
			}
		}
		if !l.launch(ctx, ev, verdict) {
			return since
		}
		if verdict == decide.Show {
			launched++
		}
	}

	now := startedAt
	if err := l.ckpt.Save(now); err != nil {
		l.log.Warn("checkpoint save failed", logx.Err(err))
	}
	return now
}

// launch blocks on the in-flight cap, then runs the lifecycle as a
// supervised task. Returns false when ctx died while waiting.
func (l *Loop) launch(ctx context.Context, ev feed.Event, verdict decide.Verdict) bool {
	select {
	case <-ctx.Done():
		return false
	case l.sem <- struct{}{}:
	}
	l.sup.Go("lifecycle."+ev.ID, func(ctx context.Context) error {
		defer func() { <-l.sem }()
		out, err := l.runner.Run(ctx, ev, verdict)
		l.log.Debug("lifecycle finished",
			logx.String("repo", ev.RepoFullName),
			logx.String("outcome", out.String()))
		return err
	})
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
