// Package decide classifies incoming events against the snooze store.
package decide

import (
	"context"
	"time"

	"ghnotifier/internal/eventbus"
	"ghnotifier/internal/feed"

	logx "ghnotifier/pkg/logx"
)

// Verdict is the ternary classification of one event.
type Verdict int

const (
	// Show surfaces the event as an interactive notification.
	Show Verdict = iota
	// SuppressSilently neither notifies nor acknowledges. Reserved for a
	// future "ignore without marking read" mode; no current rule emits it,
	// but callers must handle it.
	SuppressSilently
	// AutoAcknowledge skips presentation and marks the event read upstream,
	// so it does not resurface once the user un-snoozes and re-polls with a
	// wider window.
	AutoAcknowledge
)

func (v Verdict) String() string {
	switch v {
	case Show:
		return "show"
	case SuppressSilently:
		return "suppress"
	case AutoAcknowledge:
		return "auto-ack"
	default:
		return "unknown"
	}
}

// Rules is the store surface the engine needs.
type Rules interface {
	ShouldSuppress(ctx context.Context, owner, repo, reason string, now time.Time) (bool, error)
	UpsertRepositoryObserved(ctx context.Context, owner, repo string) (bool, error)
}

// Engine combines a rules snapshot with event attributes.
type Engine struct {
	rules Rules
	bus   eventbus.Bus
	log   logx.Logger
}

func NewEngine(rules Rules, bus eventbus.Bus, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{rules: rules, bus: bus, log: log}
}

// Decide evaluates one event at the given instant.
//
// Evaluating an event also records its repository in the inventory, so the
// tray menu stays current without a separate sweep. Store failures on the
// read path degrade to Show: suppression is a convenience feature and losing
// a notification silently is the worse failure mode.
func (e *Engine) Decide(ctx context.Context, ev feed.Event, now time.Time) Verdict {
	inserted, err := e.rules.UpsertRepositoryObserved(ctx, ev.Owner, ev.Repo)
	if err != nil {
		e.log.Warn("inventory upsert failed", logx.String("repo", ev.RepoFullName), logx.Err(err))
	} else if inserted && e.bus != nil {
		e.bus.Publish(eventbus.Event{Type: eventbus.TypeSnoozeChanged, Data: ev.RepoFullName})
	}

	suppressed, err := e.rules.ShouldSuppress(ctx, ev.Owner, ev.Repo, ev.Reason, now)
	if err != nil {
		e.log.Warn("suppression check failed; showing notification",
			logx.String("repo", ev.RepoFullName), logx.String("reason", ev.Reason), logx.Err(err))
		return Show
	}
	if suppressed {
		return AutoAcknowledge
	}
	return Show
}
