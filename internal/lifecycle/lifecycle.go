// Package lifecycle drives one notification event from enrichment through
// presentation to its terminal side effect.
package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"ghnotifier/internal/decide"
	"ghnotifier/internal/eventbus"
	"ghnotifier/internal/feed"
	"ghnotifier/internal/presenter"

	logx "ghnotifier/pkg/logx"
)

// Outcome is the terminal state of one event lifecycle.
type Outcome int

const (
	// Acknowledged: marked read upstream without opening anything.
	Acknowledged Outcome = iota
	// Opened: browser launched on the subject, then marked read.
	Opened
	// Dismissed: the user waved the notification away; marked read.
	Dismissed
	// TimedOut: no response before the deadline; the notification is
	// withdrawn and the event stays unread upstream.
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Acknowledged:
		return "acknowledged"
	case Opened:
		return "opened"
	case Dismissed:
		return "dismissed"
	case TimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// Runner executes lifecycles. OpenURL is injected so tests never spawn a
// browser; production wires github.com/pkg/browser.
type Runner struct {
	client  feed.Client
	present presenter.Presenter
	openURL func(url string) error
	bus     eventbus.Bus
	log     logx.Logger

	// timeout bounds the wait for a user action; hot-reloadable.
	timeout atomic.Int64
}

type Config struct {
	ResponseTimeout time.Duration
}

func NewRunner(client feed.Client, p presenter.Presenter, openURL func(string) error,
	bus eventbus.Bus, cfg Config, log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Runner{
		client:  client,
		present: p,
		openURL: openURL,
		bus:     bus,
		log:     log,
	}
	r.SetResponseTimeout(cfg.ResponseTimeout)
	return r
}

// SetResponseTimeout swaps the user-action deadline for future lifecycles.
// Non-positive values reset the 10s default.
func (r *Runner) SetResponseTimeout(d time.Duration) {
	if d <= 0 {
		d = 10 * time.Second
	}
	r.timeout.Store(int64(d))
}

// Run drives ev to a terminal outcome. It returns an error only for
// failures worth a supervisor log line; the outcome is always valid.
func (r *Runner) Run(ctx context.Context, ev feed.Event, verdict decide.Verdict) (Outcome, error) {
	out, err := r.run(ctx, ev, verdict)
	if r.bus != nil {
		r.bus.Publish(eventbus.Event{Type: eventbus.TypeLifecycleDone, Data: out.String()})
	}
	return out, err
}

func (r *Runner) run(ctx context.Context, ev feed.Event, verdict decide.Verdict) (Outcome, error) {
	log := r.log.With(logx.String("repo", ev.RepoFullName), logx.String("event", ev.ID))

	if verdict == decide.AutoAcknowledge {
		r.acknowledge(ctx, ev, log)
		return Acknowledged, nil
	}

	detail, comment := r.enrich(ctx, ev, log)

	h, err := r.present.Present(ctx, presenter.Request{
		Title:    ev.RepoFullName,
		Body:     body(ev),
		Category: categoryFor(ev, detail),
	})
	if err != nil {
		// A widget that cannot render behaves like an instant dismissal,
		// otherwise the event would resurface on every poll.
		log.Warn("presentation failed; treating as dismissal", logx.Err(err))
		if r.bus != nil {
			r.bus.Publish(eventbus.Event{Type: eventbus.TypePresentationFail, Data: ev.RepoFullName})
		}
		r.acknowledge(ctx, ev, log)
		return Dismissed, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, time.Duration(r.timeout.Load()))
	defer cancel()

	action, err := r.present.Await(waitCtx, h)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			log.Debug("no response before deadline; leaving unread")
			return TimedOut, nil
		}
		log.Warn("await failed; treating as dismissal", logx.Err(err))
		r.acknowledge(ctx, ev, log)
		return Dismissed, nil
	}

	switch action {
	case presenter.ActionDefault, presenter.ActionOpen:
		r.open(ev, detail, comment, log)
		r.acknowledge(ctx, ev, log)
		return Opened, nil
	case presenter.ActionAcknowledge:
		r.acknowledge(ctx, ev, log)
		return Acknowledged, nil
	default:
		r.acknowledge(ctx, ev, log)
		return Dismissed, nil
	}
}

// enrich fetches subject detail and the latest comment concurrently.
// Either fetch may fail; presentation degrades rather than blocks.
func (r *Runner) enrich(ctx context.Context, ev feed.Event, log logx.Logger) (*feed.Detail, *feed.Comment) {
	var (
		wg      sync.WaitGroup
		detail  *feed.Detail
		comment *feed.Comment
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		var err error
		if detail, err = r.client.FetchDetail(ctx, ev.SubjectURL); err != nil {
			log.Debug("detail fetch failed", logx.Err(err))
			detail = nil
		}
	}()
	go func() {
		defer wg.Done()
		var err error
		if comment, err = r.client.FetchComment(ctx, ev.LatestCommentURL); err != nil {
			log.Debug("comment fetch failed", logx.Err(err))
			comment = nil
		}
	}()
	wg.Wait()
	return detail, comment
}

// open launches the browser on the most specific URL available: the latest
// comment, else the subject page. Uses the parent-independent openURL hook.
func (r *Runner) open(ev feed.Event, detail *feed.Detail, comment *feed.Comment, log logx.Logger) {
	url := ""
	if comment != nil && comment.HTMLURL != "" {
		url = comment.HTMLURL
	} else if detail != nil && detail.HTMLURL != "" {
		url = detail.HTMLURL
	}
	if url == "" {
		log.Warn("no web url resolved for event", logx.String("subject", ev.SubjectURL))
		return
	}
	if err := r.openURL(url); err != nil {
		log.Warn("browser launch failed", logx.String("url", url), logx.Err(err))
	}
}

// acknowledge marks the thread read upstream. Failures are logged, not
// propagated: a missed ack only means the event shows once more.
func (r *Runner) acknowledge(ctx context.Context, ev feed.Event, log logx.Logger) {
	if _, err := r.client.Acknowledge(ctx, ev.ID); err != nil {
		log.Warn("acknowledge failed", logx.Err(err))
	}
}

func body(ev feed.Event) string {
	if ev.Title == "" {
		return ev.Reason
	}
	return ev.Title + " (" + ev.Reason + ")"
}

func categoryFor(ev feed.Event, detail *feed.Detail) presenter.Category {
	if ev.Kind != feed.KindPullRequest {
		return presenter.CategoryGeneric
	}
	if detail == nil {
		return presenter.CategoryPullRequest
	}
	switch {
	case detail.State == "open":
		return presenter.CategoryPullOpen
	case detail.Merged:
		return presenter.CategoryPullMerged
	case detail.State == "closed":
		return presenter.CategoryPullClosed
	default:
		return presenter.CategoryPullRequest
	}
}
