// Package tray owns the status-menu state machine: it applies menu commands
// to the snooze store and keeps a renderable snapshot of the menu current.
package tray

import (
	"context"
	"time"

	"ghnotifier/internal/eventbus"
	"ghnotifier/internal/snooze"

	logx "ghnotifier/pkg/logx"
)

// Store is the persistence surface the controller needs.
type Store interface {
	SnoozeRepository(ctx context.Context, owner, repo string, until time.Time) error
	UnsnoozeRepository(ctx context.Context, owner, repo string) (bool, error)
	ToggleReason(ctx context.Context, owner, repo, reason string) (bool, error)
	ListInventory(ctx context.Context) ([]snooze.Repository, error)
	ListActiveSnoozes(ctx context.Context, now time.Time) ([]snooze.ActiveSnooze, error)
	ReasonToggles(ctx context.Context, owner, repo string) (map[string]bool, error)
}

// Snapshot is everything a menu renderer needs to draw the tray state.
type Snapshot struct {
	// Inventory lists every repository ever observed, repo-name order.
	Inventory []snooze.Repository
	// Active holds unexpired snoozes keyed by "owner/repo".
	Active map[string]snooze.ActiveSnooze
	// Reasons holds the per-repository reason toggles keyed by "owner/repo";
	// absent reasons are off.
	Reasons map[string]map[string]bool
}

// Renderer draws a snapshot. Implementations must not block; the desktop
// renderer hands off to the UI thread itself.
type Renderer interface {
	Render(Snapshot)
}

// Controller serializes menu commands against the store. One goroutine owns
// all mutations, so renders always observe a consistent snapshot.
type Controller struct {
	store Store
	bus   eventbus.Bus
	rend  Renderer
	quit  context.CancelFunc
	log   logx.Logger

	cmds chan Command
}

func NewController(store Store, bus eventbus.Bus, rend Renderer, quit context.CancelFunc, log logx.Logger) *Controller {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Controller{
		store: store,
		bus:   bus,
		rend:  rend,
		quit:  quit,
		log:   log,
		cmds:  make(chan Command, 16),
	}
}

// Submit queues a command. Drops with a log line when the controller is
// saturated; menu clicks are retryable by the user.
func (c *Controller) Submit(cmd Command) {
	select {
	case c.cmds <- cmd:
	default:
		c.log.Warn("tray command dropped", logx.Any("command", cmd))
	}
}

// Run blocks until ctx is cancelled. It re-renders after every applied
// command and whenever the store changes underneath it (new repositories
// observed by the dispatch loop, pruned snoozes).
func (c *Controller) Run(ctx context.Context) error {
	var changes <-chan eventbus.Event
	if c.bus != nil {
		ch, unsub := c.bus.Subscribe(16)
		defer unsub()
		changes = ch
	}

	c.render(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-c.cmds:
			if c.apply(ctx, cmd) {
				c.render(ctx)
			}
		case ev, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if ev.Type == eventbus.TypeSnoozeChanged {
				c.render(ctx)
			}
		}
	}
}

// apply executes one command and reports whether the menu needs a redraw.
func (c *Controller) apply(ctx context.Context, cmd Command) bool {
	switch cmd := cmd.(type) {
	case SnoozeRepository:
		until := time.Now().Add(cmd.Duration)
		if err := c.store.SnoozeRepository(ctx, cmd.Owner, cmd.Repo, until); err != nil {
			c.log.Error("snooze failed",
				logx.String("repo", cmd.Owner+"/"+cmd.Repo), logx.Err(err))
			return false
		}
		c.log.Info("repository snoozed",
			logx.String("repo", cmd.Owner+"/"+cmd.Repo), logx.Time("until", until))
		c.publishChanged(cmd.Owner + "/" + cmd.Repo)
		return true

	case UnsnoozeRepository:
		existed, err := c.store.UnsnoozeRepository(ctx, cmd.Owner, cmd.Repo)
		if err != nil {
			c.log.Error("unsnooze failed",
				logx.String("repo", cmd.Owner+"/"+cmd.Repo), logx.Err(err))
			return false
		}
		if existed {
			c.log.Info("repository unsnoozed", logx.String("repo", cmd.Owner+"/"+cmd.Repo))
			c.publishChanged(cmd.Owner + "/" + cmd.Repo)
		}
		return existed

	case ToggleReason:
		on, err := c.store.ToggleReason(ctx, cmd.Owner, cmd.Repo, cmd.Reason)
		if err != nil {
			c.log.Error("reason toggle failed",
				logx.String("repo", cmd.Owner+"/"+cmd.Repo),
				logx.String("reason", cmd.Reason), logx.Err(err))
			return false
		}
		c.log.Info("reason toggled",
			logx.String("repo", cmd.Owner+"/"+cmd.Repo),
			logx.String("reason", cmd.Reason), logx.Bool("suppressed", on))
		c.publishChanged(cmd.Owner + "/" + cmd.Repo)
		return true

	case Quit:
		c.log.Info("quit requested from menu")
		if c.quit != nil {
			c.quit()
		}
		return false

	default:
		c.log.Warn("unhandled tray command", logx.Any("command", cmd))
		return false
	}
}

func (c *Controller) publishChanged(repo string) {
	if c.bus != nil {
		c.bus.Publish(eventbus.Event{Type: eventbus.TypeSnoozeChanged, Data: repo})
	}
}

func (c *Controller) render(ctx context.Context) {
	if c.rend == nil {
		return
	}
	snap, err := c.snapshot(ctx)
	if err != nil {
		c.log.Warn("menu snapshot failed", logx.Err(err))
		return
	}
	c.rend.Render(snap)
}

func (c *Controller) snapshot(ctx context.Context) (Snapshot, error) {
	inv, err := c.store.ListInventory(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	active, err := c.store.ListActiveSnoozes(ctx, time.Now())
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Inventory: inv,
		Active:    make(map[string]snooze.ActiveSnooze, len(active)),
		Reasons:   make(map[string]map[string]bool, len(inv)),
	}
	for _, a := range active {
		snap.Active[a.Owner+"/"+a.Repo] = a
	}
	for _, r := range inv {
		toggles, err := c.store.ReasonToggles(ctx, r.Owner, r.Repo)
		if err != nil {
			return Snapshot{}, err
		}
		if len(toggles) > 0 {
			snap.Reasons[r.String()] = toggles
		}
	}
	return snap, nil
}
