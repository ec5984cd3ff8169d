// Package desktop presents notifications through org.freedesktop.Notifications
// on the D-Bus session bus. Action buttons arrive back as ActionInvoked
// signals; a closed notification arrives as NotificationClosed.
package desktop

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"ghnotifier/internal/presenter"
	logx "ghnotifier/pkg/logx"
)

const (
	busName    = "org.freedesktop.Notifications"
	objectPath = "/org/freedesktop/Notifications"
	appName    = "github-notifier"

	keyDefault     = "default"
	keyAcknowledge = "ack"
	keyOpen        = "open"
)

type response struct {
	action presenter.Action
}

// Presenter talks to the session notification daemon.
type Presenter struct {
	conn *dbus.Conn
	obj  dbus.BusObject
	log  logx.Logger

	mu      sync.Mutex
	waiters map[uint32]chan response
}

// New connects to the session bus and starts the signal router.
// The router goroutine lives until ctx is cancelled.
func New(ctx context.Context, log logx.Logger) (*Presenter, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, &presenter.Error{Backend: "desktop", Err: err}
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(objectPath),
		dbus.WithMatchInterface(busName),
	); err != nil {
		return nil, &presenter.Error{Backend: "desktop", Err: err}
	}

	p := &Presenter{
		conn:    conn,
		obj:     conn.Object(busName, dbus.ObjectPath(objectPath)),
		log:     log,
		waiters: map[uint32]chan response{},
	}

	sigs := make(chan *dbus.Signal, 16)
	conn.Signal(sigs)
	go p.route(ctx, sigs)

	return p, nil
}

func (p *Presenter) Present(ctx context.Context, req presenter.Request) (presenter.Handle, error) {
	actions := []string{
		keyDefault, "Open",
		keyAcknowledge, "Mark as read",
		keyOpen, "Open in browser",
	}
	hints := map[string]dbus.Variant{
		// Resident until acted on or withdrawn by the lifecycle timeout.
		"resident": dbus.MakeVariant(true),
	}

	var id uint32
	call := p.obj.CallWithContext(ctx, busName+".Notify", 0,
		appName,
		uint32(0), // replaces_id
		iconFor(req.Category),
		req.Title,
		req.Body,
		actions,
		hints,
		int32(0), // expire: managed by the lifecycle race, not the daemon
	)
	if call.Err != nil {
		return nil, &presenter.Error{Backend: "desktop", Err: call.Err}
	}
	if err := call.Store(&id); err != nil {
		return nil, &presenter.Error{Backend: "desktop", Err: err}
	}

	ch := make(chan response, 1)
	p.mu.Lock()
	p.waiters[id] = ch
	p.mu.Unlock()

	return id, nil
}

func (p *Presenter) Await(ctx context.Context, h presenter.Handle) (presenter.Action, error) {
	id, ok := h.(uint32)
	if !ok {
		return presenter.ActionDismissed, &presenter.Error{
			Backend: "desktop", Err: fmt.Errorf("bad handle %T", h)}
	}

	p.mu.Lock()
	ch := p.waiters[id]
	p.mu.Unlock()
	if ch == nil {
		return presenter.ActionDismissed, &presenter.Error{
			Backend: "desktop", Err: fmt.Errorf("unknown handle %d", id)}
	}
	defer p.forget(id)

	select {
	case <-ctx.Done():
		// Withdraw so a stale notification can't fire actions later.
		_ = p.obj.Call(busName+".CloseNotification", 0, id).Err
		return presenter.ActionDismissed, ctx.Err()
	case r := <-ch:
		return r.action, nil
	}
}

func (p *Presenter) Warn(ctx context.Context, title, body string) {
	call := p.obj.CallWithContext(ctx, busName+".Notify", 0,
		appName, uint32(0), "dialog-warning", title, body,
		[]string{}, map[string]dbus.Variant{}, int32(10000))
	if call.Err != nil {
		p.log.Warn("warning notification failed", logx.Err(call.Err))
	}
}

func (p *Presenter) forget(id uint32) {
	p.mu.Lock()
	delete(p.waiters, id)
	p.mu.Unlock()
}

func (p *Presenter) route(ctx context.Context, sigs <-chan *dbus.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sigs:
			if !ok {
				return
			}
			p.handleSignal(sig)
		}
	}
}

func (p *Presenter) handleSignal(sig *dbus.Signal) {
	if sig == nil {
		return
	}
	switch sig.Name {
	case busName + ".ActionInvoked":
		if len(sig.Body) < 2 {
			return
		}
		id, ok1 := sig.Body[0].(uint32)
		key, ok2 := sig.Body[1].(string)
		if !ok1 || !ok2 {
			return
		}
		p.deliver(id, decodeAction(key))
	case busName + ".NotificationClosed":
		if len(sig.Body) < 1 {
			return
		}
		id, ok := sig.Body[0].(uint32)
		if !ok {
			return
		}
		p.deliver(id, presenter.ActionDismissed)
	}
}

func (p *Presenter) deliver(id uint32, a presenter.Action) {
	p.mu.Lock()
	ch := p.waiters[id]
	p.mu.Unlock()
	if ch == nil {
		return
	}
	// First signal wins; a Close following an action is dropped here.
	select {
	case ch <- response{action: a}:
	default:
	}
}

func decodeAction(key string) presenter.Action {
	switch key {
	case keyDefault:
		return presenter.ActionDefault
	case keyAcknowledge:
		return presenter.ActionAcknowledge
	case keyOpen:
		return presenter.ActionOpen
	default:
		return presenter.ActionDismissed
	}
}

func iconFor(c presenter.Category) string {
	switch c {
	case presenter.CategoryPullOpen:
		return "vcs-branch"
	case presenter.CategoryPullMerged:
		return "vcs-merge-request"
	case presenter.CategoryPullClosed:
		return "vcs-conflicting"
	case presenter.CategoryPullRequest:
		return "vcs-branch"
	default:
		return "github"
	}
}
