// Package presenter defines the interactive-notification surface consumed by
// the event lifecycle. Backends live in subpackages (desktop, telegram).
package presenter

import (
	"context"
	"fmt"
)

// Category selects the visual treatment of a notification.
type Category int

const (
	CategoryGeneric Category = iota
	CategoryPullRequest
	CategoryPullOpen
	CategoryPullMerged
	CategoryPullClosed
)

func (c Category) String() string {
	switch c {
	case CategoryPullRequest:
		return "pull-request"
	case CategoryPullOpen:
		return "pull-request-open"
	case CategoryPullMerged:
		return "pull-request-merged"
	case CategoryPullClosed:
		return "pull-request-closed"
	default:
		return "generic"
	}
}

// Action is the user's response to a presented notification, decoded at the
// backend boundary; core logic never sees backend action identifiers.
type Action int

const (
	ActionDefault Action = iota
	ActionAcknowledge
	ActionOpen
	ActionDismissed
)

func (a Action) String() string {
	switch a {
	case ActionDefault:
		return "default"
	case ActionAcknowledge:
		return "acknowledge"
	case ActionOpen:
		return "open"
	case ActionDismissed:
		return "dismissed"
	default:
		return "unknown"
	}
}

// Request describes one notification to present.
type Request struct {
	Title    string
	Body     string
	Category Category
}

// Handle identifies a presented notification within its backend.
type Handle interface{}

// Presenter is the notification widget contract.
//
// Await blocks until the user responds or ctx is cancelled; cancellation
// withdraws the notification best-effort and returns ctx.Err().
type Presenter interface {
	Present(ctx context.Context, req Request) (Handle, error)
	Await(ctx context.Context, h Handle) (Action, error)
	// Warn surfaces a best-effort, non-interactive diagnostic
	// (configuration or connectivity trouble) through the same channel.
	Warn(ctx context.Context, title, body string)
}

// Error reports a widget render failure. The lifecycle treats it as an
// immediate dismissal so the event still resolves.
type Error struct {
	Backend string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("presenter(%s): %v", e.Backend, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
