package snooze

import (
	"time"
)

// Repository identifies one repository in the inventory.
type Repository struct {
	Owner string
	Repo  string
}

func (r Repository) String() string { return r.Owner + "/" + r.Repo }

// ActiveSnooze is a repository snooze that has not expired yet.
type ActiveSnooze struct {
	Owner string
	Repo  string
	Until time.Time
}

// Config configures the store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default (5s)
}

// StoreError wraps any storage-layer failure with the operation that hit it.
//
// Read-path callers must not treat a StoreError as "not snoozed"; the
// decision engine falls back to showing the notification instead.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return "snooze: " + e.Op + ": " + e.Err.Error() }
func (e *StoreError) Unwrap() error { return e.Err }

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
