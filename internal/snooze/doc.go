// Package snooze persists notification-suppression rules in an embedded
// SQLite database: per-repository snoozes with an expiry instant, and
// permanent per-(repository, reason) toggles.
//
// The store exclusively owns the persisted rows; all mutation goes through
// its operations, and every operation is a single transaction so concurrent
// callers (dispatch loop vs. tray commands) always observe committed state.
package snooze
