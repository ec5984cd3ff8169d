package snooze

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "ghnotifier/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Store is the SQLite-backed suppression-rule store.
// All methods are safe for concurrent use.
type Store struct {
	db  *sql.DB
	log logx.Logger
}

// Open opens (and creates/migrates) the database at cfg.Path.
// Schema creation is idempotent; opening an existing database is cheap.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("snooze: db path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	bt := cfg.BusyTimeout
	if bt <= 0 {
		bt = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", bt.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &Store{db: db, log: log}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, wrapErr("migrate", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// UpsertRepositoryObserved records that a repository exists in the inventory.
// It never overwrites an existing snooze. Reports whether a row was inserted.
func (s *Store) UpsertRepositoryObserved(ctx context.Context, owner, repo string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO snoozed_repositories(owner, repo) VALUES(?, ?)
		 ON CONFLICT(owner, repo) DO NOTHING`,
		owner, repo,
	)
	if err != nil {
		return false, wrapErr("upsert observed", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapErr("upsert observed", err)
	}
	return n > 0, nil
}

// SnoozeRepository sets or overwrites the snooze expiry for a repository.
func (s *Store) SnoozeRepository(ctx context.Context, owner, repo string, until time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snoozed_repositories(owner, repo, until) VALUES(?, ?, ?)
		 ON CONFLICT(owner, repo) DO UPDATE SET
		   until=excluded.until, updated_at=unixepoch('now')`,
		owner, repo, until.Unix(),
	)
	return wrapErr("snooze repository", err)
}

// UnsnoozeRepository deletes the repository row, reporting whether one existed.
func (s *Store) UnsnoozeRepository(ctx context.Context, owner, repo string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM snoozed_repositories WHERE owner=? AND repo=?`, owner, repo)
	if err != nil {
		return false, wrapErr("unsnooze repository", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapErr("unsnooze repository", err)
	}
	return n > 0, nil
}

// IsRepositorySnoozed reports whether a snooze row exists with until > now.
func (s *Store) IsRepositorySnoozed(ctx context.Context, owner, repo string, now time.Time) (bool, error) {
	var until sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT until FROM snoozed_repositories WHERE owner=? AND repo=?`,
		owner, repo,
	).Scan(&until)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrapErr("is repository snoozed", err)
	}
	return until.Valid && until.Int64 > now.Unix(), nil
}

// ToggleReason atomically flips the (owner, repo, reason) toggle and returns
// the new state (true = now suppressed). Two concurrent toggles on the same
// key cannot both insert; the second observes the first's effect.
func (s *Store) ToggleReason(ctx context.Context, owner, repo, reason string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, wrapErr("toggle reason", err)
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM snoozed_repository_reasons
		  WHERE owner=? AND repo=? AND reason=? LIMIT 1`,
		owner, repo, reason,
	).Scan(&one)

	var enabled bool
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO snoozed_repository_reasons(owner, repo, reason)
			 VALUES(?, ?, ?)`,
			owner, repo, reason)
		enabled = true
	case err == nil:
		_, err = tx.ExecContext(ctx,
			`DELETE FROM snoozed_repository_reasons
			  WHERE owner=? AND repo=? AND reason=?`,
			owner, repo, reason)
		enabled = false
	}
	if err != nil {
		return false, wrapErr("toggle reason", err)
	}
	if err := tx.Commit(); err != nil {
		return false, wrapErr("toggle reason", err)
	}
	return enabled, nil
}

// IsReasonSuppressed reports whether the permanent per-reason toggle is set.
func (s *Store) IsReasonSuppressed(ctx context.Context, owner, repo, reason string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM snoozed_repository_reasons
		  WHERE owner=? AND repo=? AND reason=? LIMIT 1`,
		owner, repo, reason,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrapErr("is reason suppressed", err)
	}
	return true, nil
}

// ShouldSuppress is the combined predicate used by the decision engine:
// repository snoozed past now OR reason toggled. Computed in one query so a
// concurrent toggle cannot flip between two separate checks.
func (s *Store) ShouldSuppress(ctx context.Context, owner, repo, reason string, now time.Time) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1
		   FROM (
		        SELECT 1 FROM snoozed_repositories
		         WHERE owner = ?1 AND repo = ?2 AND until > ?3
		        UNION ALL
		        SELECT 1 FROM snoozed_repository_reasons
		         WHERE owner = ?1 AND repo = ?2 AND reason = ?4
		       )
		  LIMIT 1`,
		owner, repo, now.Unix(), reason,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrapErr("should suppress", err)
	}
	return true, nil
}

// ListInventory returns all known repositories, alphabetical by repo name.
func (s *Store) ListInventory(ctx context.Context) ([]Repository, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT owner, repo FROM snoozed_repositories ORDER BY repo ASC`)
	if err != nil {
		return nil, wrapErr("list inventory", err)
	}
	defer rows.Close()

	var out []Repository
	for rows.Next() {
		var r Repository
		if err := rows.Scan(&r.Owner, &r.Repo); err != nil {
			return nil, wrapErr("list inventory", err)
		}
		out = append(out, r)
	}
	return out, wrapErr("list inventory", rows.Err())
}

// ListActiveSnoozes returns unexpired snoozes ordered by latest expiry first.
// Display only; correctness never depends on this list.
func (s *Store) ListActiveSnoozes(ctx context.Context, now time.Time) ([]ActiveSnooze, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT owner, repo, until FROM snoozed_repositories
		  WHERE until > ? ORDER BY until DESC`,
		now.Unix(),
	)
	if err != nil {
		return nil, wrapErr("list active snoozes", err)
	}
	defer rows.Close()

	var out []ActiveSnooze
	for rows.Next() {
		var (
			a  ActiveSnooze
			ts int64
		)
		if err := rows.Scan(&a.Owner, &a.Repo, &ts); err != nil {
			return nil, wrapErr("list active snoozes", err)
		}
		a.Until = time.Unix(ts, 0).UTC()
		out = append(out, a)
	}
	return out, wrapErr("list active snoozes", rows.Err())
}

// ReasonToggles returns the set of suppressed reasons for one repository.
func (s *Store) ReasonToggles(ctx context.Context, owner, repo string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT reason FROM snoozed_repository_reasons WHERE owner=? AND repo=?`,
		owner, repo,
	)
	if err != nil {
		return nil, wrapErr("reason toggles", err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var reason string
		if err := rows.Scan(&reason); err != nil {
			return nil, wrapErr("reason toggles", err)
		}
		out[reason] = true
	}
	return out, wrapErr("reason toggles", rows.Err())
}

// PruneExpired deletes repository snoozes with until <= now.
// Purely an optimization: IsRepositorySnoozed ignores expired rows anyway.
func (s *Store) PruneExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM snoozed_repositories WHERE until IS NOT NULL AND until <= ?`,
		now.Unix(),
	)
	if err != nil {
		return 0, wrapErr("prune expired", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapErr("prune expired", err)
	}
	if n > 0 {
		s.log.Debug("pruned expired snoozes", logx.Int64("rows", n))
	}
	return int(n), nil
}
