package snooze

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "config.db")}, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestShouldSuppressCombinations(t *testing.T) {
	t.Parallel()
	now := time.Now()

	tests := []struct {
		name        string
		snoozeUntil time.Time // zero = no repo snooze
		toggle      bool
		want        bool
	}{
		{name: "no rules", want: false},
		{name: "repo snoozed", snoozeUntil: now.Add(time.Hour), want: true},
		{name: "repo snooze expired", snoozeUntil: now.Add(-time.Hour), want: false},
		{name: "reason toggled", toggle: true, want: true},
		{name: "both", snoozeUntil: now.Add(time.Hour), toggle: true, want: true},
		{name: "expired snooze but reason toggled", snoozeUntil: now.Add(-time.Hour), toggle: true, want: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := openTestStore(t)
			ctx := context.Background()

			if !tt.snoozeUntil.IsZero() {
				if err := s.SnoozeRepository(ctx, "acme", "widgets", tt.snoozeUntil); err != nil {
					t.Fatalf("SnoozeRepository: %v", err)
				}
			}
			if tt.toggle {
				if _, err := s.ToggleReason(ctx, "acme", "widgets", "ci_activity"); err != nil {
					t.Fatalf("ToggleReason: %v", err)
				}
			}

			got, err := s.ShouldSuppress(ctx, "acme", "widgets", "ci_activity", now)
			if err != nil {
				t.Fatalf("ShouldSuppress: %v", err)
			}
			if got != tt.want {
				t.Fatalf("ShouldSuppress = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShouldSuppressDifferentReasonNotAffected(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if _, err := s.ToggleReason(ctx, "acme", "widgets", "mention"); err != nil {
		t.Fatalf("ToggleReason: %v", err)
	}
	got, err := s.ShouldSuppress(ctx, "acme", "widgets", "ci_activity", now)
	if err != nil {
		t.Fatalf("ShouldSuppress: %v", err)
	}
	if got {
		t.Fatal("suppressed for a reason that was never toggled")
	}
}

func TestToggleReasonIsItsOwnInverse(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	on, err := s.ToggleReason(ctx, "acme", "widgets", "mention")
	if err != nil {
		t.Fatalf("ToggleReason: %v", err)
	}
	if !on {
		t.Fatal("first toggle should enable suppression")
	}
	if got, _ := s.IsReasonSuppressed(ctx, "acme", "widgets", "mention"); !got {
		t.Fatal("IsReasonSuppressed = false after enabling toggle")
	}

	off, err := s.ToggleReason(ctx, "acme", "widgets", "mention")
	if err != nil {
		t.Fatalf("ToggleReason: %v", err)
	}
	if off {
		t.Fatal("second toggle should disable suppression")
	}
	if got, _ := s.IsReasonSuppressed(ctx, "acme", "widgets", "mention"); got {
		t.Fatal("IsReasonSuppressed = true after disabling toggle")
	}
}

func TestToggleReasonConcurrent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	// An even number of toggles must land back on "not suppressed",
	// no matter how they interleave.
	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ToggleReason(ctx, "acme", "widgets", "push"); err != nil {
				t.Errorf("ToggleReason: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := s.IsReasonSuppressed(ctx, "acme", "widgets", "push")
	if err != nil {
		t.Fatalf("IsReasonSuppressed: %v", err)
	}
	if got {
		t.Fatalf("after %d toggles, reason still suppressed", n)
	}
}

func TestSnoozeRepositoryOverwrites(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.SnoozeRepository(ctx, "acme", "widgets", now.Add(time.Hour)); err != nil {
		t.Fatalf("SnoozeRepository: %v", err)
	}
	latest := now.Add(48 * time.Hour)
	if err := s.SnoozeRepository(ctx, "acme", "widgets", latest); err != nil {
		t.Fatalf("SnoozeRepository: %v", err)
	}

	active, err := s.ListActiveSnoozes(ctx, now)
	if err != nil {
		t.Fatalf("ListActiveSnoozes: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("got %d rows, want exactly 1 (unique-key upsert)", len(active))
	}
	if got := active[0].Until.Unix(); got != latest.Unix() {
		t.Fatalf("until = %d, want %d (last writer wins)", got, latest.Unix())
	}
}

func TestUpsertRepositoryObservedKeepsSnooze(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()
	until := now.Add(time.Hour)

	if err := s.SnoozeRepository(ctx, "acme", "widgets", until); err != nil {
		t.Fatalf("SnoozeRepository: %v", err)
	}
	inserted, err := s.UpsertRepositoryObserved(ctx, "acme", "widgets")
	if err != nil {
		t.Fatalf("UpsertRepositoryObserved: %v", err)
	}
	if inserted {
		t.Fatal("observing an existing repository must be a no-op")
	}
	snoozed, err := s.IsRepositorySnoozed(ctx, "acme", "widgets", now)
	if err != nil {
		t.Fatalf("IsRepositorySnoozed: %v", err)
	}
	if !snoozed {
		t.Fatal("observation overwrote the existing snooze")
	}
}

func TestUnsnoozeRepository(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	existed, err := s.UnsnoozeRepository(ctx, "acme", "widgets")
	if err != nil {
		t.Fatalf("UnsnoozeRepository: %v", err)
	}
	if existed {
		t.Fatal("reported deletion of a row that never existed")
	}

	if err := s.SnoozeRepository(ctx, "acme", "widgets", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SnoozeRepository: %v", err)
	}
	existed, err = s.UnsnoozeRepository(ctx, "acme", "widgets")
	if err != nil {
		t.Fatalf("UnsnoozeRepository: %v", err)
	}
	if !existed {
		t.Fatal("deletion of an existing row not reported")
	}
}

func TestPruneExpired(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.SnoozeRepository(ctx, "acme", "expired", now.Add(-time.Hour)); err != nil {
		t.Fatalf("SnoozeRepository: %v", err)
	}
	if err := s.SnoozeRepository(ctx, "acme", "future", now.Add(time.Hour)); err != nil {
		t.Fatalf("SnoozeRepository: %v", err)
	}
	// Inventory-only row (no until): must survive pruning.
	if _, err := s.UpsertRepositoryObserved(ctx, "acme", "observed"); err != nil {
		t.Fatalf("UpsertRepositoryObserved: %v", err)
	}

	removed, err := s.PruneExpired(ctx, now)
	if err != nil {
		t.Fatalf("PruneExpired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	inv, err := s.ListInventory(ctx)
	if err != nil {
		t.Fatalf("ListInventory: %v", err)
	}
	want := []Repository{{Owner: "acme", Repo: "future"}, {Owner: "acme", Repo: "observed"}}
	if len(inv) != len(want) {
		t.Fatalf("inventory = %v, want %v", inv, want)
	}
	for i := range want {
		if inv[i] != want[i] {
			t.Fatalf("inventory[%d] = %v, want %v", i, inv[i], want[i])
		}
	}
}

func TestListInventoryOrder(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for _, r := range []Repository{
		{Owner: "zeta", Repo: "zebra"},
		{Owner: "acme", Repo: "anvil"},
		{Owner: "mid", Repo: "mango"},
	} {
		if _, err := s.UpsertRepositoryObserved(ctx, r.Owner, r.Repo); err != nil {
			t.Fatalf("UpsertRepositoryObserved: %v", err)
		}
	}

	inv, err := s.ListInventory(ctx)
	if err != nil {
		t.Fatalf("ListInventory: %v", err)
	}
	var got []string
	for _, r := range inv {
		got = append(got, r.Repo)
	}
	want := []string{"anvil", "mango", "zebra"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("inventory order = %v, want %v", got, want)
		}
	}
}

func TestListActiveSnoozesOrder(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.SnoozeRepository(ctx, "acme", "soon", now.Add(time.Hour)); err != nil {
		t.Fatalf("SnoozeRepository: %v", err)
	}
	if err := s.SnoozeRepository(ctx, "acme", "later", now.Add(48*time.Hour)); err != nil {
		t.Fatalf("SnoozeRepository: %v", err)
	}

	active, err := s.ListActiveSnoozes(ctx, now)
	if err != nil {
		t.Fatalf("ListActiveSnoozes: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("got %d active snoozes, want 2", len(active))
	}
	// Descending until: the snooze expiring last comes first.
	if active[0].Repo != "later" || active[1].Repo != "soon" {
		t.Fatalf("order = [%s %s], want [later soon]", active[0].Repo, active[1].Repo)
	}
}
