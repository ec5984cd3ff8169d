package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ghnotifier/internal/decide"
	"ghnotifier/internal/feed"
	"ghnotifier/internal/lifecycle"
	"ghnotifier/internal/presenter"
	"ghnotifier/internal/runtime/supervisor"
	"ghnotifier/internal/snooze"

	logx "ghnotifier/pkg/logx"
)

type scriptedFeed struct {
	mu     sync.Mutex
	events []feed.Event
	err    error
	acked  []string
	since  []time.Time
}

func (s *scriptedFeed) ListEvents(_ context.Context, since time.Time) ([]feed.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.since = append(s.since, since)
	if s.err != nil {
		return nil, s.err
	}
	return s.events, nil
}

func (s *scriptedFeed) FetchDetail(context.Context, string) (*feed.Detail, error) {
	return nil, nil
}

func (s *scriptedFeed) FetchComment(context.Context, string) (*feed.Comment, error) {
	return nil, nil
}

func (s *scriptedFeed) Acknowledge(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acked = append(s.acked, id)
	return true, nil
}

func (s *scriptedFeed) ackedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.acked...)
}

type countingPresenter struct {
	mu        sync.Mutex
	presented []presenter.Request
}

func (p *countingPresenter) Present(_ context.Context, req presenter.Request) (presenter.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.presented = append(p.presented, req)
	return len(p.presented), nil
}

func (p *countingPresenter) Await(context.Context, presenter.Handle) (presenter.Action, error) {
	return presenter.ActionAcknowledge, nil
}

func (p *countingPresenter) Warn(context.Context, string, string) {}

func (p *countingPresenter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.presented)
}

func TestCheckpointRoundTrip(t *testing.T) {
	t.Parallel()
	c := NewCheckpoint(filepath.Join(t.TempDir(), "last_check"))

	if got, err := c.Load(); err != nil || !got.IsZero() {
		t.Fatalf("cold Load = (%v, %v), want zero time", got, err)
	}

	want := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	if err := c.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := c.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("Load = %v, want %v", got, want)
	}
}

func TestCheckpointRejectsGarbage(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "last_check")
	c := NewCheckpoint(path)
	if err := os.WriteFile(path, []byte("not a timestamp"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Load(); err == nil {
		t.Fatal("Load accepted garbage")
	}
}

// One cycle against the real store: a snoozed repository and a toggled
// reason are acknowledged without presentation; the clean event is shown.
func TestCycleEndToEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	store, err := snooze.Open(snooze.Config{Path: filepath.Join(dir, "config.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("snooze.Open: %v", err)
	}
	defer store.Close()

	if err := store.SnoozeRepository(ctx, "acme", "widgets", time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, err := store.ToggleReason(ctx, "acme", "anvil", "ci_activity"); err != nil {
		t.Fatal(err)
	}

	client := &scriptedFeed{events: []feed.Event{
		{ID: "1", Reason: "mention", Owner: "acme", Repo: "widgets", RepoFullName: "acme/widgets"},
		{ID: "2", Reason: "ci_activity", Owner: "acme", Repo: "anvil", RepoFullName: "acme/anvil"},
		{ID: "3", Reason: "mention", Owner: "acme", Repo: "rocket", RepoFullName: "acme/rocket"},
	}}
	pres := &countingPresenter{}

	sup := supervisor.New(ctx)
	engine := decide.NewEngine(store, nil, logx.Nop())
	runner := lifecycle.NewRunner(client, pres, func(string) error { return nil },
		nil, lifecycle.Config{ResponseTimeout: time.Second}, logx.Nop())
	ckpt := NewCheckpoint(filepath.Join(dir, "last_check"))
	loop := New(client, engine, runner, ckpt, sup, nil,
		Options{PacingDelay: time.Millisecond}, logx.Nop())

	before := time.Now()
	next := loop.cycle(ctx, time.Time{})
	if next.Before(before.Add(-time.Second)) {
		t.Fatalf("watermark did not advance: %v", next)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	sup.Cancel()
	if err := sup.Wait(waitCtx); err != nil {
		t.Fatalf("supervisor: %v", err)
	}

	if got := pres.count(); got != 1 {
		t.Fatalf("presented %d notifications, want 1 (only the clean event)", got)
	}
	acked := client.ackedIDs()
	if len(acked) != 3 {
		t.Fatalf("acked = %v, want all three events resolved", acked)
	}

	saved, err := ckpt.Load()
	if err != nil || saved.IsZero() {
		t.Fatalf("checkpoint after cycle = (%v, %v), want a saved watermark", saved, err)
	}
}

func TestCycleFeedErrorKeepsWatermark(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	client := &scriptedFeed{err: errors.New("503 unicorn")}
	sup := supervisor.New(ctx)
	engine := decide.NewEngine(&noopRules{}, nil, logx.Nop())
	runner := lifecycle.NewRunner(client, &countingPresenter{}, func(string) error { return nil },
		nil, lifecycle.Config{}, logx.Nop())
	ckpt := NewCheckpoint(filepath.Join(dir, "last_check"))
	loop := New(client, engine, runner, ckpt, sup, nil, Options{}, logx.Nop())

	since := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if got := loop.cycle(ctx, since); !got.Equal(since) {
		t.Fatalf("watermark = %v, want unchanged %v", got, since)
	}
	if saved, _ := ckpt.Load(); !saved.IsZero() {
		t.Fatalf("checkpoint written on a failed pull: %v", saved)
	}
}

type noopRules struct{}

func (noopRules) ShouldSuppress(context.Context, string, string, string, time.Time) (bool, error) {
	return false, nil
}

func (noopRules) UpsertRepositoryObserved(context.Context, string, string) (bool, error) {
	return false, nil
}
