package decide

import (
	"context"
	"errors"
	"testing"
	"time"

	"ghnotifier/internal/feed"
	"ghnotifier/internal/snooze"

	logx "ghnotifier/pkg/logx"
)

type fakeRules struct {
	suppressed map[string]bool
	err        error
	observed   []string
}

func (f *fakeRules) ShouldSuppress(_ context.Context, owner, repo, reason string, _ time.Time) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.suppressed[owner+"/"+repo+"/"+reason], nil
}

func (f *fakeRules) UpsertRepositoryObserved(_ context.Context, owner, repo string) (bool, error) {
	key := owner + "/" + repo
	for _, o := range f.observed {
		if o == key {
			return false, nil
		}
	}
	f.observed = append(f.observed, key)
	return true, nil
}

func event(owner, repo, reason string) feed.Event {
	return feed.Event{
		ID: "1", Reason: reason,
		Owner: owner, Repo: repo, RepoFullName: owner + "/" + repo,
	}
}

func TestDecideSuppressedBecomesAutoAcknowledge(t *testing.T) {
	t.Parallel()
	rules := &fakeRules{suppressed: map[string]bool{"acme/widgets/ci_activity": true}}
	e := NewEngine(rules, nil, logx.Nop())

	got := e.Decide(context.Background(), event("acme", "widgets", "ci_activity"), time.Now())
	if got != AutoAcknowledge {
		t.Fatalf("verdict = %v, want %v", got, AutoAcknowledge)
	}
}

func TestDecideNoRulesShows(t *testing.T) {
	t.Parallel()
	e := NewEngine(&fakeRules{}, nil, logx.Nop())

	got := e.Decide(context.Background(), event("acme", "widgets", "ci_activity"), time.Now())
	if got != Show {
		t.Fatalf("verdict = %v, want %v", got, Show)
	}
}

func TestDecideStoreErrorDegradesToShow(t *testing.T) {
	t.Parallel()
	rules := &fakeRules{err: &snooze.StoreError{Op: "should suppress", Err: errors.New("disk gone")}}
	e := NewEngine(rules, nil, logx.Nop())

	got := e.Decide(context.Background(), event("acme", "widgets", "mention"), time.Now())
	if got != Show {
		t.Fatalf("verdict = %v, want %v (errors must not suppress)", got, Show)
	}
}

func TestDecideRecordsInventory(t *testing.T) {
	t.Parallel()
	rules := &fakeRules{}
	e := NewEngine(rules, nil, logx.Nop())
	ctx := context.Background()

	e.Decide(ctx, event("acme", "widgets", "mention"), time.Now())
	e.Decide(ctx, event("acme", "widgets", "comment"), time.Now())
	e.Decide(ctx, event("acme", "anvil", "mention"), time.Now())

	if len(rules.observed) != 2 {
		t.Fatalf("observed = %v, want 2 unique repositories", rules.observed)
	}
}

// Against the real store: repository snoozed one hour into the future.
func TestDecideAgainstSQLiteStore(t *testing.T) {
	t.Parallel()
	s, err := snooze.Open(snooze.Config{Path: t.TempDir() + "/config.db"}, logx.Nop())
	if err != nil {
		t.Fatalf("snooze.Open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	now := time.Now()
	e := NewEngine(s, nil, logx.Nop())
	ev := event("acme", "widgets", "ci_activity")

	if got := e.Decide(ctx, ev, now); got != Show {
		t.Fatalf("verdict with no rules = %v, want %v", got, Show)
	}

	if err := s.SnoozeRepository(ctx, "acme", "widgets", now.Add(time.Hour)); err != nil {
		t.Fatalf("SnoozeRepository: %v", err)
	}
	if got := e.Decide(ctx, ev, now); got != AutoAcknowledge {
		t.Fatalf("verdict with active snooze = %v, want %v", got, AutoAcknowledge)
	}
}
