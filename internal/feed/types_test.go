package feed

import (
	"testing"

	"github.com/google/go-github/v58/github"
)

func TestToEvent(t *testing.T) {
	t.Parallel()
	n := &github.Notification{
		ID:     github.String("1234"),
		Reason: github.String(ReasonReviewRequested),
		Repository: &github.Repository{
			Owner:    &github.User{Login: github.String("acme")},
			Name:     github.String("widgets"),
			FullName: github.String("acme/widgets"),
		},
		Subject: &github.NotificationSubject{
			Title:            github.String("Fix flaky test"),
			Type:             github.String("PullRequest"),
			URL:              github.String("https://api.github.com/repos/acme/widgets/pulls/7"),
			LatestCommentURL: github.String("https://api.github.com/repos/acme/widgets/issues/comments/9"),
		},
	}

	ev, ok := toEvent(n)
	if !ok {
		t.Fatal("toEvent rejected a well-formed notification")
	}
	if ev.ID != "1234" || ev.Owner != "acme" || ev.Repo != "widgets" {
		t.Fatalf("unexpected identity fields: %+v", ev)
	}
	if ev.Kind != KindPullRequest {
		t.Fatalf("Kind = %v, want %v", ev.Kind, KindPullRequest)
	}
	if ev.LatestCommentURL == "" {
		t.Fatal("latest comment URL dropped")
	}
}

func TestToEventFallsBackToFullName(t *testing.T) {
	t.Parallel()
	n := &github.Notification{
		ID:         github.String("1"),
		Reason:     github.String(ReasonMention),
		Repository: &github.Repository{FullName: github.String("acme/widgets")},
		Subject:    &github.NotificationSubject{Type: github.String("Issue")},
	}
	ev, ok := toEvent(n)
	if !ok {
		t.Fatal("toEvent rejected notification with only full_name")
	}
	if ev.Owner != "acme" || ev.Repo != "widgets" {
		t.Fatalf("owner/repo = %s/%s, want acme/widgets", ev.Owner, ev.Repo)
	}
	if ev.Kind != KindIssue {
		t.Fatalf("Kind = %v, want %v", ev.Kind, KindIssue)
	}
}

func TestToEventRejectsMalformed(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		n    *github.Notification
	}{
		{name: "nil", n: nil},
		{name: "no id", n: &github.Notification{Repository: &github.Repository{}, Subject: &github.NotificationSubject{}}},
		{name: "no repository", n: &github.Notification{ID: github.String("1"), Subject: &github.NotificationSubject{}}},
		{name: "unsplittable name", n: &github.Notification{
			ID:         github.String("1"),
			Repository: &github.Repository{FullName: github.String("nameonly")},
			Subject:    &github.NotificationSubject{},
		}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, ok := toEvent(tt.n); ok {
				t.Fatal("malformed notification accepted")
			}
		})
	}
}
