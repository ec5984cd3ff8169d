package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v58/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	logx "ghnotifier/pkg/logx"
)

// Client is the narrow request/response surface the core consumes.
// All failures are transient from the caller's point of view: the dispatch
// loop degrades to empty results and lifecycles degrade to absent details.
type Client interface {
	// ListEvents returns unread notifications updated since the given
	// instant. A zero since lists everything unread.
	ListEvents(ctx context.Context, since time.Time) ([]Event, error)
	// FetchDetail fetches subject detail by API URL. (nil, nil) when the
	// subject has no fetchable detail.
	FetchDetail(ctx context.Context, url string) (*Detail, error)
	// FetchComment fetches a comment by API URL.
	FetchComment(ctx context.Context, url string) (*Comment, error)
	// Acknowledge marks the notification thread read upstream.
	Acknowledge(ctx context.Context, id string) (bool, error)
}

// Config configures the GitHub-backed client.
type Config struct {
	Token string
	// BaseURL overrides the API endpoint (GitHub Enterprise, tests).
	BaseURL string
	// RatePerSec caps outbound API calls. Default 3.
	RatePerSec int
}

type githubClient struct {
	gh  *github.Client
	lim *rate.Limiter
	log logx.Logger
}

// New builds a Client talking to the GitHub API.
func New(ctx context.Context, cfg Config, log logx.Logger) (Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("feed: github token is required (config github.token or GITHUB_TOKEN)")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	gh := github.NewClient(oauth2.NewClient(ctx, ts))
	if cfg.BaseURL != "" {
		var err error
		gh, err = gh.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("feed: base url: %w", err)
		}
	}

	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 3
	}
	return &githubClient{
		gh:  gh,
		lim: rate.NewLimiter(rate.Limit(rps), rps),
		log: log,
	}, nil
}

func (c *githubClient) ListEvents(ctx context.Context, since time.Time) ([]Event, error) {
	opt := &github.NotificationListOptions{
		Since:       since,
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var out []Event
	for {
		if err := c.lim.Wait(ctx); err != nil {
			return nil, err
		}
		notifs, resp, err := c.gh.Activity.ListNotifications(ctx, opt)
		if err != nil {
			return nil, fmt.Errorf("list notifications: %w", err)
		}
		for _, n := range notifs {
			ev, ok := toEvent(n)
			if !ok {
				c.log.Debug("skipping malformed notification", logx.String("id", n.GetID()))
				continue
			}
			out = append(out, ev)
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return out, nil
}

func (c *githubClient) FetchDetail(ctx context.Context, url string) (*Detail, error) {
	if url == "" {
		return nil, nil
	}
	var dto detailDTO
	if err := c.getJSON(ctx, url, &dto); err != nil {
		return nil, fmt.Errorf("fetch detail: %w", err)
	}
	d := &Detail{State: dto.State, HTMLURL: dto.HTMLURL}
	if dto.Merged != nil {
		d.Merged = *dto.Merged
	}
	if d.HTMLURL == "" && dto.Links != nil {
		d.HTMLURL = dto.Links.HTML.Href
	}
	return d, nil
}

func (c *githubClient) FetchComment(ctx context.Context, url string) (*Comment, error) {
	if url == "" {
		return nil, nil
	}
	var dto commentDTO
	if err := c.getJSON(ctx, url, &dto); err != nil {
		return nil, fmt.Errorf("fetch comment: %w", err)
	}
	return &Comment{HTMLURL: dto.HTMLURL}, nil
}

func (c *githubClient) Acknowledge(ctx context.Context, id string) (bool, error) {
	if err := c.lim.Wait(ctx); err != nil {
		return false, err
	}
	if _, err := c.gh.Activity.MarkThreadRead(ctx, id); err != nil {
		return false, fmt.Errorf("mark thread read: %w", err)
	}
	return true, nil
}

// getJSON fetches an arbitrary API URL through the authenticated client.
// Notification subjects carry absolute API URLs, so requests can't go
// through the typed endpoint helpers.
func (c *githubClient) getJSON(ctx context.Context, url string, v any) error {
	if err := c.lim.Wait(ctx); err != nil {
		return err
	}
	req, err := c.gh.NewRequest("GET", url, nil)
	if err != nil {
		return err
	}
	_, err = c.gh.Do(ctx, req, v)
	return err
}

type detailDTO struct {
	State   string `json:"state"`
	Merged  *bool  `json:"merged,omitempty"`
	HTMLURL string `json:"html_url"`
	Links   *struct {
		HTML struct {
			Href string `json:"href"`
		} `json:"html"`
	} `json:"_links"`
}

type commentDTO struct {
	HTMLURL string `json:"html_url"`
}

func toEvent(n *github.Notification) (Event, bool) {
	if n == nil || n.GetID() == "" || n.GetRepository() == nil || n.GetSubject() == nil {
		return Event{}, false
	}
	repo := n.GetRepository()
	owner := repo.GetOwner().GetLogin()
	name := repo.GetName()
	full := repo.GetFullName()
	if owner == "" || name == "" {
		// Fall back to splitting "owner/name".
		if i := strings.IndexByte(full, '/'); i > 0 {
			owner, name = full[:i], full[i+1:]
		} else {
			return Event{}, false
		}
	}
	if full == "" {
		full = owner + "/" + name
	}

	sub := n.GetSubject()
	return Event{
		ID:               n.GetID(),
		Reason:           n.GetReason(),
		Owner:            owner,
		Repo:             name,
		RepoFullName:     full,
		Title:            sub.GetTitle(),
		Kind:             kindOf(sub.GetType()),
		SubjectURL:       sub.GetURL(),
		LatestCommentURL: sub.GetLatestCommentURL(),
		UpdatedAt:        n.GetUpdatedAt().Time,
	}, true
}

func kindOf(subjectType string) SubjectKind {
	switch subjectType {
	case "PullRequest":
		return KindPullRequest
	case "Issue":
		return KindIssue
	default:
		return KindOther
	}
}
