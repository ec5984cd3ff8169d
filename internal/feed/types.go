package feed

import "time"

// Reason codes GitHub attaches to a notification.
const (
	ReasonAssign          = "assign"
	ReasonAuthor          = "author"
	ReasonCIActivity      = "ci_activity"
	ReasonComment         = "comment"
	ReasonManual          = "manual"
	ReasonMention         = "mention"
	ReasonPush            = "push"
	ReasonReviewRequested = "review_requested"
	ReasonSecurityAlert   = "security_alert"
	ReasonStateChange     = "state_change"
	ReasonSubscribed      = "subscribed"
	ReasonTeamMention     = "team_mention"
	ReasonYourActivity    = "your_activity"
)

// AllReasons is the fixed list rendered in the per-repository reason menu.
var AllReasons = []string{
	ReasonAssign, ReasonAuthor, ReasonCIActivity, ReasonComment,
	ReasonManual, ReasonMention, ReasonPush, ReasonReviewRequested,
	ReasonSecurityAlert, ReasonStateChange, ReasonSubscribed,
	ReasonTeamMention, ReasonYourActivity,
}

// SubjectKind classifies what a notification points at.
type SubjectKind int

const (
	KindOther SubjectKind = iota
	KindIssue
	KindPullRequest
)

func (k SubjectKind) String() string {
	switch k {
	case KindIssue:
		return "issue"
	case KindPullRequest:
		return "pull-request"
	default:
		return "other"
	}
}

// Event is one inbound notification. Immutable once fetched; it lives for
// one dispatch cycle plus the lifecycle task it spawns.
type Event struct {
	ID     string
	Reason string
	Owner  string
	Repo   string
	// RepoFullName is "owner/repo" as rendered in notification titles.
	RepoFullName string

	Title      string
	Kind       SubjectKind
	SubjectURL string
	// LatestCommentURL is empty when the subject has no comment trail.
	LatestCommentURL string

	UpdatedAt time.Time
}

// Detail is the fetched subject detail. Either URL source may be present
// depending on subject kind (_links.html.href for PRs, html_url for issues).
type Detail struct {
	HTMLURL string
	State   string
	Merged  bool
}

// Comment is the fetched latest comment.
type Comment struct {
	HTMLURL string
}
