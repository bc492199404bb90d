package models

// Azure DevOps webhook payloads and REST shapes, trimmed to the fields this
// service routes on.

// Webhook event type discriminators
const (
	EventTypePrComment      = "ms.vss-code.git-pullrequest-comment-event"
	EventTypePrUpdated      = "git.pullrequest.updated"
	EventTypeBuildComplete  = "build.complete"
	EventTypeBuildCompleted = "build.completed"
)

// PrCommentEvent is the pull request comment webhook payload
type PrCommentEvent struct {
	EventType string            `json:"eventType"`
	Resource  PrCommentResource `json:"resource"`
}

// PrCommentResource carries the comment and its pull request
type PrCommentResource struct {
	Comment     PrComment   `json:"comment"`
	PullRequest PullRequest `json:"pullRequest"`
}

// PrComment is a single comment within a PR thread
type PrComment struct {
	Content   string         `json:"content,omitempty"`
	IsDeleted bool           `json:"isDeleted,omitempty"`
	Links     PrCommentLinks `json:"_links"`
}

// PrCommentLinks holds the hyperlinks attached to a comment; the threads
// link's trailing path segment is the numeric thread id
type PrCommentLinks struct {
	Self       *Href `json:"self,omitempty"`
	Repository *Href `json:"repository,omitempty"`
	Threads    Href  `json:"threads"`
}

// Href is a single hyperlink
type Href struct {
	Href string `json:"href"`
}

// PullRequest identifies the PR a comment belongs to
type PullRequest struct {
	PullRequestId int64  `json:"pullRequestId"`
	SourceRefName string `json:"sourceRefName"`
}

// PrUpdatedEvent is the pull request updated webhook payload (covers both
// push notifications and status changes)
type PrUpdatedEvent struct {
	EventType string            `json:"eventType"`
	Resource  PrUpdatedResource `json:"resource"`
}

// PrUpdatedResource carries the updated PR's refs and status
type PrUpdatedResource struct {
	PullRequestId int64  `json:"pullRequestId"`
	SourceRefName string `json:"sourceRefName"`
	TargetRefName string `json:"targetRefName,omitempty"`
	Status        string `json:"status,omitempty"`
}

// BuildCompletedEvent is the build completion webhook payload
type BuildCompletedEvent struct {
	EventType string        `json:"eventType"`
	Resource  BuildResource `json:"resource"`
}

// BuildResource identifies the completed build and its result
type BuildResource struct {
	Id     int64  `json:"id"`
	Result string `json:"result,omitempty"`
}

// Build is the REST representation of a single pipeline build
type Build struct {
	Id            int64            `json:"id"`
	BuildNumber   string           `json:"buildNumber,omitempty"`
	Result        string           `json:"result,omitempty"`
	SourceBranch  string           `json:"sourceBranch,omitempty"`
	SourceVersion string           `json:"sourceVersion,omitempty"`
	Definition    *BuildDefinition `json:"definition,omitempty"`
	Repository    *BuildRepository `json:"repository,omitempty"`
	Links         *BuildLinks      `json:"_links,omitempty"`
}

// BuildDefinition identifies the pipeline a build belongs to
type BuildDefinition struct {
	Id int64 `json:"id"`
}

// BuildRepository identifies the source repository of a build
type BuildRepository struct {
	Id string `json:"id"`
}

// BuildLinks holds build hyperlinks; Web is the human-facing page
type BuildLinks struct {
	Web *Href `json:"web,omitempty"`
}

// BuildTimeline is the stage/job record list for one build
type BuildTimeline struct {
	Records []TimelineRecord `json:"records"`
}

// TimelineRecord is one stage, job or task within a build timeline
type TimelineRecord struct {
	Name   string `json:"name"`
	Result string `json:"result,omitempty"`
}

// Commit is the REST representation of a git commit
type Commit struct {
	CommitId string       `json:"commitId"`
	Author   CommitAuthor `json:"author"`
}

// CommitAuthor names the commit author
type CommitAuthor struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}
