package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/imyashkale/previewserver/internal/config"
	"github.com/imyashkale/previewserver/internal/identifier"
	"github.com/imyashkale/previewserver/internal/logger"
	"github.com/imyashkale/previewserver/internal/models"
)

// ErrMalformedEvent indicates a webhook payload is missing or mangling a
// field the service must route on
var ErrMalformedEvent = errors.New("malformed webhook event")

// previewOrchestrator is the slice of PreviewService the webhook flows drive
type previewOrchestrator interface {
	Upsert(ctx context.Context, apiKey, branch, prID string) (*models.PreviewUpsertResponse, error)
	Delete(ctx context.Context, apiKey, branch, prID string) error
	RedeployIfExists(ctx context.Context, apiKey, branch, prID string) error
	FrontendURL(id string) string
}

// azureAPI is the slice of the Azure DevOps client the webhook flows use
type azureAPI interface {
	ReplyInThread(ctx context.Context, repositoryID string, prID int64, threadID int64, content string) error
	GetBuild(ctx context.Context, buildID int64) (*models.Build, error)
	GetBuildTimeline(ctx context.Context, buildID int64) (*models.BuildTimeline, error)
	ListBuilds(ctx context.Context, definitionID int64, branch string, top int) ([]models.Build, error)
	GetCommit(ctx context.Context, repositoryID, commitID string) (*models.Commit, error)
}

// Notifier delivers alert messages
type Notifier interface {
	SendText(ctx context.Context, text string) error
}

// WebhookService routes Azure DevOps webhook events into preview lifecycle
// actions and build regression alerts
type WebhookService struct {
	previews previewOrchestrator
	azure    azureAPI
	slack    Notifier
	cfg      *config.Config
}

// NewWebhookService creates the webhook router. slack may be nil, in which
// case regression alerts are logged but not delivered.
func NewWebhookService(previews previewOrchestrator, azure azureAPI, slack Notifier, cfg *config.Config) *WebhookService {
	return &WebhookService{
		previews: previews,
		azure:    azure,
		slack:    slack,
		cfg:      cfg,
	}
}

// HandlePrComment reacts to slash commands posted as PR comments. Comments
// that are deleted, empty, or not commands are ignored without error.
func (s *WebhookService) HandlePrComment(ctx context.Context, apiKey string, event *models.PrCommentEvent) error {
	comment := event.Resource.Comment
	if comment.IsDeleted || strings.TrimSpace(comment.Content) == "" {
		return nil
	}

	cmd, err := models.ParseSlashCommand(comment.Content)
	if err != nil {
		if errors.Is(err, models.ErrNotACommand) {
			return nil
		}
		return err
	}

	pr := event.Resource.PullRequest
	if pr.PullRequestId == 0 {
		return fmt.Errorf("%w: missing pull request id", ErrMalformedEvent)
	}
	branch := identifier.StripRefsHeads(pr.SourceRefName)
	prID := strconv.FormatInt(pr.PullRequestId, 10)

	threadID, err := threadIDFromHref(comment.Links.Threads.Href)
	if err != nil {
		return err
	}

	log := logger.WithFields(map[string]interface{}{
		"pr_id":     prID,
		"branch":    branch,
		"thread_id": threadID,
	})

	switch cmd {
	case models.CommandPreview:
		log.Info("Handling /preview command")
		resp, err := s.previews.Upsert(ctx, apiKey, branch, prID)
		if err != nil {
			return err
		}
		id, _ := identifier.Derive(prID, branch)
		reply := fmt.Sprintf("Preview environment is being deployed: %s", s.previews.FrontendURL(id))
		if s.cfg.PreviewStatusURL != "" {
			reply += fmt.Sprintf("\n\nDeployment status: %s", s.cfg.PreviewStatusURL)
		}
		s.reply(ctx, pr.PullRequestId, threadID, reply)
		log.WithField("compose_id", resp.ComposeId).Info("Preview deployment triggered from comment")
		return nil

	case models.CommandDelete:
		log.Info("Handling /delete command")
		if err := s.previews.Delete(ctx, apiKey, branch, prID); err != nil {
			return err
		}
		s.reply(ctx, pr.PullRequestId, threadID, "Preview environment deleted.")
		return nil
	}

	return nil
}

// reply posts a thread comment best-effort: a failed reply never fails the
// action it reports on
func (s *WebhookService) reply(ctx context.Context, prID, threadID int64, content string) {
	if err := s.azure.ReplyInThread(ctx, s.cfg.AzdoRepositoryID, prID, threadID, content); err != nil {
		logger.WithFields(map[string]interface{}{
			"pr_id":     prID,
			"thread_id": threadID,
			"error":     err.Error(),
		}).Warn("Failed to reply in PR thread")
	}
}

// threadIDFromHref extracts the numeric thread id from the trailing path
// segment of a comment's threads link
func threadIDFromHref(href string) (int64, error) {
	trimmed := strings.TrimRight(href, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return 0, fmt.Errorf("%w: thread link %q has no path segments", ErrMalformedEvent, href)
	}
	id, err := strconv.ParseInt(trimmed[idx+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: thread link %q does not end in a numeric id", ErrMalformedEvent, href)
	}
	return id, nil
}

// HandlePrUpdated reacts to pull request updates: completion against the
// trunk branch tears the preview down, any other completion is a no-op (the
// PR is closed), and a non-terminal update redeploys an existing preview so
// it tracks the source branch.
func (s *WebhookService) HandlePrUpdated(ctx context.Context, apiKey string, event *models.PrUpdatedEvent) error {
	resource := event.Resource
	if resource.PullRequestId == 0 {
		return fmt.Errorf("%w: missing pull request id", ErrMalformedEvent)
	}
	branch := identifier.StripRefsHeads(resource.SourceRefName)
	prID := strconv.FormatInt(resource.PullRequestId, 10)

	if strings.EqualFold(resource.Status, "completed") {
		target := identifier.StripRefsHeads(resource.TargetRefName)
		if target == s.cfg.TrunkBranch {
			logger.WithFields(map[string]interface{}{
				"pr_id":  prID,
				"branch": branch,
			}).Info("PR completed, deleting preview")
			return s.previews.Delete(ctx, apiKey, branch, prID)
		}
		logger.WithFields(map[string]interface{}{
			"pr_id":  prID,
			"target": target,
		}).Debug("PR completed against non-trunk target, nothing to do")
		return nil
	}

	return s.previews.RedeployIfExists(ctx, apiKey, branch, prID)
}

// HandleBuildCompleted inspects a finished build for a failure of the E2E
// stage and alerts when that failure is a regression, i.e. the most recent
// prior build of the same definition and branch that ran the stage passed it.
// When history cannot be read the detector fails open and alerts anyway.
func (s *WebhookService) HandleBuildCompleted(ctx context.Context, event *models.BuildCompletedEvent) error {
	if event.Resource.Id == 0 {
		return fmt.Errorf("%w: missing build id", ErrMalformedEvent)
	}

	build, err := s.azure.GetBuild(ctx, event.Resource.Id)
	if err != nil {
		return err
	}
	// Either source may report the failure; Azure result casing varies
	if !strings.EqualFold(event.Resource.Result, "failed") && !strings.EqualFold(build.Result, "failed") {
		return nil
	}

	log := logger.WithFields(map[string]interface{}{
		"build_id": build.Id,
		"branch":   build.SourceBranch,
	})

	timeline, err := s.azure.GetBuildTimeline(ctx, build.Id)
	if err != nil {
		return err
	}
	if !stageFailed(timeline, s.cfg.E2EStageName) {
		log.Debug("Build failed outside the E2E stage, ignoring")
		return nil
	}

	if s.priorRunPassedStage(ctx, build) {
		s.alertRegression(ctx, build)
	} else {
		log.Info("E2E stage already failing on this branch, suppressing alert")
	}
	return nil
}

// priorRunPassedStage walks recent builds of the same definition and branch,
// newest first, looking for the last one that actually ran the E2E stage.
// Stage passed means the current failure is new; stage failed means the
// branch was already broken. Lookup errors report true so a real regression
// is never silently dropped.
func (s *WebhookService) priorRunPassedStage(ctx context.Context, build *models.Build) bool {
	if build.Definition == nil {
		return true
	}

	builds, err := s.azure.ListBuilds(ctx, build.Definition.Id, build.SourceBranch, s.cfg.RegressionLookback+1)
	if err != nil {
		logger.WithField("error", err.Error()).Warn("Failed to list prior builds, treating failure as regression")
		return true
	}

	examined := 0
	for _, prior := range builds {
		if prior.Id == build.Id {
			continue
		}
		if examined >= s.cfg.RegressionLookback {
			break
		}
		examined++

		timeline, err := s.azure.GetBuildTimeline(ctx, prior.Id)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"build_id": prior.Id,
				"error":    err.Error(),
			}).Warn("Failed to fetch prior build timeline, treating failure as regression")
			return true
		}

		if !stageRan(timeline, s.cfg.E2EStageName) {
			// Stage did not run in this build, keep walking
			continue
		}
		if stageFailed(timeline, s.cfg.E2EStageName) {
			return false
		}
		return true
	}

	// No prior build ran the stage at all
	return true
}

// A timeline carries several records per stage (stage, phase, job), so both
// predicates scan every record rather than stopping at the first name match.

// stageRan reports whether any timeline record carries the stage name
func stageRan(timeline *models.BuildTimeline, stageName string) bool {
	for _, record := range timeline.Records {
		if record.Name == stageName {
			return true
		}
	}
	return false
}

// stageFailed reports whether any record of the named stage failed
func stageFailed(timeline *models.BuildTimeline, stageName string) bool {
	for _, record := range timeline.Records {
		if record.Name == stageName && strings.EqualFold(record.Result, "failed") {
			return true
		}
	}
	return false
}

// alertRegression delivers the regression notification. Best-effort commit
// author lookup enriches the message when it succeeds.
func (s *WebhookService) alertRegression(ctx context.Context, build *models.Build) {
	author := ""
	if build.Repository != nil && build.SourceVersion != "" {
		commit, err := s.azure.GetCommit(ctx, build.Repository.Id, build.SourceVersion)
		if err != nil {
			logger.WithField("error", err.Error()).Warn("Failed to fetch commit author for alert")
		} else {
			author = commit.Author.Name
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, ":rotating_light: E2E regression on %s\n", identifier.StripRefsHeads(build.SourceBranch))
	fmt.Fprintf(&b, "Build %s (id %d) failed stage %q", build.BuildNumber, build.Id, s.cfg.E2EStageName)
	if author != "" {
		fmt.Fprintf(&b, "\nLast commit by %s", author)
	}
	if build.Links != nil && build.Links.Web != nil {
		fmt.Fprintf(&b, "\n%s", build.Links.Web.Href)
	}
	message := b.String()

	if s.slack == nil {
		logger.WithField("build_id", build.Id).Warn("Regression detected but no Slack webhook configured")
		return
	}
	if err := s.slack.SendText(ctx, message); err != nil {
		logger.WithFields(map[string]interface{}{
			"build_id": build.Id,
			"error":    err.Error(),
		}).Error("Failed to deliver regression alert")
	}
}
