package collector

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v47/github"
	"github.com/hashicorp/go-hclog"
	"github.com/huangsam/codeaudit/internal/classify"
	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/schema"
	"golang.org/x/oauth2"
)

const githubPerPage = 100

// CodeRabbit reads review-bot comments on a pull request from GitHub. Every
// comment goes through the classifier into the task pipeline; accepted ones
// also become run findings.
type CodeRabbit struct {
	cfg    contract.CodeRabbitConfig
	client *github.Client
	store  Store
	logger hclog.Logger
}

var _ contract.Collector = &CodeRabbit{} // Compile-time check

// botComment is a review or issue comment reduced to what the pipeline uses.
type botComment struct {
	sourceID string
	path     string
	line     int
	body     string
}

// NewCodeRabbit creates a CodeRabbit collector.
func NewCodeRabbit(cfg contract.CodeRabbitConfig, timeout time.Duration, st Store, log hclog.Logger) *CodeRabbit {
	httpClient := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.GitHubToken}))
	httpClient.Timeout = timeout
	client := github.NewClient(httpClient)
	if cfg.GitHubBaseURL != "" {
		base := cfg.GitHubBaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		if u, err := url.Parse(base); err == nil {
			client.BaseURL = u
		}
	}
	return &CodeRabbit{cfg: cfg, client: client, store: st, logger: log}
}

// Source implements contract.Collector.
func (c *CodeRabbit) Source() schema.Source { return schema.SourceCodeRabbit }

// Collect implements contract.Collector.
func (c *CodeRabbit) Collect(ctx context.Context, rc contract.RunContext) (int, error) {
	if c.cfg.GitHubToken == "" {
		return 0, configError(c.Source(), "missing github token")
	}
	if rc.PRNumber <= 0 {
		return 0, configError(c.Source(), "a pull request number is required")
	}
	owner, name, err := splitRepo(c.Source(), rc.Repo)
	if err != nil {
		return 0, err
	}

	comments, err := c.fetch(ctx, owner, name, rc.PRNumber)
	if err != nil {
		return 0, err
	}
	c.logger.Debug("fetched bot comments", "count", len(comments))

	var accepted []acceptedComment
	for _, comment := range comments {
		ac, ok, err := c.process(ctx, rc, comment)
		if err != nil {
			return 0, err
		}
		if ok {
			accepted = append(accepted, ac)
		}
	}

	// A run finding is a duplicate only when its canonical record is in this run too.
	inRun := make(map[int64]bool, len(accepted))
	for _, ac := range accepted {
		inRun[ac.processedID] = true
	}
	count := 0
	for _, ac := range accepted {
		ac.finding.IsDuplicate = ac.canonicalID != 0 && inRun[ac.canonicalID]
		if _, err := c.store.InsertFinding(ctx, ac.finding); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// acceptedComment is a comment that passed classification, waiting to be
// added to the run.
type acceptedComment struct {
	processedID int64
	canonicalID int64
	finding     schema.NewFinding
}

// process classifies one comment and records it in the task pipeline. It
// returns the run finding when the comment is accepted.
func (c *CodeRabbit) process(ctx context.Context, rc contract.RunContext, comment botComment) (acceptedComment, bool, error) {
	original := codeRabbitSeverity(comment.body)
	res := classify.Classify(comment.body, original)

	id, inserted, err := c.store.UpsertProcessed(ctx, schema.NewProcessedFinding{
		Source:           c.Source(),
		SourceID:         comment.sourceID,
		PRNumber:         rc.PRNumber,
		Path:             comment.path,
		Line:             comment.line,
		Severity:         res.Severity,
		OriginalSeverity: original,
		Category:         res.Category,
		Description:      res.Description,
		IsFalsePositive:  res.FalsePositive,
		FPReason:         res.Reason,
	})
	if err != nil {
		return acceptedComment{}, false, err
	}

	var canonicalID int64
	if inserted {
		if res.FalsePositive {
			c.logger.Debug("filtered comment", "source_id", comment.sourceID, "reason", res.Reason)
			return acceptedComment{}, false, nil
		}
		canonical, found, err := c.store.CanonicalProcessed(ctx, c.Source(), comment.path, res.Description, id)
		if err != nil {
			return acceptedComment{}, false, err
		}
		if found {
			if err := c.store.MarkProcessedDuplicate(ctx, id, canonical); err != nil {
				return acceptedComment{}, false, err
			}
			canonicalID = canonical
		}
	} else {
		// Seen in an earlier run: the stored verdict stands.
		existing, err := c.store.GetProcessed(ctx, id)
		if err != nil {
			return acceptedComment{}, false, err
		}
		if existing.IsFalsePositive {
			return acceptedComment{}, false, nil
		}
		if existing.IsDuplicate {
			canonicalID = existing.DuplicateOf
		}
	}

	return acceptedComment{
		processedID: id,
		canonicalID: canonicalID,
		finding: schema.NewFinding{
			RunID:       rc.RunID,
			Source:      c.Source(),
			Severity:    res.Severity,
			Path:        comment.path,
			Line:        comment.line,
			Description: res.Description,
			Category:    res.Category,
		},
	}, true, nil
}

// fetch reads inline review comments then repo-wide issue comments written
// by the bot login.
func (c *CodeRabbit) fetch(ctx context.Context, owner, name string, pr int) ([]botComment, error) {
	var comments []botComment

	reviewOpts := &github.PullRequestListCommentsOptions{ListOptions: github.ListOptions{PerPage: githubPerPage}}
	for {
		page, resp, err := c.client.PullRequests.ListComments(ctx, owner, name, pr, reviewOpts)
		if err != nil {
			return nil, upstreamError(c.Source(), fmt.Errorf("failed to list review comments: %w", err))
		}
		for _, rc := range page {
			if !c.isBot(rc.GetUser()) {
				continue
			}
			line := rc.GetLine()
			if line == 0 {
				line = rc.GetOriginalLine()
			}
			comments = append(comments, botComment{
				sourceID: fmt.Sprintf("review-comment:%d", rc.GetID()),
				path:     rc.GetPath(),
				line:     line,
				body:     rc.GetBody(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		reviewOpts.Page = resp.NextPage
	}

	issueOpts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: githubPerPage}}
	for {
		page, resp, err := c.client.Issues.ListComments(ctx, owner, name, pr, issueOpts)
		if err != nil {
			return nil, upstreamError(c.Source(), fmt.Errorf("failed to list issue comments: %w", err))
		}
		for _, ic := range page {
			if !c.isBot(ic.GetUser()) {
				continue
			}
			comments = append(comments, botComment{
				sourceID: fmt.Sprintf("issue-comment:%d", ic.GetID()),
				body:     ic.GetBody(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		issueOpts.Page = resp.NextPage
	}

	return comments, nil
}

func (c *CodeRabbit) isBot(user *github.User) bool {
	return strings.EqualFold(user.GetLogin(), c.cfg.BotLogin)
}
