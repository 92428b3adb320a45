package collector

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-hclog"
	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/schema"
)

// SonarCloud reads open issues from the SonarCloud issues search API.
type SonarCloud struct {
	cfg    contract.SonarConfig
	client *resty.Client
	store  contract.FindingStore
	logger hclog.Logger
}

var _ contract.Collector = &SonarCloud{} // Compile-time check

type sonarIssue struct {
	Key       string `json:"key"`
	Rule      string `json:"rule"`
	Severity  string `json:"severity"`
	Component string `json:"component"`
	Line      int    `json:"line"`
	Message   string `json:"message"`
	Type      string `json:"type"`
}

type sonarSearchResult struct {
	Paging struct {
		PageIndex int `json:"pageIndex"`
		PageSize  int `json:"pageSize"`
		Total     int `json:"total"`
	} `json:"paging"`
	Issues []sonarIssue `json:"issues"`
}

// NewSonarCloud creates a SonarCloud collector.
func NewSonarCloud(cfg contract.SonarConfig, timeout time.Duration, st contract.FindingStore, log hclog.Logger) *SonarCloud {
	client := newRestyClient(cfg.BaseURL, timeout, log)
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	return &SonarCloud{cfg: cfg, client: client, store: st, logger: log}
}

// Source implements contract.Collector.
func (s *SonarCloud) Source() schema.Source { return schema.SourceSonarCloud }

// Collect implements contract.Collector.
func (s *SonarCloud) Collect(ctx context.Context, rc contract.RunContext) (int, error) {
	if s.cfg.Token == "" {
		return 0, configError(s.Source(), "missing sonar token")
	}
	if s.cfg.Project == "" {
		return 0, configError(s.Source(), "missing sonar project key")
	}

	issues, err := s.fetch(ctx, rc)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("fetched issues", "count", len(issues))

	findings := make([]schema.NewFinding, 0, len(issues))
	for _, issue := range issues {
		findings = append(findings, schema.NewFinding{
			RunID:       rc.RunID,
			Source:      s.Source(),
			Severity:    lookupSeverity(sonarSeverities, issue.Severity),
			Path:        s.componentPath(issue.Component),
			Line:        issue.Line,
			Description: issue.Message,
			Category:    lookupCategory(sonarCategories, issue.Type),
			RuleID:      issue.Rule,
		})
	}
	return insertAll(ctx, s.store, findings)
}

// fetch pages through the search results until the total is reached or the
// page cap is hit.
func (s *SonarCloud) fetch(ctx context.Context, rc contract.RunContext) ([]sonarIssue, error) {
	pageSize := s.cfg.PageSize
	if pageSize <= 0 {
		pageSize = contract.DefaultSonarPageSize
	}
	maxPages := s.cfg.MaxPages
	if maxPages <= 0 {
		maxPages = contract.DefaultSonarMaxPages
	}

	var issues []sonarIssue
	for page := 1; page <= maxPages; page++ {
		var result sonarSearchResult
		req := s.client.R().
			SetContext(ctx).
			SetResult(&result).
			ForceContentType("application/json").
			SetQueryParams(map[string]string{
				"componentKeys": s.cfg.Project,
				"resolved":      "false",
				"ps":            strconv.Itoa(pageSize),
				"p":             strconv.Itoa(page),
			})
		if rc.PRNumber > 0 {
			req.SetQueryParam("pullRequest", strconv.Itoa(rc.PRNumber))
		}

		resp, err := req.Get("/api/issues/search")
		if err := checkResponse(s.Source(), resp, err); err != nil {
			return nil, err
		}

		issues = append(issues, result.Issues...)
		if len(result.Issues) == 0 || page*pageSize >= result.Paging.Total {
			return issues, nil
		}
	}

	s.logger.Warn("page cap reached, results truncated", "pages", maxPages)
	return issues, nil
}

// componentPath strips the "project:" prefix. The bare project key is a
// repo-wide issue.
func (s *SonarCloud) componentPath(component string) string {
	_, path, ok := strings.Cut(component, ":")
	if !ok {
		return ""
	}
	return path
}
