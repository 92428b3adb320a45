package collector

import (
	"context"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-hclog"
	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/schema"
)

const (
	codacyPageLimit = 100
	codacyMaxPages  = 50
)

// Codacy reads repository issues from the Codacy v3 API.
type Codacy struct {
	cfg    contract.CodacyConfig
	client *resty.Client
	store  contract.FindingStore
	logger hclog.Logger
}

var _ contract.Collector = &Codacy{} // Compile-time check

type codacyIssue struct {
	IssueID     string `json:"issueId"`
	FilePath    string `json:"filePath"`
	LineNumber  int    `json:"lineNumber"`
	Message     string `json:"message"`
	PatternInfo struct {
		ID       string `json:"id"`
		Category string `json:"category"`
		Level    string `json:"level"`
	} `json:"patternInfo"`
}

type codacySearchResult struct {
	Data       []codacyIssue `json:"data"`
	Pagination struct {
		Cursor string `json:"cursor"`
		Limit  int    `json:"limit"`
		Total  int    `json:"total"`
	} `json:"pagination"`
}

// NewCodacy creates a Codacy collector.
func NewCodacy(cfg contract.CodacyConfig, timeout time.Duration, st contract.FindingStore, log hclog.Logger) *Codacy {
	client := newRestyClient(cfg.BaseURL, timeout, log)
	if cfg.Token != "" {
		client.SetHeader("api-token", cfg.Token)
	}
	return &Codacy{cfg: cfg, client: client, store: st, logger: log}
}

// Source implements contract.Collector.
func (c *Codacy) Source() schema.Source { return schema.SourceCodacy }

// Collect implements contract.Collector.
func (c *Codacy) Collect(ctx context.Context, rc contract.RunContext) (int, error) {
	if c.cfg.Token == "" {
		return 0, configError(c.Source(), "missing codacy token")
	}
	owner, name, err := splitRepo(c.Source(), rc.Repo)
	if err != nil {
		return 0, err
	}

	issues, err := c.fetch(ctx, owner, name)
	if err != nil {
		return 0, err
	}
	c.logger.Debug("fetched issues", "count", len(issues))

	findings := make([]schema.NewFinding, 0, len(issues))
	for _, issue := range issues {
		findings = append(findings, schema.NewFinding{
			RunID:       rc.RunID,
			Source:      c.Source(),
			Severity:    lookupSeverity(codacySeverities, issue.PatternInfo.Level),
			Path:        issue.FilePath,
			Line:        issue.LineNumber,
			Description: issue.Message,
			Category:    lookupCategory(codacyCategories, issue.PatternInfo.Category),
			RuleID:      issue.PatternInfo.ID,
		})
	}
	return insertAll(ctx, c.store, findings)
}

// fetch follows the pagination cursor until it is empty.
func (c *Codacy) fetch(ctx context.Context, owner, name string) ([]codacyIssue, error) {
	var issues []codacyIssue
	cursor := ""
	for range codacyMaxPages {
		var result codacySearchResult
		req := c.client.R().
			SetContext(ctx).
			SetResult(&result).
			ForceContentType("application/json").
			SetPathParams(map[string]string{
				"provider": c.cfg.Provider,
				"org":      owner,
				"repo":     name,
			}).
			SetQueryParam("limit", strconv.Itoa(codacyPageLimit)).
			SetBody(map[string]any{})
		if cursor != "" {
			req.SetQueryParam("cursor", cursor)
		}

		resp, err := req.Post("/api/v3/analysis/organizations/{provider}/{org}/repositories/{repo}/issues/search")
		if err := checkResponse(c.Source(), resp, err); err != nil {
			return nil, err
		}

		issues = append(issues, result.Data...)
		cursor = result.Pagination.Cursor
		if cursor == "" || len(result.Data) == 0 {
			return issues, nil
		}
	}

	c.logger.Warn("page cap reached, results truncated", "pages", codacyMaxPages)
	return issues, nil
}
