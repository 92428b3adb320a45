package collector

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-hclog"
	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/schema"
)

// CodeFactor reads repository issues from the CodeFactor API.
type CodeFactor struct {
	cfg    contract.CodeFactorConfig
	client *resty.Client
	store  contract.FindingStore
	logger hclog.Logger
}

var _ contract.Collector = &CodeFactor{} // Compile-time check

type codeFactorIssue struct {
	ID       string `json:"id"`
	FilePath string `json:"filePath"`
	Line     int    `json:"line"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Category string `json:"category"`
	RuleID   string `json:"ruleId"`
}

// NewCodeFactor creates a CodeFactor collector.
func NewCodeFactor(cfg contract.CodeFactorConfig, timeout time.Duration, st contract.FindingStore, log hclog.Logger) *CodeFactor {
	client := newRestyClient(cfg.BaseURL, timeout, log)
	if cfg.Token != "" {
		client.SetHeader("X-CF-TOKEN", cfg.Token)
	}
	return &CodeFactor{cfg: cfg, client: client, store: st, logger: log}
}

// Source implements contract.Collector.
func (c *CodeFactor) Source() schema.Source { return schema.SourceCodeFactor }

// Collect implements contract.Collector.
func (c *CodeFactor) Collect(ctx context.Context, rc contract.RunContext) (int, error) {
	if c.cfg.Token == "" {
		return 0, configError(c.Source(), "missing codefactor token")
	}
	owner, name, err := splitRepo(c.Source(), rc.Repo)
	if err != nil {
		return 0, err
	}

	var issues []codeFactorIssue
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&issues).
		ForceContentType("application/json").
		SetPathParams(map[string]string{
			"provider": c.cfg.Provider,
			"owner":    owner,
			"repo":     name,
		}).
		Get("/api/v1/repositories/{provider}/{owner}/{repo}/issues")
	if err := checkResponse(c.Source(), resp, err); err != nil {
		return 0, err
	}
	c.logger.Debug("fetched issues", "count", len(issues))

	findings := make([]schema.NewFinding, 0, len(issues))
	for _, issue := range issues {
		findings = append(findings, schema.NewFinding{
			RunID:       rc.RunID,
			Source:      c.Source(),
			Severity:    lookupSeverity(codeFactorSeverities, issue.Severity),
			Path:        issue.FilePath,
			Line:        issue.Line,
			Description: issue.Message,
			Category:    lookupCategory(codeFactorCategories, issue.Category),
			RuleID:      issue.RuleID,
		})
	}
	return insertAll(ctx, c.store, findings)
}
