// Package collector adapts the upstream review and analysis services into
// normalized findings.
package collector

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-hclog"
	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/internal/logger"
	"github.com/huangsam/codeaudit/schema"
)

// Store is the part of the finding store collectors write to.
type Store interface {
	contract.FindingStore
	contract.TaskStore
}

// New builds one collector per configured service, in configuration order.
func New(cfg *contract.Config, st Store, log hclog.Logger) ([]contract.Collector, error) {
	collectors := make([]contract.Collector, 0, len(cfg.Services))
	for _, src := range cfg.Services {
		l := log.Named(string(src))
		switch src {
		case schema.SourceCodeRabbit:
			collectors = append(collectors, NewCodeRabbit(cfg.CodeRabbit, cfg.HTTPTimeout, st, l))
		case schema.SourceSonarCloud:
			collectors = append(collectors, NewSonarCloud(cfg.Sonar, cfg.HTTPTimeout, st, l))
		case schema.SourceCodacy:
			collectors = append(collectors, NewCodacy(cfg.Codacy, cfg.HTTPTimeout, st, l))
		case schema.SourceCodeFactor:
			collectors = append(collectors, NewCodeFactor(cfg.CodeFactor, cfg.HTTPTimeout, st, l))
		case schema.SourceSARIF:
			collectors = append(collectors, NewSARIF(cfg.SARIFFiles, cfg.RepoPath, st, l))
		default:
			return nil, fmt.Errorf("no collector for source %q", src)
		}
	}
	return collectors, nil
}

// newRestyClient initializes a resty client for one upstream API.
// A zero timeout disables it.
func newRestyClient(baseURL string, timeout time.Duration, log hclog.Logger) *resty.Client {
	client := resty.New()
	client.
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(timeout).
		SetLogger(logger.NewHclogAdapter(log)).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "codeaudit")
	return client
}

// checkResponse turns transport errors and non-200 statuses into upstream errors.
func checkResponse(source schema.Source, resp *resty.Response, err error) error {
	if err != nil {
		return upstreamError(source, err)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		return nil
	case http.StatusTooManyRequests:
		return upstreamError(source, fmt.Errorf("rate limited by %s", resp.Request.URL))
	default:
		return upstreamError(source, fmt.Errorf("unexpected status %d from %s", resp.StatusCode(), resp.Request.URL))
	}
}

// splitRepo splits owner/name.
func splitRepo(source schema.Source, repo string) (string, string, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" {
		return "", "", configError(source, "repository %q is not owner/name", repo)
	}
	return owner, name, nil
}

// insertAll stores the findings of one pass. Store failures propagate as is.
func insertAll(ctx context.Context, st contract.FindingStore, findings []schema.NewFinding) (int, error) {
	count := 0
	for _, f := range findings {
		if _, err := st.InsertFinding(ctx, f); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
