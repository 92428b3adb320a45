package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/internal/logger"
	"github.com/huangsam/codeaudit/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	assert.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestSonarCloudCollect(t *testing.T) {
	var pages []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/issues/search", r.URL.Path)
		assert.Equal(t, "Bearer sonar-secret", r.Header.Get("Authorization"))
		q := r.URL.Query()
		assert.Equal(t, "acme_widgets", q.Get("componentKeys"))
		assert.Equal(t, "false", q.Get("resolved"))
		assert.Equal(t, "2", q.Get("ps"))
		assert.Equal(t, "7", q.Get("pullRequest"))
		pages = append(pages, q.Get("p"))

		page := map[string]any{"paging": map[string]int{"pageIndex": 1, "pageSize": 2, "total": 3}}
		switch q.Get("p") {
		case "1":
			page["issues"] = []map[string]any{
				{"key": "k1", "rule": "go:S1", "severity": "BLOCKER", "component": "acme_widgets:pkg/a.go", "line": 4, "message": "Fix this", "type": "VULNERABILITY"},
				{"key": "k2", "rule": "go:S2", "severity": "MINOR", "component": "acme_widgets:pkg/b.go", "line": 9, "message": "Rename", "type": "CODE_SMELL"},
			}
		default:
			page["issues"] = []map[string]any{
				{"key": "k3", "rule": "go:S3", "severity": "MAJOR", "component": "acme_widgets", "message": "Project wide", "type": "BUG"},
			}
		}
		writeJSON(t, w, page)
	}))
	defer server.Close()

	st := newTestStore(t)
	rc := newRunContext(t, st, 7)
	c := NewSonarCloud(contract.SonarConfig{
		BaseURL: server.URL, Token: "sonar-secret", Project: "acme_widgets", PageSize: 2, MaxPages: 5,
	}, contract.DefaultHTTPTimeout, st, logger.Discard())

	count, err := c.Collect(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, []string{"1", "2"}, pages)

	findings := runFindings(t, st, rc.RunID)
	require.Len(t, findings, 3)
	assert.Equal(t, schema.SeverityCritical, findings[0].Severity)
	assert.Equal(t, "pkg/a.go", findings[0].Path)
	assert.Equal(t, "pkg/a.go:4", findings[0].DedupKey)
	assert.Equal(t, schema.CategorySecurity, findings[0].Category)
	assert.Equal(t, "go:S1", findings[0].RuleID)
	assert.Equal(t, schema.SeverityHigh, findings[1].Severity)
	assert.Empty(t, findings[1].Path)
	assert.Empty(t, findings[1].DedupKey)
	assert.Equal(t, schema.CategoryStyle, findings[2].Category)
}

func TestSonarCloudPageCap(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(t, w, map[string]any{
			"paging": map[string]int{"total": 1000},
			"issues": []map[string]any{{"key": fmt.Sprint(calls), "severity": "INFO", "component": "p:x.go", "message": "m"}},
		})
	}))
	defer server.Close()

	st := newTestStore(t)
	rc := newRunContext(t, st, 0)
	c := NewSonarCloud(contract.SonarConfig{BaseURL: server.URL, Token: "t", Project: "p", PageSize: 1, MaxPages: 3},
		0, st, logger.Discard())

	count, err := c.Collect(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, 3, calls)
}

func TestSonarCloudErrors(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		st := newTestStore(t)
		c := NewSonarCloud(contract.SonarConfig{Project: "p"}, 0, st, logger.Discard())
		count, err := c.Collect(context.Background(), newRunContext(t, st, 0))
		requireKind(t, err, KindConfig)
		assert.Zero(t, count)
	})

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }},
		{"rate limited", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTooManyRequests) }},
		{"unauthorized", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusUnauthorized) }},
		{"malformed json", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"issues": [`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			st := newTestStore(t)
			rc := newRunContext(t, st, 0)
			c := NewSonarCloud(contract.SonarConfig{BaseURL: server.URL, Token: "t", Project: "p"}, 0, st, logger.Discard())

			count, err := c.Collect(context.Background(), rc)
			requireKind(t, err, KindUpstream)
			assert.Zero(t, count)
			assert.Empty(t, runFindings(t, st, rc.RunID))
		})
	}
}

func TestCodacyCollect(t *testing.T) {
	var cursors []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v3/analysis/organizations/gh/acme/repositories/widgets/issues/search", r.URL.Path)
		assert.Equal(t, "codacy-secret", r.Header.Get("api-token"))
		cursor := r.URL.Query().Get("cursor")
		cursors = append(cursors, cursor)

		if cursor == "" {
			writeJSON(t, w, map[string]any{
				"data": []map[string]any{
					{"issueId": "1", "filePath": "main.go", "lineNumber": 3, "message": "SQL built from input",
						"patternInfo": map[string]string{"id": "gosec_G201", "category": "Security", "level": "Error"}},
				},
				"pagination": map[string]any{"cursor": "next-page", "limit": 100},
			})
			return
		}
		writeJSON(t, w, map[string]any{
			"data": []map[string]any{
				{"issueId": "2", "filePath": "util.go", "lineNumber": 8, "message": "Line too long",
					"patternInfo": map[string]string{"id": "lll", "category": "CodeStyle", "level": "Info"}},
			},
			"pagination": map[string]any{"limit": 100},
		})
	}))
	defer server.Close()

	st := newTestStore(t)
	rc := newRunContext(t, st, 0)
	c := NewCodacy(contract.CodacyConfig{BaseURL: server.URL, Token: "codacy-secret", Provider: "gh"}, 0, st, logger.Discard())

	count, err := c.Collect(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, []string{"", "next-page"}, cursors)

	findings := runFindings(t, st, rc.RunID)
	require.Len(t, findings, 2)
	assert.Equal(t, schema.SeverityHigh, findings[0].Severity)
	assert.Equal(t, schema.CategorySecurity, findings[0].Category)
	assert.Equal(t, "gosec_G201", findings[0].RuleID)
	assert.Equal(t, schema.SeverityInfo, findings[1].Severity)
	assert.Equal(t, schema.CategoryStyle, findings[1].Category)
}

func TestCodacyMissingToken(t *testing.T) {
	st := newTestStore(t)
	c := NewCodacy(contract.CodacyConfig{}, 0, st, logger.Discard())
	_, err := c.Collect(context.Background(), newRunContext(t, st, 0))
	requireKind(t, err, KindConfig)
}

func TestCodeFactorCollect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/repositories/github/acme/widgets/issues", r.URL.Path)
		assert.Equal(t, "cf-secret", r.Header.Get("X-CF-TOKEN"))
		writeJSON(t, w, []map[string]any{
			{"id": "a", "filePath": "db.go", "line": 12, "message": "Possible nil dereference", "severity": "Major", "category": "BugRisk", "ruleId": "R1"},
			{"id": "b", "filePath": "", "message": "Repository lacks tests", "severity": "Info", "category": "Documentation"},
		})
	}))
	defer server.Close()

	st := newTestStore(t)
	rc := newRunContext(t, st, 0)
	c := NewCodeFactor(contract.CodeFactorConfig{BaseURL: server.URL, Token: "cf-secret", Provider: "github"}, 0, st, logger.Discard())

	count, err := c.Collect(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	findings := runFindings(t, st, rc.RunID)
	require.Len(t, findings, 2)
	assert.Equal(t, schema.SeverityHigh, findings[0].Severity)
	assert.Equal(t, schema.CategoryBug, findings[0].Category)
	assert.Equal(t, "db.go:12", findings[0].DedupKey)
	assert.Equal(t, schema.CategoryGeneral, findings[1].Category)
	assert.Empty(t, findings[1].DedupKey)
}

func TestCodeFactorUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	st := newTestStore(t)
	c := NewCodeFactor(contract.CodeFactorConfig{BaseURL: server.URL, Token: "t", Provider: "github"}, 0, st, logger.Discard())
	_, err := c.Collect(context.Background(), newRunContext(t, st, 0))
	requireKind(t, err, KindUpstream)
}
