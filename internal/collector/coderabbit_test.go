package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/internal/logger"
	"github.com/huangsam/codeaudit/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const botLogin = "coderabbitai[bot]"

// thread holds the bot and human comments of one pull request.
type thread struct {
	review, issue []map[string]any
}

func newGitHubServer(t *testing.T, review, issue []map[string]any) *httptest.Server {
	t.Helper()
	return newThreadServer(t, map[string]thread{"7": {review: review, issue: issue}})
}

func newThreadServer(t *testing.T, threads map[string]thread) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets/pulls/{pr}/comments", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gh-secret", r.Header.Get("Authorization"))
		writeJSON(t, w, threads[r.PathValue("pr")].review)
	})
	mux.HandleFunc("GET /repos/acme/widgets/issues/{pr}/comments", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, threads[r.PathValue("pr")].issue)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func comment(id int64, login, path string, line int, body string) map[string]any {
	c := map[string]any{"id": id, "body": body, "user": map[string]any{"login": login}}
	if path != "" {
		c["path"] = path
		c["line"] = line
	}
	return c
}

func newCodeRabbit(server *httptest.Server, st Store) *CodeRabbit {
	return NewCodeRabbit(contract.CodeRabbitConfig{
		GitHubBaseURL: server.URL,
		GitHubToken:   "gh-secret",
		BotLogin:      botLogin,
	}, contract.DefaultHTTPTimeout, st, logger.Discard())
}

func TestCodeRabbitCollect(t *testing.T) {
	review := []map[string]any{
		comment(101, botLogin, "a.go", 10, "_⚠️ Potential issue_\n\n**Handle the error returned by Close**"),
		comment(102, botLogin, "a.go", 42, "_⚠️ Potential issue_\n\n**Handle the error returned by Close**"),
		comment(103, botLogin, "b.go", 3, "**Path traversal vulnerability detected in upload handler**"),
		comment(104, "octocat", "c.go", 1, "**Human comments are ignored entirely**"),
	}
	issue := []map[string]any{
		comment(201, botLogin, "", 0, "<!-- tips_start -->\nTips for using the bot"),
		comment(202, botLogin, "", 0, "Actionable comments posted: 3"),
	}
	server := newGitHubServer(t, review, issue)

	ctx := context.Background()
	st := newTestStore(t)
	rc := newRunContext(t, st, 7)

	count, err := newCodeRabbit(server, st).Collect(ctx, rc)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	processed, err := st.ListProcessed(ctx, schema.ProcessedFilter{})
	require.NoError(t, err)
	require.Len(t, processed, 5)

	bySourceID := map[string]schema.ProcessedFinding{}
	for _, pf := range processed {
		bySourceID[pf.SourceID] = pf
	}

	first := bySourceID["review-comment:101"]
	second := bySourceID["review-comment:102"]
	assert.False(t, first.IsDuplicate)
	assert.True(t, second.IsDuplicate)
	assert.Equal(t, first.ID, second.DuplicateOf)
	assert.Equal(t, schema.SeverityHigh, first.OriginalSeverity)

	traversal := bySourceID["review-comment:103"]
	assert.Equal(t, schema.SeverityInfo, traversal.OriginalSeverity)
	assert.Equal(t, schema.SeverityCritical, traversal.Severity)
	assert.Equal(t, 7, traversal.PRNumber)

	tips := bySourceID["issue-comment:201"]
	assert.True(t, tips.IsFalsePositive)
	assert.Equal(t, "<!-- tips_start -->", tips.FPReason)
	assert.True(t, bySourceID["issue-comment:202"].IsFalsePositive)

	findings := runFindings(t, st, rc.RunID)
	require.Len(t, findings, 3)
	assert.Equal(t, schema.SeverityCritical, findings[0].Severity)
	dups := 0
	for _, f := range findings {
		if f.IsDuplicate {
			dups++
			assert.Equal(t, 42, f.Line)
		}
	}
	assert.Equal(t, 1, dups)
}

func TestCodeRabbitRecollectionKeepsRecords(t *testing.T) {
	review := []map[string]any{
		comment(101, botLogin, "a.go", 10, "**Handle the error returned by Close**"),
		comment(102, botLogin, "a.go", 11, "**Handle the error returned by Close**"),
	}
	server := newGitHubServer(t, review, nil)

	ctx := context.Background()
	st := newTestStore(t)
	c := newCodeRabbit(server, st)

	firstRun := newRunContext(t, st, 7)
	_, err := c.Collect(ctx, firstRun)
	require.NoError(t, err)

	processed, err := st.ListProcessed(ctx, schema.ProcessedFilter{})
	require.NoError(t, err)
	require.Len(t, processed, 2)
	require.NoError(t, st.Verify(ctx, schema.Verification{
		FindingID: processed[0].ID, FalsePositive: true, VerifiedBy: "reviewer",
	}))

	secondRun := newRunContext(t, st, 7)
	count, err := c.Collect(ctx, secondRun)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "a verified false positive is not re-added")

	after, err := st.ListProcessed(ctx, schema.ProcessedFilter{})
	require.NoError(t, err)
	assert.Len(t, after, 2)

	findings := runFindings(t, st, secondRun.RunID)
	require.Len(t, findings, 1)
	assert.Equal(t, 11, findings[0].Line)
	assert.False(t, findings[0].IsDuplicate, "the surviving comment took over as canonical")

	candidates, err := st.TaskCandidates(ctx, schema.SeverityInfo, 0)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "review-comment:102", candidates[0].SourceID)
}

func TestCodeRabbitDuplicatesStayWithinRun(t *testing.T) {
	body := "_⚠️ Potential issue_\n\n**Handle the error returned by Close**"
	server := newThreadServer(t, map[string]thread{
		"7": {review: []map[string]any{comment(101, botLogin, "a.go", 10, body)}},
		"8": {review: []map[string]any{comment(301, botLogin, "a.go", 10, body)}},
	})

	ctx := context.Background()
	st := newTestStore(t)
	c := newCodeRabbit(server, st)

	_, err := c.Collect(ctx, newRunContext(t, st, 7))
	require.NoError(t, err)

	later := newRunContext(t, st, 8)
	count, err := c.Collect(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	findings := runFindings(t, st, later.RunID)
	require.Len(t, findings, 1)
	assert.False(t, findings[0].IsDuplicate, "the canonical copy lives in another run")

	processed, err := st.ListProcessed(ctx, schema.ProcessedFilter{})
	require.NoError(t, err)
	require.Len(t, processed, 2)
	assert.True(t, processed[1].IsDuplicate, "the task pipeline still links the records")
	assert.Equal(t, processed[0].ID, processed[1].DuplicateOf)
}

func TestCodeRabbitErrors(t *testing.T) {
	st := newTestStore(t)

	t.Run("missing token", func(t *testing.T) {
		c := NewCodeRabbit(contract.CodeRabbitConfig{BotLogin: botLogin}, 0, st, logger.Discard())
		_, err := c.Collect(context.Background(), newRunContext(t, st, 7))
		requireKind(t, err, KindConfig)
	})

	t.Run("no pull request", func(t *testing.T) {
		c := NewCodeRabbit(contract.CodeRabbitConfig{GitHubToken: "t", BotLogin: botLogin}, 0, st, logger.Discard())
		_, err := c.Collect(context.Background(), newRunContext(t, st, 0))
		requireKind(t, err, KindConfig)
	})

	t.Run("upstream failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		rc := newRunContext(t, st, 7)
		count, err := newCodeRabbit(server, st).Collect(context.Background(), rc)
		requireKind(t, err, KindUpstream)
		assert.Zero(t, count)
	})
}
