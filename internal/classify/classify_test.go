package classify

import (
	"strings"
	"testing"

	"github.com/huangsam/codeaudit/schema"
	"github.com/stretchr/testify/assert"
)

func TestDetectFalsePositive(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		expectFP   bool
		expectText string
	}{
		{
			name:       "tips block",
			body:       "Some text\n<!-- tips_start -->\nUse @coderabbitai to chat",
			expectFP:   true,
			expectText: "<!-- tips_start -->",
		},
		{
			name:       "thank you banner case insensitive",
			body:       "thank you for using coderabbit!",
			expectFP:   true,
			expectText: "Thank you for using CodeRabbit",
		},
		{
			name:       "first line summary in bold",
			body:       "**Actionable comments posted: 3**\n\nDetails below",
			expectFP:   true,
			expectText: "starts-with:Actionable comments posted:",
		},
		{
			name:       "first line prefix",
			body:       "\n  Actionable comments posted: 3\n\nDetails below",
			expectFP:   true,
			expectText: "starts-with:Actionable comments posted:",
		},
		{
			name:       "walkthrough only",
			body:       "<!-- walkthrough_start -->\n## Walkthrough\nThe PR renames a package.",
			expectFP:   true,
			expectText: ReasonWalkthroughOnly,
		},
		{
			name:     "walkthrough with actionable keyword",
			body:     "## Walkthrough\nThis introduces a potential issue in the parser.",
			expectFP: false,
		},
		{name: "empty", body: "", expectFP: true, expectText: ReasonEmptyBody},
		{name: "whitespace", body: " \n\t ", expectFP: true, expectText: ReasonEmptyBody},
		{name: "accepted", body: "_⚠️ Potential issue_\n\n**Handle the error returned by Close.**", expectFP: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := DetectFalsePositive(tt.body)
			assert.Equal(t, tt.expectFP, v.FalsePositive)
			if tt.expectFP {
				assert.Equal(t, tt.expectText, v.Reason)
			} else {
				assert.Empty(t, v.Reason)
			}
		})
	}
}

func TestAnywhereRuleBeatsFirstLineRule(t *testing.T) {
	body := "Actionable comments posted: 2\n<!-- tips_start -->"
	v := DetectFalsePositive(body)
	assert.True(t, v.FalsePositive)
	assert.Equal(t, "<!-- tips_start -->", v.Reason)
}

func TestReclassify(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		current  schema.Severity
		expected schema.Severity
	}{
		{"critical keyword upgrades low", "path traversal vulnerability detected", schema.SeverityLow, schema.SeverityCritical},
		{"critical wins over high", "SQL injection enables command injection", schema.SeverityMedium, schema.SeverityCritical},
		{"high keyword", "possible XSS in template", schema.SeverityLow, schema.SeverityHigh},
		{"high keyword keeps critical", "possible XSS in template", schema.SeverityCritical, schema.SeverityCritical},
		{"red marker", "_🔴 Critical_ something", schema.SeverityInfo, schema.SeverityCritical},
		{"orange marker", "🟠 Major: missing check", schema.SeverityLow, schema.SeverityHigh},
		{"yellow marker", "🟡 Minor", schema.SeverityHigh, schema.SeverityMedium},
		{"lowercase marker ignored", "🔴 critical path", schema.SeverityLow, schema.SeverityLow},
		{"uppercase marker ignored", "🟠 MAJOR", schema.SeverityLow, schema.SeverityLow},
		{"unchanged", "consider renaming", schema.SeverityLow, schema.SeverityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Reclassify(tt.body, tt.current))
		})
	}
}

func TestClassify(t *testing.T) {
	t.Run("accepted body is reclassified", func(t *testing.T) {
		res := Classify("**Path traversal vulnerability detected in upload handler**", schema.SeverityLow)
		assert.False(t, res.FalsePositive)
		assert.Equal(t, schema.SeverityCritical, res.Severity)
		assert.Equal(t, schema.CategorySecurity, res.Category)
		assert.Equal(t, "Path traversal vulnerability detected in upload handler", res.Description)
	})

	t.Run("false positive keeps original severity", func(t *testing.T) {
		res := Classify("<!-- tips_start -->\npath traversal", schema.SeverityLow)
		assert.True(t, res.FalsePositive)
		assert.Equal(t, schema.SeverityLow, res.Severity)
	})

	t.Run("empty severity defaults to info", func(t *testing.T) {
		res := Classify("plain remark about code", "")
		assert.Equal(t, schema.SeverityInfo, res.Severity)
	})
}

func TestExtractDescription(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{"bold span", "Intro\n**Close the response body after reading**", "Close the response body after reading"},
		{"short bold skipped", "See **Fix this** below", "See **Fix this** below"},
		{"label span skipped", "_⚠️ Potential issue_\n\n**Missing nil check before dereference**", "Missing nil check before dereference"},
		{"snake case ignored", "rename my_long_variable_name to something shorter", "rename my_long_variable_name to something shorter"},
		{"skips comments headings fences", "<!-- start\nhidden -->\n# Heading\n```go\ncode()\n```\nReal description", "Real description"},
		{"placeholder", "<!-- only a comment -->\n## Title", NoDescription},
		{"empty", "", NoDescription},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractDescription(tt.body))
		})
	}
}

func TestExtractDescriptionTruncates(t *testing.T) {
	long := strings.Repeat("é", 200)
	assert.Equal(t, strings.Repeat("é", DescriptionMaxRunes), ExtractDescription("**"+long+"**"))
	assert.Equal(t, strings.Repeat("é", DescriptionMaxRunes), ExtractDescription(long))
}

func TestInferCategory(t *testing.T) {
	assert.Equal(t, schema.CategorySecurity, InferCategory("Hardcoded credential in config"))
	assert.Equal(t, schema.CategoryBug, InferCategory("This can panic on empty input"))
	assert.Equal(t, schema.CategoryPerformance, InferCategory("Inefficient allocation inside loop"))
	assert.Equal(t, schema.CategoryStyle, InferCategory("Nitpick: naming"))
	assert.Equal(t, schema.CategoryGeneral, InferCategory("Consider adding docs"))
}
