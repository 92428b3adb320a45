// Package classify filters review-bot noise out of raw comment bodies,
// reclassifies severity from the text and extracts a one-line description.
package classify

import (
	"regexp"
	"strings"

	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/schema"
)

// Fixed reasons for the non-pattern false-positive rules.
const (
	ReasonWalkthroughOnly = "walkthrough-only"
	ReasonEmptyBody       = "empty-body"
	firstLinePrefix       = "starts-with:"
)

// NoDescription is used when a body has no usable line.
const NoDescription = "(no description)"

// DescriptionMaxRunes bounds extracted descriptions.
const DescriptionMaxRunes = 120

// rule is a regex with the human-readable pattern reported as the reason.
type rule struct {
	pattern string
	re      *regexp.Regexp
}

func newRule(pattern string, caseInsensitive bool) rule {
	expr := regexp.QuoteMeta(pattern)
	if caseInsensitive {
		expr = "(?i)" + expr
	}
	return rule{pattern: pattern, re: regexp.MustCompile(expr)}
}

// anywhereRules reject a body when matched anywhere. Order matters: the
// first match is the reported reason.
var anywhereRules = []rule{
	newRule("<!-- tips_start -->", false),
	newRule("Thank you for using CodeRabbit", true),
	newRule("<!-- This is an auto-generated comment: summarize by coderabbit.ai -->", false),
	newRule("<!-- This is an auto-generated comment: release notes by coderabbit.ai -->", false),
	newRule("<!-- internal state start -->", false),
	newRule("<!-- finishing_touch_checkbox_start -->", false),
	newRule("Upgrade to the Pro plan", true),
	newRule("CodeRabbit Pro", true),
	newRule("Share with your team", true),
}

// firstLineRules reject a body whose first line starts with the pattern.
var firstLineRules = []rule{
	newRule("Actionable comments posted:", true),
	newRule("Review skipped", true),
	newRule("No actionable comments were generated", true),
	newRule("<!-- This is an auto-generated reply by CodeRabbit -->", false),
	newRule("@coderabbitai", true),
	newRule("> [!NOTE]", true),
}

var walkthroughMarker = regexp.MustCompile(`(?i)<!-- walkthrough_start -->|^##\s*walkthrough\b|\n##\s*walkthrough\b`)

var walkthroughKeywords = regexp.MustCompile(`(?i)potential issue|suggestion|warning|error|fix`)

// Reclassification keyword lists, matched case-insensitively.
var (
	criticalKeywords = regexp.MustCompile(`(?i)path traversal|command injection|hard-?coded (?:secret|password|credential)s?|remote code execution|arbitrary code execution|privilege escalation|authentication bypass`)
	highKeywords     = regexp.MustCompile(`(?i)sql injection|\bxss\b|cross-site scripting|\bcsrf\b|cross-site request forgery|unvalidated input|unsanitized input`)
)

// marker maps an emoji severity convention to a severity.
type marker struct {
	re       *regexp.Regexp
	severity schema.Severity
}

var emojiMarkers = []marker{
	{regexp.MustCompile(`🔴[\s_*]*Critical`), schema.SeverityCritical},
	{regexp.MustCompile(`🟠[\s_*]*Major`), schema.SeverityHigh},
	{regexp.MustCompile(`🟡[\s_*]*Minor`), schema.SeverityMedium},
}

// Verdict is the outcome of false-positive detection.
type Verdict struct {
	FalsePositive bool
	Reason        string
}

// Result is the full classification of one comment body.
type Result struct {
	Verdict
	Severity    schema.Severity
	Description string
	Category    schema.Category
}

// Classify runs every step on a body. Severity is only reclassified for
// accepted bodies.
func Classify(body string, original schema.Severity) Result {
	res := Result{
		Verdict:     DetectFalsePositive(body),
		Severity:    original,
		Description: ExtractDescription(body),
		Category:    InferCategory(body),
	}
	if res.Severity == "" {
		res.Severity = schema.SeverityInfo
	}
	if !res.FalsePositive {
		res.Severity = Reclassify(body, res.Severity)
	}
	return res
}

// DetectFalsePositive applies the noise rules in order; the first match wins.
func DetectFalsePositive(body string) Verdict {
	for _, r := range anywhereRules {
		if r.re.MatchString(body) {
			return Verdict{FalsePositive: true, Reason: r.pattern}
		}
	}

	first := strings.TrimLeft(firstLine(body), "*_ ")
	for _, r := range firstLineRules {
		if loc := r.re.FindStringIndex(first); loc != nil && loc[0] == 0 {
			return Verdict{FalsePositive: true, Reason: firstLinePrefix + r.pattern}
		}
	}

	if walkthroughMarker.MatchString(body) && !walkthroughKeywords.MatchString(body) {
		return Verdict{FalsePositive: true, Reason: ReasonWalkthroughOnly}
	}

	if strings.TrimSpace(body) == "" {
		return Verdict{FalsePositive: true, Reason: ReasonEmptyBody}
	}

	return Verdict{}
}

// Reclassify upgrades or adjusts severity from the text; the first matching
// rule wins and the current severity is kept when none match.
func Reclassify(body string, current schema.Severity) schema.Severity {
	if criticalKeywords.MatchString(body) {
		return schema.SeverityCritical
	}
	if current != schema.SeverityCritical && highKeywords.MatchString(body) {
		return schema.SeverityHigh
	}
	for _, m := range emojiMarkers {
		if m.re.MatchString(body) {
			return m.severity
		}
	}
	return current
}

// firstLine returns the first non-blank line, trimmed.
func firstLine(body string) string {
	for line := range strings.Lines(body) {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// truncate bounds a description.
func truncate(s string) string {
	return contract.TruncateRunes(strings.TrimSpace(s), DescriptionMaxRunes)
}
