package classify

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/huangsam/codeaudit/schema"
)

// emphasis matches **bold**, __bold__, *em* and _em_ spans on one line.
// Underscore emphasis needs a non-word neighbor so snake_case is skipped.
var emphasis = regexp.MustCompile(`\*\*([^*\n]+)\*\*|__([^_\n]+)__|\*([^*\n]+)\*|(?:^|[^\w])_([^_\n]+)_(?:[^\w]|$)`)

// labelSpans are bot labels rendered in emphasis that never describe an issue.
var labelSpans = regexp.MustCompile(`(?i)^[^\w]*(potential issue|refactor suggestion|nitpick|critical|major|minor|trivial|verification agent)[^\w]*$`)

// ExtractDescription returns a short description of a comment body.
func ExtractDescription(body string) string {
	for _, m := range emphasis.FindAllStringSubmatch(body, -1) {
		for _, span := range m[1:] {
			span = strings.TrimSpace(span)
			if utf8.RuneCountInString(span) > 10 && !labelSpans.MatchString(span) {
				return truncate(span)
			}
		}
	}

	inFence := false
	inComment := false
	for line := range strings.Lines(body) {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "```"):
			inFence = !inFence
			continue
		case inFence:
			continue
		case inComment:
			if strings.Contains(trimmed, "-->") {
				inComment = false
			}
			continue
		case strings.HasPrefix(trimmed, "<!--"):
			inComment = !strings.Contains(trimmed, "-->")
			continue
		case trimmed == "", strings.HasPrefix(trimmed, "#"):
			continue
		}
		return truncate(trimmed)
	}

	return NoDescription
}

// Keyword groups used to infer a category, checked in order.
var categoryKeywords = []struct {
	category schema.Category
	re       *regexp.Regexp
}{
	{schema.CategorySecurity, regexp.MustCompile(`(?i)security|vulnerab|injection|\bxss\b|csrf|secret|credential|traversal|sanitiz|privilege`)},
	{schema.CategoryBug, regexp.MustCompile(`(?i)\bbug\b|nil pointer|null pointer|panic|crash|race condition|deadlock|off-by-one|incorrect|potential issue`)},
	{schema.CategoryPerformance, regexp.MustCompile(`(?i)performance|inefficient|allocation|\bn\+1\b|too slow|quadratic`)},
	{schema.CategoryStyle, regexp.MustCompile(`(?i)nitpick|naming|style|formatting|typo|readability|refactor`)},
}

// InferCategory derives a category from comment keywords.
func InferCategory(body string) schema.Category {
	for _, group := range categoryKeywords {
		if group.re.MatchString(body) {
			return group.category
		}
	}
	return schema.CategoryGeneral
}
