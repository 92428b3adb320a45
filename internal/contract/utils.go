package contract

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/huangsam/codeaudit/schema"
)

// Color variables for console output.
var (
	CriticalColor = color.New(color.FgRed, color.Bold)     // CriticalColor represents standard danger.
	HighColor     = color.New(color.FgMagenta, color.Bold) // HighColor represents strong, distinct warning.
	MediumColor   = color.New(color.FgYellow)              // MediumColor represents standard caution, not bold.
	LowColor      = color.New(color.FgCyan)                // LowColor represents low-priority signal.
	InfoColor     = color.New(color.FgWhite)
)

// GetPlainLabel returns the display label for a severity. This is the core
// logic used for CSV, JSON, and table printing.
func GetPlainLabel(sev schema.Severity) string {
	switch sev {
	case schema.SeverityCritical:
		return "Critical"
	case schema.SeverityHigh:
		return "High"
	case schema.SeverityMedium:
		return "Medium"
	case schema.SeverityLow:
		return "Low"
	default:
		return "Info"
	}
}

// GetColorLabel returns a colored severity label for console output (table).
func GetColorLabel(sev schema.Severity) string {
	text := GetPlainLabel(sev)

	switch sev {
	case schema.SeverityCritical:
		return CriticalColor.Sprint(text)
	case schema.SeverityHigh:
		return HighColor.Sprint(text)
	case schema.SeverityMedium:
		return MediumColor.Sprint(text)
	case schema.SeverityLow:
		return LowColor.Sprint(text)
	default:
		return InfoColor.Sprint(text)
	}
}

// SelectOutputFile returns the appropriate file handle for output, based on the provided
// file path. An empty path selects os.Stdout.
func SelectOutputFile(filePath string) (*os.File, error) {
	if filePath == "" {
		return os.Stdout, nil
	}
	return os.Create(filePath)
}

// LogFatal logs an error and exits the program.
func LogFatal(msg string, err error) {
	_, _ = fmt.Fprintf(os.Stderr, "Fatal %s: %v\n", msg, err)
	os.Exit(ExitCode(err))
}

// LogWarn logs a warning message to stderr.
func LogWarn(msg string, err error) {
	_, _ = fmt.Fprintf(os.Stderr, "Warn %s: %v\n", msg, err)
}

// ExitCode maps an error to the process exit status: 2 for usage errors, 1 otherwise.
func ExitCode(err error) int {
	if IsUsage(err) {
		return 2
	}
	return 1
}

// GetDBFilePath returns the path to the SQLite DB file for the finding store.
func GetDBFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".codeaudit.db"
	}
	return filepath.Join(homeDir, ".codeaudit.db")
}

// TruncatePath truncates a file path to a maximum width with ellipsis prefix.
// Requires maxWidth > 3 so there is room for "..." and at least one character.
func TruncatePath(path string, maxWidth int) string {
	runes := []rune(path)
	if len(runes) > maxWidth && maxWidth > 3 {
		return "..." + string(runes[len(runes)-maxWidth+3:])
	}
	return path
}

// TruncateRunes cuts s to at most n runes without splitting a multi-byte character.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// ParseBoolString parses a string value into a boolean.
// Accepts "yes", "no", "true", "false", "1", "0" (case-insensitive).
func ParseBoolString(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "true", "1":
		return true, nil
	case "no", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean string: %s (expected yes/no/true/false/1/0)", s)
	}
}

// ParseID parses a positive integer identifier. Anything else is a usage error.
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, UsageErrorf("invalid id '%s': must be a positive integer", s)
	}
	return id, nil
}

// FormatLocation renders path:line, path, or "(repo)" for repo-wide findings.
func FormatLocation(path string, line int) string {
	switch {
	case path == "":
		return "(repo)"
	case line > 0:
		return path + ":" + strconv.Itoa(line)
	default:
		return path
	}
}
