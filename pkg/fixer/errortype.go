package fixer

import (
	"regexp"
	"strings"
)

// errorPatterns classifies a raw diagnostic or log line into a coarse
// error type, cheapest first. The type is informational: it goes into
// the repair prompt so the model knows what kind of failure it is
// looking at, it never changes control flow.
var errorPatterns = []struct {
	pattern *regexp.Regexp
	kind    string
}{
	{regexp.MustCompile(`(?i)image.*not found|manifest unknown|no such image|pull access denied`), "image_not_found"},
	{regexp.MustCompile(`(?i)connection refused|could not resolve host|no route to host`), "service_connection"},
	{regexp.MustCompile(`(?i)command not found|executable file not found|no such file or directory`), "missing_command"},
	{regexp.MustCompile(`(?i)build failed|compilation error|exit code [1-9]`), "build_failure"},
	{regexp.MustCompile(`(?i)permission denied|forbidden|access denied`), "permission_error"},
	{regexp.MustCompile(`(?i)timed? ?out|deadline exceeded`), "timeout_error"},
	{regexp.MustCompile(`(?i)artifact.*not found|no artifacts found`), "artifact_missing"},
	{regexp.MustCompile(`(?i)yaml:.*line \d+|mapping values are not allowed|did not find expected`), "yaml_syntax"},
	{regexp.MustCompile(`(?i)unauthorized|authentication failed|invalid credentials`), "auth_error"},
	{regexp.MustCompile(`(?i)out of memory|disk quota exceeded|resource exhausted`), "resource_error"},
}

// identifyErrorType returns the first matching error type for text, or
// "unknown" if none of the patterns match.
func identifyErrorType(text string) string {
	for _, p := range errorPatterns {
		if p.pattern.MatchString(text) {
			return p.kind
		}
	}
	return "unknown"
}

// maxLogLines bounds how much of a raw log excerpt gets folded into a
// repair prompt.
const maxLogLines = 50

// keyLogKeywords flags lines worth keeping regardless of position in a
// long log, so the tail-only fallback below doesn't drop an early error
// line buried under later noise.
var keyLogKeywords = []string{"error", "fail", "exception", "fatal", "denied", "not found", "timeout"}

// extractKeyErrors pulls the lines most likely to explain a failure out
// of a raw log: every line containing a keyword, capped at maxLogLines,
// falling back to the last maxLogLines lines of the log when no keyword
// matches at all.
func extractKeyErrors(lines []string) []string {
	var matched []string
	for _, line := range lines {
		lower := strings.ToLower(line)
		for _, kw := range keyLogKeywords {
			if strings.Contains(lower, kw) {
				matched = append(matched, line)
				break
			}
		}
		if len(matched) >= maxLogLines {
			break
		}
	}
	if len(matched) > 0 {
		return matched
	}
	if len(lines) <= maxLogLines {
		return lines
	}
	return lines[len(lines)-maxLogLines:]
}
