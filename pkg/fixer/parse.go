package fixer

import (
	"regexp"
	"strings"
)

// fileMarkerPattern extracts one ---FILE:<name>--- ... section from a
// repair response, generalizing the fixed ---DOCKERFILE---/
// ---GITHUB_ACTIONS--- marker pair into one marker per artifact name so
// the same response format works across every target platform.
var fileMarkerPattern = regexp.MustCompile(`(?s)---FILE:([^-\n]+)---\s*\n(.*?)\s*(?:---END---|---FILE:|\z)`)

var explanationMarkerPattern = regexp.MustCompile(`(?s)---EXPLANATION---\s*\n(.*?)\s*---FILE:`)

// codeBlockPattern is the fallback used when the model ignores the
// marker format and just emits one fenced code block per file.
var codeBlockPattern = regexp.MustCompile("(?s)```(?:yaml|dockerfile|hcl|groovy|json)?\\s*\\n(.*?)\\n```")

// parsedFix is the outcome of parsing one repair response.
type parsedFix struct {
	Explanation string
	Files       map[string]string
	ChangedKeys []string
}

// ParseArtifacts extracts per-file content from an LLM response using the
// same marker format the repair loop uses, so first-pass generation and
// repair share one parser. targetNames is the set of artifact names the
// caller expects; it only matters for the single-file code-block
// fallback, which is ambiguous (and therefore skipped) for more than one
// target. It returns the parsed files in insertion order and the
// explanation text, if any.
func ParseArtifacts(text string, targetNames []string) (files map[string]string, order []string, explanation string) {
	parsed := parseFixResponse(text, targetNames)
	return parsed.Files, parsed.ChangedKeys, parsed.Explanation
}

// parseFixResponse extracts per-file replacement content from a repair
// response, trying the marker format first and falling back to a single
// fenced code block applied to the lone target artifact name when the
// model didn't follow the marker format.
func parseFixResponse(text string, targetNames []string) parsedFix {
	result := parsedFix{Files: make(map[string]string)}

	if m := explanationMarkerPattern.FindStringSubmatch(text); m != nil {
		result.Explanation = strings.TrimSpace(m[1])
	}

	matches := fileMarkerPattern.FindAllStringSubmatch(text, -1)
	for _, m := range matches {
		name := strings.TrimSpace(m[1])
		content := strings.TrimSpace(m[2])
		if name == "" || content == "" {
			continue
		}
		result.Files[name] = content
		result.ChangedKeys = append(result.ChangedKeys, name)
	}
	if len(result.Files) > 0 {
		return result
	}

	if len(targetNames) == 1 {
		if blocks := codeBlockPattern.FindAllStringSubmatch(text, -1); len(blocks) > 0 {
			content := strings.TrimSpace(blocks[0][1])
			if content != "" {
				result.Files[targetNames[0]] = content
				result.ChangedKeys = append(result.ChangedKeys, targetNames[0])
			}
		}
	}

	return result
}
