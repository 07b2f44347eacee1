// Package imageseeder implements the Image seeder component: extracting
// every container image reference from a generated artifact set and
// making sure each one exists in the private registry before commit,
// copying it from its public source if not.
//
// Extraction covers GitLab-flavored single-line `image:`/`name:` fields
// and GitHub-flavored `container:`, `uses: docker://...`,
// `docker pull/run/inspect` commands, and GitHub Actions
// `${{ env.X }}` expression wrappers.
package imageseeder

import (
	"regexp"
	"strings"

	"github.com/pipelineforge/pipelineforge/pkg/domain"
)

var (
	imageFieldPattern     = regexp.MustCompile(`(?m)^\s*-?\s*image:[ \t]*["']?(\$\{\{[^}]*\}\}/[^\s"'#]+|[^\s"'#]+)`)
	nameFieldPattern      = regexp.MustCompile(`(?m)^\s*-?\s*name:\s*["']?([^\s"'#]+)["']?\s*$`)
	containerFieldPattern = regexp.MustCompile(`(?m)container:[ \t]*["']?(\$\{\{[^}]*\}\}/[^\s"'#]+|[^\s"'#]+)`)
	dockerUsesPattern     = regexp.MustCompile(`uses:\s*docker://([^\s"']+)`)
	dockerCmdPattern      = regexp.MustCompile(`docker\s+(?:pull|run|inspect)\s+["']?([^\s"'|&;]+)`)

	pureVariablePattern  = regexp.MustCompile(`^\$\{?[A-Z_]+\}?$`)
	ghExprPrefixPattern  = regexp.MustCompile(`^\$\{\{\s*env\.[A-Z_]+\s*\}\}/`)
	braceVarPrefixPattern = regexp.MustCompile(`^\$\{[^}]+\}/`)
	shellVarPrefixPattern = regexp.MustCompile(`^\$[A-Z_]+/`)
)

// ExtractImages scans every artifact in set for container image
// references, deduplicating on the canonical form and stripping
// registry-variable prefixes (this module's own private-registry
// placeholders as well as GitHub Actions expression wrappers) so each
// result names a bare "image:tag" as it would appear in the private
// registry before normalization.
func ExtractImages(set *domain.ArtifactSet) []string {
	seen := make(map[string]struct{})
	var out []string

	for _, name := range set.Names() {
		content, _ := set.Get(name)
		for _, raw := range extractFromText(content) {
			bare := stripRegistryPrefix(raw)
			if bare == "" {
				continue
			}
			if _, ok := seen[bare]; ok {
				continue
			}
			seen[bare] = struct{}{}
			out = append(out, bare)
		}
	}
	return out
}

func extractFromText(text string) []string {
	var matches []string
	for _, pattern := range []*regexp.Regexp{imageFieldPattern, nameFieldPattern, containerFieldPattern} {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			matches = append(matches, strings.TrimSpace(m[1]))
		}
	}
	for _, m := range dockerUsesPattern.FindAllStringSubmatch(text, -1) {
		matches = append(matches, strings.TrimSpace(m[1]))
	}
	for _, m := range dockerCmdPattern.FindAllStringSubmatch(text, -1) {
		raw := strings.TrimSpace(m[1])
		if strings.HasPrefix(raw, "-") || strings.HasPrefix(raw, "$") {
			continue
		}
		matches = append(matches, raw)
	}

	var filtered []string
	for _, raw := range matches {
		if pureVariablePattern.MatchString(raw) {
			continue
		}
		filtered = append(filtered, raw)
	}
	return filtered
}

// stripRegistryPrefix removes a registry-variable or literal private-
// registry host prefix from a raw reference, defaulting a missing tag to
// "latest". Returns "" for a reference that is still a bare, unresolved
// variable after stripping.
func stripRegistryPrefix(raw string) string {
	img := ghExprPrefixPattern.ReplaceAllString(raw, "")
	img = braceVarPrefixPattern.ReplaceAllString(img, "")
	img = shellVarPrefixPattern.ReplaceAllString(img, "")

	if strings.HasPrefix(img, "$") {
		return ""
	}
	if img == "" {
		return ""
	}
	if !strings.Contains(img, ":") {
		img += ":latest"
	}
	return img
}
