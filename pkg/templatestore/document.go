package templatestore

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pipelineforge/pipelineforge/pkg/domain"
)

var fencedBlockPattern = regexp.MustCompile("(?s)```(?:[a-zA-Z0-9_+-]*)\\s*# file: (.+?)\\n(.*?)\\n```")

// Serialize renders an artifact set as fenced, language-tagged code
// blocks, one per file, in the set's insertion order.
func Serialize(set *domain.ArtifactSet) string {
	var b strings.Builder
	for _, name := range set.Names() {
		content, _ := set.Get(name)
		lang := languageTag(name)
		fmt.Fprintf(&b, "```%s\n# file: %s\n%s\n```\n\n", lang, name, content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Parse re-splits a stored document blob into an artifact set, the
// inverse of Serialize.
func Parse(blob string, analysis *domain.RepositoryDescriptor, platform domain.TargetPlatform) *domain.ArtifactSet {
	set := domain.NewArtifactSet(analysis, platform)
	for _, match := range fencedBlockPattern.FindAllStringSubmatch(blob, -1) {
		name := strings.TrimSpace(match[1])
		content := match[2]
		set.Set(name, content)
	}
	return set
}

func languageTag(filename string) string {
	switch {
	case strings.HasSuffix(filename, ".yml"), strings.HasSuffix(filename, ".yaml"):
		return "yaml"
	case strings.HasSuffix(filename, ".build"), strings.Contains(filename, "Dockerfile"):
		return "dockerfile"
	case strings.HasSuffix(filename, ".tf"):
		return "hcl"
	case strings.HasSuffix(filename, ".json"):
		return "json"
	case strings.HasSuffix(filename, ".groovy"), strings.Contains(filename, "Jenkinsfile"):
		return "groovy"
	case strings.HasSuffix(filename, ".sh"):
		return "bash"
	default:
		return "text"
	}
}
