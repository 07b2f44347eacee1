package validator

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pipelineforge/pipelineforge/pkg/domain"
)

// checkStructural parses every artifact in its declared format: YAML for
// hosted-pipeline and runner-service artifacts, a brace-balance check for
// the build-server target's Groovy Jenkinsfile (which has no YAML/HCL
// structure to parse).
func (v *Validator) checkStructural(set *domain.ArtifactSet, platform domain.TargetPlatform) []domain.ValidationDiagnostic {
	var diags []domain.ValidationDiagnostic

	for _, name := range set.Names() {
		content, _ := set.Get(name)
		if strings.TrimSpace(content) == "" {
			diags = append(diags, errDiag("structural_parse", "artifact "+name+" is empty"))
			continue
		}

		switch {
		case platform == domain.PlatformBuildServer && isJenkinsfile(name):
			if err := checkBraceBalance(content); err != nil {
				diags = append(diags, errDiag("structural_parse", "artifact "+name+": "+err.Error()))
			}
		case strings.HasSuffix(name, ".yml"), strings.HasSuffix(name, ".yaml"):
			var doc interface{}
			if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
				diags = append(diags, errDiag("structural_parse", "artifact "+name+" failed to parse as YAML: "+err.Error()))
			}
		case strings.HasSuffix(name, ".tf"):
			if err := checkBraceBalance(content); err != nil {
				diags = append(diags, errDiag("structural_parse", "artifact "+name+": "+err.Error()))
			}
		}
	}
	return diags
}

func isJenkinsfile(name string) bool {
	return name == "Jenkinsfile" || strings.HasSuffix(name, "Jenkinsfile")
}

// checkBraceBalance is a coarse structural check for brace-delimited,
// non-YAML formats (Groovy Jenkinsfiles, HCL): every opening brace must
// have a matching close.
func checkBraceBalance(content string) error {
	depth := 0
	for _, r := range content {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return unbalancedError("unmatched closing brace")
			}
		}
	}
	if depth != 0 {
		return unbalancedError("unmatched opening brace")
	}
	return nil
}

type unbalancedError string

func (e unbalancedError) Error() string { return string(e) }
