package validator

import (
	"regexp"
	"strings"

	"github.com/pipelineforge/pipelineforge/pkg/domain"
)

var (
	tfVarRefPattern  = regexp.MustCompile(`var\.([A-Za-z_][A-Za-z0-9_]*)`)
	tfVarDeclPattern = regexp.MustCompile(`variable\s+"([A-Za-z_][A-Za-z0-9_]*)"`)

	ciVarRefPattern = regexp.MustCompile(`\$\{?\{?\s*(?:secrets\.|env\.)?([A-Z_][A-Z0-9_]*)\s*\}?\}?`)
)

// checkVariableConsistency requires every variable
// reference to be declared somewhere in the artifact set. For an infra
// target this means every `var.X` has a matching `variable "X" {}` block
// in variables.tf (or equivalent); for pipeline targets it means every
// `${VAR}`/`${{ secrets.VAR }}` reference is declared in an env/variables
// block.
func (v *Validator) checkVariableConsistency(set *domain.ArtifactSet, platform domain.TargetPlatform) []domain.ValidationDiagnostic {
	if platform == domain.PlatformInfra {
		return checkTerraformVariables(set)
	}
	return checkPipelineVariables(set)
}

func checkTerraformVariables(set *domain.ArtifactSet) []domain.ValidationDiagnostic {
	declared := make(map[string]struct{})
	referenced := make(map[string]struct{})

	for _, name := range set.Names() {
		content, _ := set.Get(name)
		for _, m := range tfVarDeclPattern.FindAllStringSubmatch(content, -1) {
			declared[m[1]] = struct{}{}
		}
		for _, m := range tfVarRefPattern.FindAllStringSubmatch(content, -1) {
			referenced[m[1]] = struct{}{}
		}
	}

	var diags []domain.ValidationDiagnostic
	for name := range referenced {
		if _, ok := declared[name]; !ok {
			diags = append(diags, errDiag("variable_consistency", "variable \""+name+"\" is referenced but never declared"))
		}
	}
	return diags
}

// pipelineDeclaredVarPattern matches both a YAML env/environment block key
// ("  KEY: value") and a Jenkinsfile environment assignment
// ("KEY = credentials('...')" / "KEY = '...'").
var pipelineDeclaredVarPattern = regexp.MustCompile(`(?m)^\s*([A-Z_][A-Z0-9_]*)\s*[:=]`)

func checkPipelineVariables(set *domain.ArtifactSet) []domain.ValidationDiagnostic {
	declared := make(map[string]struct{})
	referenced := make(map[string]struct{})

	for _, name := range set.Names() {
		content, _ := set.Get(name)
		for _, m := range pipelineDeclaredVarPattern.FindAllStringSubmatch(content, -1) {
			declared[m[1]] = struct{}{}
		}
		for _, m := range ciVarRefPattern.FindAllStringSubmatch(content, -1) {
			referenced[m[1]] = struct{}{}
		}
	}

	var diags []domain.ValidationDiagnostic
	for name := range referenced {
		if isBuiltinCIVariable(name) {
			continue
		}
		if _, ok := declared[name]; !ok {
			diags = append(diags, errDiag("variable_consistency", "variable \""+name+"\" is referenced but never declared"))
		}
	}
	return diags
}

// builtinCIVariables are provided by the CI runner itself and never need a
// local declaration (e.g. GitHub Actions' github.* context, GitLab's
// predefined CI_* variables).
var builtinCIVariables = map[string]struct{}{
	"GITHUB_TOKEN": {}, "GITHUB_REPOSITORY": {}, "GITHUB_RUN_NUMBER": {}, "GITHUB_SHA": {},
	"CI_COMMIT_SHA": {}, "CI_PROJECT_NAME": {}, "CI_REGISTRY_IMAGE": {}, "CI_PIPELINE_ID": {},
	"BUILD_NUMBER": {}, "JOB_NAME": {}, "WORKSPACE": {}, "PIPELINEFORGE_URL": {},
}

func isBuiltinCIVariable(name string) bool {
	if _, ok := builtinCIVariables[name]; ok {
		return true
	}
	return strings.HasPrefix(name, "GITHUB_") || strings.HasPrefix(name, "CI_")
}
