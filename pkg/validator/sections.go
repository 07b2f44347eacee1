package validator

import (
	"strings"

	"github.com/pipelineforge/pipelineforge/pkg/domain"
	"github.com/pipelineforge/pipelineforge/pkg/templates"
)

// checkRequiredSections enforces each target platform's
// required stages/jobs/blocks.
func (v *Validator) checkRequiredSections(set *domain.ArtifactSet, platform domain.TargetPlatform) []domain.ValidationDiagnostic {
	switch platform {
	case domain.PlatformHostedPipeline:
		return checkHostedPipelineSections(set)
	case domain.PlatformBuildServer:
		return checkBuildServerSections(set)
	case domain.PlatformRunnerService:
		return checkRunnerServiceSections(set)
	default:
		return nil
	}
}

func pipelineDefinition(set *domain.ArtifactSet) (string, bool) {
	for _, candidate := range []string{"pipeline.yml", "pipeline.yaml", ".gitlab-ci.yml"} {
		if content, ok := set.Get(candidate); ok {
			return content, true
		}
	}
	for _, name := range set.Names() {
		if strings.HasPrefix(name, ".github/workflows/") {
			content, _ := set.Get(name)
			return content, true
		}
	}
	return "", false
}

// checkHostedPipelineSections requires every stage in
// templates.RequiredStages to appear in the pipeline definition. It checks
// presence by substring only; the order of the stages is not checked.
func checkHostedPipelineSections(set *domain.ArtifactSet) []domain.ValidationDiagnostic {
	content, ok := pipelineDefinition(set)
	if !ok {
		return []domain.ValidationDiagnostic{errDiag("required_sections", "no pipeline definition artifact found")}
	}

	if !strings.Contains(content, "stages:") {
		return []domain.ValidationDiagnostic{errDiag("required_sections", "pipeline definition is missing a stages: block")}
	}

	var diags []domain.ValidationDiagnostic
	for _, stage := range templates.RequiredStages {
		if !strings.Contains(content, stage) {
			diags = append(diags, errDiag("required_sections", "missing required stage: "+stage))
		}
	}
	return diags
}

// checkBuildServerSections requires the Groovy declarative-pipeline
// skeleton: pipeline { agent stages post }.
func checkBuildServerSections(set *domain.ArtifactSet) []domain.ValidationDiagnostic {
	content, ok := set.Get("Jenkinsfile")
	if !ok {
		return []domain.ValidationDiagnostic{errDiag("required_sections", "no Jenkinsfile artifact found")}
	}

	var diags []domain.ValidationDiagnostic
	for _, block := range []string{"pipeline", "agent", "stages", "post"} {
		if !strings.Contains(content, block) {
			diags = append(diags, errDiag("required_sections", "Jenkinsfile is missing required block: "+block))
		}
	}
	return diags
}

// checkRunnerServiceSections requires the required job names and their
// dependency edges.
func checkRunnerServiceSections(set *domain.ArtifactSet) []domain.ValidationDiagnostic {
	content, ok := pipelineDefinition(set)
	if !ok {
		return []domain.ValidationDiagnostic{errDiag("required_sections", "no pipeline definition artifact found")}
	}

	if !strings.Contains(content, "jobs:") {
		return []domain.ValidationDiagnostic{errDiag("required_sections", "pipeline definition is missing a jobs: block")}
	}

	requiredJobs := []string{"compile", "build", "test", "push"}
	var diags []domain.ValidationDiagnostic
	for _, job := range requiredJobs {
		if !strings.Contains(content, job+":") {
			diags = append(diags, errDiag("required_sections", "missing required job: "+job))
		}
	}
	if !strings.Contains(content, "needs:") && !strings.Contains(content, "dependsOn:") {
		diags = append(diags, errDiag("required_sections", "pipeline definition declares no job dependency edges"))
	}
	return diags
}
