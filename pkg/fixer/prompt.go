package fixer

import (
	"fmt"
	"strings"

	"github.com/pipelineforge/pipelineforge/pkg/domain"
)

// buildFixPrompt composes the repair request: the failing artifacts in
// full, the diagnostics that must be resolved, and a reminder of the
// output format the response must follow.
func buildFixPrompt(set *domain.ArtifactSet, diags []domain.ValidationDiagnostic, attempt int, runtimeLog []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Attempt %d failed validation. Fix every error below without introducing new ones.\n\n", attempt)

	b.WriteString("## Errors\n")
	for _, d := range diags {
		if !d.IsError() {
			continue
		}
		fmt.Fprintf(&b, "- [%s] (%s) %s\n", d.CheckName, identifyErrorType(d.Message), d.Message)
	}

	if len(diags) > 0 {
		var warnings []string
		for _, d := range diags {
			if !d.IsError() {
				warnings = append(warnings, d.Message)
			}
		}
		if len(warnings) > 0 {
			b.WriteString("\n## Warnings (fix if easy, do not block on these)\n")
			for _, w := range warnings {
				fmt.Fprintf(&b, "- %s\n", w)
			}
		}
	}

	if len(runtimeLog) > 0 {
		b.WriteString("\n## Relevant run log lines\n")
		for _, line := range extractKeyErrors(runtimeLog) {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	b.WriteString("\n## Current artifacts\n")
	for _, name := range set.Names() {
		content, _ := set.Get(name)
		fmt.Fprintf(&b, "\n### %s\n```\n%s\n```\n", name, content)
	}

	b.WriteString("\nRespond with an explanation followed by the complete replacement content of every file you change, one marker block per file:\n")
	b.WriteString("---EXPLANATION---\n<what changed and why>\n")
	b.WriteString("---FILE:<artifact name>---\n<full file content>\n---END---\n")
	b.WriteString("Repeat the ---FILE:<name>---/---END--- pair for each changed file. Leave unchanged files out entirely.\n")

	return b.String()
}

// buildRuntimeFixPrompt composes the repair request for a build that
// failed at runtime rather than at validation time: the artifacts
// themselves passed every structural and policy check, so the framing
// centers the failed job and its log instead of a diagnostics list.
func buildRuntimeFixPrompt(set *domain.ArtifactSet, jobName string, log []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "The pipeline's %q job failed when actually run, even though its artifacts passed validation. Fix whatever in the artifacts caused this runtime failure.\n\n", jobName)

	b.WriteString("## Failed job log\n")
	for _, line := range extractKeyErrors(log) {
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n## Current artifacts\n")
	for _, name := range set.Names() {
		content, _ := set.Get(name)
		fmt.Fprintf(&b, "\n### %s\n```\n%s\n```\n", name, content)
	}

	b.WriteString("\nRespond with an explanation followed by the complete replacement content of every file you change, one marker block per file:\n")
	b.WriteString("---EXPLANATION---\n<what changed and why>\n")
	b.WriteString("---FILE:<artifact name>---\n<full file content>\n---END---\n")
	b.WriteString("Repeat the ---FILE:<name>---/---END--- pair for each changed file. Leave unchanged files out entirely.\n")

	return b.String()
}
