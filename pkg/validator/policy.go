package validator

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"

	"github.com/pipelineforge/pipelineforge/pkg/domain"
)

// policyModule expresses the registry-usage policy as rego: no reference to a
// disallowed public registry host, every container base image must carry
// the private-registry variable prefix, and (when http_only is set) no
// https:// URL may target the private registry host.
const policyModule = `
package pipelineforge.validatorpolicy

import rego.v1

deny contains msg if {
	some name
	content := input.artifacts[name]
	some host in input.disallowed_hosts
	contains(content, host)
	msg := sprintf("artifact %v references disallowed public registry host %q", [name, host])
}

deny contains msg if {
	some name
	content := input.artifacts[name]
	regex.match("(?m)^\\s*FROM\\s+", content)
	not contains(content, input.private_registry_var)
	msg := sprintf("artifact %v has a FROM line that does not reference the private-registry variable %q", [name, input.private_registry_var])
}

deny contains msg if {
	input.http_only
	input.private_registry_host != ""
	some name
	content := input.artifacts[name]
	contains(content, sprintf("https://%s", [input.private_registry_host]))
	msg := sprintf("artifact %v references the private registry over HTTPS; the private registry is HTTP-only", [name])
}
`

// checkPolicy evaluates the policy rego module against every artifact,
// in-process, with no external OPA server.
func (v *Validator) checkPolicy(set *domain.ArtifactSet) []domain.ValidationDiagnostic {
	artifacts := make(map[string]string, set.Len())
	for _, name := range set.Names() {
		content, _ := set.Get(name)
		artifacts[name] = content
	}

	input := map[string]interface{}{
		"artifacts":             artifacts,
		"disallowed_hosts":      v.cfg.DisallowedPublicHosts,
		"private_registry_var":  v.cfg.PrivateRegistryVar,
		"http_only":             v.cfg.PrivateRegistryHTTPOnly,
		"private_registry_host": v.cfg.PrivateRegistryHost,
	}

	query, err := rego.New(
		rego.Query("data.pipelineforge.validatorpolicy.deny"),
		rego.Module("policy.rego", policyModule),
		rego.Input(input),
	).PrepareForEval(context.Background())
	if err != nil {
		return []domain.ValidationDiagnostic{errDiag("policy", fmt.Sprintf("policy module failed to compile: %v", err))}
	}

	results, err := query.Eval(context.Background())
	if err != nil {
		return []domain.ValidationDiagnostic{errDiag("policy", fmt.Sprintf("policy evaluation failed: %v", err))}
	}

	var diags []domain.ValidationDiagnostic
	for _, result := range results {
		for _, expr := range result.Expressions {
			messages, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, m := range messages {
				if msg, ok := m.(string); ok {
					diags = append(diags, errDiag("policy", msg))
				}
			}
		}
	}
	return diags
}
