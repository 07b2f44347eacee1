// Package postprocess implements the fixer's post-processing rewrites:
// a small set of rules applied to every LLM-produced file after parsing
// and before the result is accepted, regardless of what the model
// produced. These never get skipped, since they encode environment
// facts (the private registry's HTTP-only policy, its in-cluster vs
// client-visible address, which commands are allowed to fail) the model
// cannot be trusted to have gotten right on its own.
package postprocess

import "regexp"

// Rule is one declarative rewrite: every match of Match in a file's
// content is replaced with Replace (which may reference capture groups
// from Match, e.g. "$1 || true").
type Rule struct {
	Name    string
	Match   *regexp.Regexp
	Replace string
}

// Apply runs every rule against content in order and returns the result.
func Apply(rules []Rule, content string) string {
	for _, r := range rules {
		content = r.Match.ReplaceAllString(content, r.Replace)
	}
	return content
}

// Config supplies the environment facts DefaultRules turns into rules.
type Config struct {
	// PrivateRegistryVar is the variable name (without the surrounding
	// "${...}") artifacts must reference for the private registry.
	PrivateRegistryVar string
	// RepositoryPath is the path prefix public images are rehomed under
	// when their public registry host is rewritten away.
	RepositoryPath string
	// PublicHosts is the closed set of public registry host prefixes
	// (e.g. "docker.io/") that must never appear in committed output.
	PublicHosts []string
	// ClusterHost is the private registry's in-cluster address; ClientHost
	// is the address a human or external CI runner must use instead.
	ClusterHost string
	ClientHost  string
	// NonCriticalPrefixes is the closed set of command prefixes (linters,
	// scanners, static analyzers) that must tolerate a non-zero exit.
	NonCriticalPrefixes []string
}

// DefaultRules builds the standard rule set from cfg: public-registry
// substitution, HTTPS-to-HTTP normalization against the private
// registry, in-cluster/client-visible host normalization, and a
// failure-tolerating suffix on non-critical commands.
func DefaultRules(cfg Config) []Rule {
	var rules []Rule

	varRef := "${" + cfg.PrivateRegistryVar + "}"
	// Replace strings are expansion templates, so the "$" of the variable
	// reference is doubled to emit it literally.
	literalRef := "$$" + varRef[1:]
	replacement := literalRef + "/" + cfg.RepositoryPath + "/"
	for _, host := range cfg.PublicHosts {
		rules = append(rules, Rule{
			Name:    "public_registry_substitution:" + host,
			Match:   regexp.MustCompile(regexp.QuoteMeta(host)),
			Replace: replacement,
		})
	}

	rules = append(rules, Rule{
		Name:    "https_to_http",
		Match:   regexp.MustCompile(`https://` + regexp.QuoteMeta(varRef)),
		Replace: "http://" + literalRef,
	})

	if cfg.ClusterHost != "" && cfg.ClientHost != "" {
		rules = append(rules, Rule{
			Name:    "host_port_normalize",
			Match:   regexp.MustCompile(regexp.QuoteMeta(cfg.ClusterHost)),
			Replace: cfg.ClientHost,
		})
	}

	for _, prefix := range cfg.NonCriticalPrefixes {
		rules = append(rules, Rule{
			Name:    "failure_tolerant_suffix:" + prefix,
			Match:   regexp.MustCompile(`(?m)^(\s*` + regexp.QuoteMeta(prefix) + `.*?)(\s*\|\|\s*true)?\s*$`),
			Replace: "$1 || true",
		})
	}

	return rules
}
