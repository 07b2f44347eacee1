// Package analyzer implements repository analysis: it
// inspects a source repository's top-level file listing and runs a fixed
// decision tree to detect language, framework, and package manager.
// Detection never fails — missing or ambiguous evidence yields
// domain.Unknown, never a hard error.
package analyzer

import (
	"context"
	"fmt"
	"strings"

	"github.com/pipelineforge/pipelineforge/internal/hostclient"
	"github.com/pipelineforge/pipelineforge/pkg/domain"
)

// languageRule is one row of the language detection table; the first
// matching rule wins.
type languageRule struct {
	language string
	match    func(files map[string]bool) bool
}

var languageRules = []languageRule{
	{"java", hasAny("pom.xml", "build.gradle", "build.gradle.kts")},
	{"javascript", hasAny("package.json")},
	{"python", hasAny("requirements.txt", "setup.py", "pyproject.toml")},
	{"go", hasAny("go.mod")},
	{"rust", hasAny("Cargo.toml")},
	{"ruby", hasAny("Gemfile")},
	{"csharp", hasSuffix(".csproj")},
}

// frameworkRule is one row of the framework detection table, run after
// language detection over the same file set.
type frameworkRule struct {
	framework string
	match     func(files map[string]bool) bool
}

var frameworkRules = []frameworkRule{
	{"django", hasAny("manage.py")},
	{"nextjs", hasPrefix("next.config.")},
	{"spring", hasAny("src/main/resources/application.yml", "src/main/resources/application.properties")},
	{"flask", hasAny("app.py", "wsgi.py")},
	{"express", hasAny("app.js", "server.js")},
	{"rails", hasAny("config/application.rb")},
	{"fastapi", hasAny("main.py")},
}

// packageManagerRule resolves a package manager from lock-file presence;
// ties resolve in the fixed order the rules are listed in.
var packageManagerRules = []struct {
	manager string
	file    string
}{
	{"yarn", "yarn.lock"},
	{"npm", "package-lock.json"},
	{"pnpm", "pnpm-lock.yaml"},
	{"maven", "pom.xml"},
	{"gradle", "build.gradle"},
	{"pip", "requirements.txt"},
	{"poetry", "pyproject.toml"},
	{"bundler", "Gemfile.lock"},
	{"cargo", "Cargo.lock"},
	{"go-modules", "go.sum"},
}

func hasAny(names ...string) func(map[string]bool) bool {
	return func(files map[string]bool) bool {
		for _, n := range names {
			if files[n] {
				return true
			}
		}
		return false
	}
}

func hasSuffix(suffix string) func(map[string]bool) bool {
	return func(files map[string]bool) bool {
		for f := range files {
			if strings.HasSuffix(f, suffix) {
				return true
			}
		}
		return false
	}
}

func hasPrefix(prefix string) func(map[string]bool) bool {
	return func(files map[string]bool) bool {
		for f := range files {
			if strings.HasPrefix(f, prefix) {
				return true
			}
		}
		return false
	}
}

// Analyzer is the Repo analyzer component.
type Analyzer struct {
	hosts map[string]hostclient.Client
}

// New builds an Analyzer dispatching to one hostclient.Client per host
// name (e.g. "github.com", "gitlab.internal.example.com").
func New(hosts map[string]hostclient.Client) *Analyzer {
	return &Analyzer{hosts: hosts}
}

// Analyze inspects repo (owner/name) on host at ref and returns its
// repository descriptor. ref may be empty to use the host's default
// branch resolution.
func (a *Analyzer) Analyze(ctx context.Context, host, owner, repo, ref string) (*domain.RepositoryDescriptor, error) {
	client, ok := a.hosts[host]
	if !ok {
		return nil, fmt.Errorf("analyzer: no host client configured for %q", host)
	}

	fullName := fmt.Sprintf("%s/%s", owner, repo)
	entries, err := client.ListTopLevel(ctx, fullName, ref)
	if err != nil {
		return nil, fmt.Errorf("analyzer: listing %s: %w", fullName, err)
	}

	files := make(map[string]bool, len(entries))
	fileList := make([]string, 0, len(entries))
	hasArtifacts := false
	for _, e := range entries {
		files[e.Name] = true
		fileList = append(fileList, e.Name)
		if isExistingArtifact(e.Name) {
			hasArtifacts = true
		}
	}

	desc := &domain.RepositoryDescriptor{
		Host:           host,
		Owner:          owner,
		Repo:           repo,
		Language:       detectLanguage(files),
		PackageManager: detectPackageManager(files),
		DefaultBranch:  defaultBranch(ref),
		FileList:       fileList,
		HasArtifacts:   hasArtifacts,
	}
	desc.Framework = detectFramework(files)
	return desc, nil
}

func defaultBranch(ref string) string {
	if ref != "" {
		return ref
	}
	return "main"
}

func isExistingArtifact(name string) bool {
	switch name {
	case ".github", "pipeline.yml", "Jenkinsfile", ".gitlab-ci.yml", "container.build", "Dockerfile":
		return true
	default:
		return false
	}
}

func detectLanguage(files map[string]bool) string {
	for _, rule := range languageRules {
		if rule.match(files) {
			return rule.language
		}
	}
	return domain.Unknown
}

func detectFramework(files map[string]bool) string {
	for _, rule := range frameworkRules {
		if rule.match(files) {
			return rule.framework
		}
	}
	return domain.Unknown
}

func detectPackageManager(files map[string]bool) string {
	for _, rule := range packageManagerRules {
		if files[rule.file] {
			return rule.manager
		}
	}
	return domain.Unknown
}
